package enroll

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/andresmejia3/faceguard/internal/imaging"
)

const (
	MaxImageBytes = 2 * 1024 * 1024
	MinImageBytes = 2
)

var (
	ErrImageMissing    = errors.New("image file does not exist")
	ErrImageTooLarge   = fmt.Errorf("image file is larger than %d bytes", MaxImageBytes)
	ErrImageTooSmall   = errors.New("image file is empty or truncated")
	ErrImageUnreadable = errors.New("image data could not be decoded")
)

// CheckImage validates an image file on disk before it is read.
func CheckImage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrImageMissing, path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrImageMissing, path)
	}
	return checkSize(info.Size())
}

func checkSize(n int64) error {
	if n > MaxImageBytes {
		return ErrImageTooLarge
	}
	if n < MinImageBytes {
		return ErrImageTooSmall
	}
	return nil
}

// LoadImage checks, reads, and decodes an image file, then fits it to the engine's limits.
func LoadImage(path string) (image.Image, error) {
	if err := CheckImage(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data, filepath.Ext(path))
}

// DecodeImage validates and decodes image bytes (e.g. an upload). ext selects netpbm decoding.
func DecodeImage(data []byte, ext string) (image.Image, error) {
	if err := checkSize(int64(len(data))); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	return imaging.Fit(img), nil
}
