// Package imaging holds the bitmap constraints the engine expects and the decoders for enrollment images.
package imaging

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/spakin/netpbm"
	"golang.org/x/image/draw"

	// Register decoders for every format the console accepts.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// MaxSide is the largest width or height handed to the engine.
const MaxSide = 1536

// Fit scales img down so neither side exceeds MaxSide (keeping the aspect ratio) and trims the
// width to a multiple of 4. Images already within bounds are only trimmed.
func Fit(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > MaxSide || h > MaxSide {
		scale := float64(MaxSide) / float64(max(w, h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
		img = Resize(img, w, h)
	}
	return AlignWidth(img)
}

// AlignWidth crops the right edge so the width is a multiple of 4.
func AlignWidth(img image.Image) image.Image {
	b := img.Bounds()
	aligned := b.Dx() - b.Dx()%4
	if aligned == b.Dx() || aligned == 0 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, aligned, b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Resize scales img to exactly w x h.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Crop copies the part of img inside r (clipped to the image) into a new image at the origin.
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Decode reads an enrollment image. Netpbm files are recognised by extension; everything else
// goes through the registered decoders (bmp, jpeg, png).
func Decode(r io.Reader, ext string) (image.Image, error) {
	switch strings.ToLower(ext) {
	case ".pgm", ".ppm", ".pbm", ".pnm":
		img, err := netpbm.Decode(r, nil)
		if err != nil {
			return nil, fmt.Errorf("decode netpbm: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(r)
	return img, err
}
