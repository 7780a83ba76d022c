// Package engine defines the face detection / recognition / liveness capability the
// console drives, and adapters that talk to a concrete engine implementation.
package engine

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/faceguard/internal/types"
)

// Capability is a stateful engine handle. Every call is synchronous and costs tens
// of milliseconds; callers must not assume it is safe for unbounded concurrency.
type Capability interface {
	Detect(frame *types.Frame) ([]types.FaceBox, error)
	AssessQuality(frame *types.Frame, face types.FaceBox) (float32, error)
	LivenessScore(frame *types.Frame, face types.FaceBox, mode types.Mode) (float32, error)
	ExtractFeature(frame *types.Frame, face types.FaceBox) (types.Feature, error)
	Compare(a, b types.Feature) (float32, error)
}

// Status codes with special meaning to callers.
const (
	StatusOK               = 0
	StatusAlreadyActivated = 90114
)

// DetectMode selects how an engine instance runs detection.
type DetectMode string

const (
	DetectVideo DetectMode = "video" // assigns tracking ids across frames
	DetectImage DetectMode = "image"
)

// Input errors are returned to the caller as-is and never treated as fatal.
var (
	ErrNilFrame  = errors.New("frame is nil or empty")
	ErrNoFace    = errors.New("no face detected")
	ErrFaceIndex = errors.New("face index out of range")
)

// StatusError is a non-zero status reported by the engine for one call.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("engine %s failed (code %d): %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("engine %s failed (code %d)", e.Op, e.Code)
}

// IsStatus reports whether err carries an engine status code.
func IsStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Code extracts the engine status code, or -1 when err is not a StatusError.
func Code(err error) int {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return -1
}

// CheckFrame validates a frame before it crosses the adapter boundary.
func CheckFrame(frame *types.Frame) error {
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 || len(frame.Data) == 0 {
		return ErrNilFrame
	}
	if len(frame.Data) < frame.Height*frame.Stride() {
		return fmt.Errorf("%w: buffer %d bytes, need %d", ErrNilFrame, len(frame.Data), frame.Height*frame.Stride())
	}
	return nil
}
