package stream

import (
	"sync/atomic"

	"github.com/andresmejia3/faceguard/internal/overlay"
	"github.com/andresmejia3/faceguard/internal/types"
)

// TrackUnit is the last recognition outcome shown for a stream.
type TrackUnit struct {
	Message  string
	Liveness types.Liveness
}

// FaceMark is the box found on the most recently admitted frame.
type FaceMark struct {
	Rect        types.Rect
	FrameWidth  int
	FrameHeight int
}

// OverlayState is written by recognition jobs and the admission path and read by the render
// path at its own pace. Each half is swapped whole, so readers never see a torn value; they
// may see a stale one.
type OverlayState struct {
	unit atomic.Pointer[TrackUnit]
	mark atomic.Pointer[FaceMark]
}

func NewOverlayState() *OverlayState {
	o := &OverlayState{}
	o.unit.Store(&TrackUnit{Liveness: types.LivenessUndetermined})
	return o
}

func (o *OverlayState) SetUnit(u TrackUnit) { o.unit.Store(&u) }

func (o *OverlayState) Unit() TrackUnit { return *o.unit.Load() }

func (o *OverlayState) SetMark(m FaceMark) { o.mark.Store(&m) }

func (o *OverlayState) ClearMark() { o.mark.Store(nil) }

// Mark returns the current face box, if any.
func (o *OverlayState) Mark() (FaceMark, bool) {
	m := o.mark.Load()
	if m == nil {
		return FaceMark{}, false
	}
	return *m, true
}

// Annotation combines both halves for the render sink. Without a face box there is nothing to draw.
func (o *OverlayState) Annotation() overlay.Annotation {
	m, ok := o.Mark()
	if !ok {
		return overlay.Annotation{Liveness: types.LivenessUndetermined}
	}
	u := o.Unit()
	return overlay.Annotation{
		Box:         m.Rect,
		HasBox:      true,
		FrameWidth:  m.FrameWidth,
		FrameHeight: m.FrameHeight,
		Message:     u.Message,
		Liveness:    u.Liveness,
	}
}
