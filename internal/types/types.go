package types

import "fmt"

// Mode selects which camera modality a stream (and its liveness check) belongs to.
type Mode int

const (
	ModeRGB Mode = iota
	ModeIR
)

func (m Mode) String() string {
	switch m {
	case ModeRGB:
		return "rgb"
	case ModeIR:
		return "ir"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps "rgb" / "ir" back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "rgb", "RGB":
		return ModeRGB, nil
	case "ir", "IR":
		return ModeIR, nil
	}
	return 0, fmt.Errorf("unknown stream mode %q", s)
}

// Rect is a face bounding box in frame pixels.
type Rect struct {
	Left   int `json:"left" cbor:"l"`
	Top    int `json:"top" cbor:"t"`
	Right  int `json:"right" cbor:"r"`
	Bottom int `json:"bottom" cbor:"b"`
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Area is (right-left)*(bottom-top); used to pick the dominant face.
func (r Rect) Area() int { return r.Width() * r.Height() }

// Degenerate reports a box that the detector filled with zeros, i.e. "no box".
// Any zero coordinate counts, which also rejects faces touching the top/left edge.
func (r Rect) Degenerate() bool {
	return r.Left == 0 || r.Top == 0 || r.Right == 0 || r.Bottom == 0
}

// FaceBox is a single detection. ID is the tracker id (0 when untracked) and is
// only meaningful for the frame that produced it.
type FaceBox struct {
	ID     int64 `json:"id" cbor:"id"`
	Rect   Rect  `json:"rect" cbor:"rect"`
	Orient int   `json:"orient" cbor:"orient"`
}

// LargestFace returns the index of the face with the biggest box area.
// Ties keep the earliest face. Returns -1 when faces is empty.
func LargestFace(faces []FaceBox) int {
	best := -1
	maxArea := 0
	for i, f := range faces {
		area := f.Rect.Area()
		if best == -1 || area > maxArea {
			best = i
			maxArea = area
		}
	}
	return best
}

// Feature is an engine-defined face template. Its bytes are opaque here.
type Feature struct {
	Data []byte
}

func (f Feature) Size() int { return len(f.Data) }

// Empty reports a feature that extraction did not fill.
func (f Feature) Empty() bool { return len(f.Data) == 0 }

// Clone copies the buffer so the feature outlives the frame it was extracted from.
func (f Feature) Clone() Feature {
	if f.Data == nil {
		return Feature{}
	}
	out := make([]byte, len(f.Data))
	copy(out, f.Data)
	return Feature{Data: out}
}

// GalleryEntry is one enrolled face. Its position in the gallery is its identity.
type GalleryEntry struct {
	Label   string
	Feature Feature
	// Thumbnail is the cropped face as JPEG, when enrollment kept one.
	Thumbnail []byte
}

// Liveness is the tri-state outcome of a liveness check.
type Liveness int8

const (
	LivenessUndetermined Liveness = -1
	LivenessNotLive      Liveness = 0
	LivenessLive         Liveness = 1
)

func (l Liveness) String() string {
	switch l {
	case LivenessLive:
		return "live"
	case LivenessNotLive:
		return "spoof"
	default:
		return "unknown"
	}
}

func (l Liveness) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LivenessResult keeps the raw engine code next to the decision.
type LivenessResult struct {
	State Liveness
	Score float32
	Code  int
}
