package console

import (
	"bytes"
	"image/jpeg"
	"sync"

	"github.com/andresmejia3/faceguard/internal/imaging"
	"github.com/andresmejia3/faceguard/internal/overlay"
	"github.com/andresmejia3/faceguard/internal/types"
)

const jpegQuality = 80

var jpegBufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// slot holds the last rendered surface of one stream and fans it out to MJPEG viewers.
type slot struct {
	mu   sync.RWMutex
	jpeg []byte
	ann  overlay.Annotation
	seq  uint64
	subs map[chan []byte]struct{}
}

func newSlot() *slot {
	return &slot{
		ann:  overlay.Annotation{Liveness: types.LivenessUndetermined},
		subs: make(map[chan []byte]struct{}),
	}
}

func (s *slot) latest() ([]byte, overlay.Annotation, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jpeg, s.ann, s.seq
}

// subscribe returns a channel that receives every new surface. A viewer that falls behind
// misses frames instead of slowing the stream down.
func (s *slot) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *slot) viewers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *slot) publish(data []byte, ann overlay.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jpeg = data
	s.ann = ann
	s.seq++
	for ch := range s.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

// Paint renders frame onto the display surface with its annotation and publishes the JPEG.
// It runs on the capture tick and does not keep frame.
func (s *Server) Paint(mode types.Mode, frame *types.Frame, ann overlay.Annotation) {
	sl, ok := s.slots[mode]
	if !ok {
		return
	}
	surface := imaging.Resize(frame.RGBA(), s.opts.SurfaceWidth, s.opts.SurfaceHeight)
	overlay.Draw(surface, ann)

	buf := jpegBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jpegBufferPool.Put(buf)
	if err := jpeg.Encode(buf, surface, &jpeg.Options{Quality: jpegQuality}); err != nil {
		s.log.Warn().Err(err).Str("stream", mode.String()).Msg("failed to encode surface")
		return
	}
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	sl.publish(data, ann)
}
