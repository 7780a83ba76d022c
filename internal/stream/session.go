package stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is the per-run state of one stream: the single-flight guard and the identity cache.
// A new Session is created every time the stream starts.
type Session struct {
	ID    uuid.UUID
	busy  atomic.Bool
	cache RecognitionCache
}

func NewSession() *Session {
	return &Session{ID: uuid.New()}
}

// TryAcquire claims the stream for one recognition job. It fails while a job is in flight.
func (s *Session) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release frees the stream for the next job.
func (s *Session) Release() {
	s.busy.Store(false)
}

func (s *Session) Busy() bool {
	return s.busy.Load()
}

func (s *Session) Cache() *RecognitionCache {
	return &s.cache
}

// RecognitionCache remembers the last face that was fully recognised so the same tracked face
// is not re-verified on every frame. Entries are tied to a gallery generation: clearing the
// gallery invalidates them.
type RecognitionCache struct {
	mu     sync.Mutex
	faceID int64
	gen    uint64
	valid  bool
}

// Hit reports whether faceID was the last recognised face under gallery generation gen.
// Untracked faces (id 0) never hit.
func (c *RecognitionCache) Hit(faceID int64, gen uint64) bool {
	if faceID == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid && c.faceID == faceID && c.gen == gen
}

func (c *RecognitionCache) Remember(faceID int64, gen uint64) {
	c.mu.Lock()
	c.faceID, c.gen, c.valid = faceID, gen, true
	c.mu.Unlock()
}

func (c *RecognitionCache) Reset() {
	c.mu.Lock()
	c.faceID, c.gen, c.valid = 0, 0, false
	c.mu.Unlock()
}

// LastFaceID returns the cached face id, or 0 when nothing is cached.
func (c *RecognitionCache) LastFaceID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return 0
	}
	return c.faceID
}
