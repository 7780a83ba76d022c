// Package coordinator runs the RGB stream, and the IR stream when a second camera is present,
// side by side. The streams share the gallery, the thresholds and a bounded worker pool, and
// nothing else.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"

	"github.com/andresmejia3/faceguard/internal/capture"
	"github.com/andresmejia3/faceguard/internal/enroll"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/overlay"
	"github.com/andresmejia3/faceguard/internal/stream"
	"github.com/andresmejia3/faceguard/internal/types"
)

// Plan is the startup decision between dual-camera and RGB-only operation.
type Plan struct {
	Dual     bool
	RGBIndex int
	IRIndex  int
	Reason   string
}

// NewPlan enables the IR stream only when it has its own camera and at least two cameras exist.
func NewPlan(rgbIndex, irIndex, cameraCount int) Plan {
	p := Plan{RGBIndex: rgbIndex, IRIndex: irIndex}
	switch {
	case rgbIndex == irIndex:
		p.Reason = "rgb and ir share a camera index"
	case cameraCount < 2:
		p.Reason = fmt.Sprintf("%d camera(s) available", cameraCount)
	default:
		p.Dual = true
		p.Reason = "two cameras available"
	}
	return p
}

// Sink receives every frame with the stream's current annotation, once per tick.
// It must not keep the frame after Paint returns.
type Sink interface {
	Paint(mode types.Mode, frame *types.Frame, ann overlay.Annotation)
}

// GalleryClearer wipes persisted entries. The store satisfies it.
type GalleryClearer interface {
	Clear(ctx context.Context) error
}

var ErrNoStreams = errors.New("no streams configured")

type pair struct {
	proc *stream.Processor
	src  capture.Source
}

type Coordinator struct {
	gallery *gallery.Gallery
	clearer GalleryClearer
	sink    Sink
	pool    *workerpool.WorkerPool
	log     zerolog.Logger

	mu        sync.Mutex
	streams   []pair
	changing  bool // a gallery change is in progress; guarded by mu
	streaming atomic.Bool
	closed    atomic.Bool
}

// New creates a coordinator with a pool of workers shared by every stream's recognition jobs.
// clearer may be nil for an in-memory gallery.
func New(gal *gallery.Gallery, clearer GalleryClearer, sink Sink, workers int, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		gallery: gal,
		clearer: clearer,
		sink:    sink,
		pool:    workerpool.New(workers),
		log:     log,
	}
}

// Submit queues a recognition job. After Close the job runs inline so it still frees its stream.
func (c *Coordinator) Submit(task func()) {
	if c.closed.Load() {
		task()
		return
	}
	c.pool.Submit(task)
}

// AddStream registers a processor with the source that feeds it.
func (c *Coordinator) AddStream(proc *stream.Processor, src capture.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams = append(c.streams, pair{proc: proc, src: src})
}

// Processor returns the processor for mode, if that stream is configured.
func (c *Coordinator) Processor(mode types.Mode) (*stream.Processor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.streams {
		if s.proc.Mode() == mode {
			return s.proc, true
		}
	}
	return nil, false
}

func (c *Coordinator) Streaming() bool { return c.streaming.Load() }

// tick is the per-frame path: admit, paint, release. It never waits on recognition.
func (c *Coordinator) tick(proc *stream.Processor) func(*types.Frame) {
	return func(f *types.Frame) {
		defer f.Release()
		proc.OnFrame(f)
		if c.sink != nil {
			c.sink.Paint(proc.Mode(), f, proc.Annotation())
		}
	}
}

// Start begins a fresh run on every stream and starts capture.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errors.New("coordinator is closed")
	}
	if c.streaming.Load() {
		return nil
	}
	if c.changing {
		return enroll.ErrGalleryChanging
	}
	if len(c.streams) == 0 {
		return ErrNoStreams
	}

	for i, s := range c.streams {
		s.proc.Start()
		if err := s.src.Start(ctx, c.tick(s.proc)); err != nil {
			s.proc.Stop()
			c.stopStreams(c.streams[:i])
			return fmt.Errorf("failed to start %s capture: %w", s.proc.Mode(), err)
		}
	}
	c.streaming.Store(true)
	c.log.Info().Int("streams", len(c.streams)).Msg("streaming started")
	return nil
}

// Stop halts capture, then the processors. In-flight jobs finish on the pool and are discarded.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming.Load() {
		return
	}
	c.stopStreams(c.streams)
	c.streaming.Store(false)
	c.log.Info().Msg("streaming stopped")
}

func (c *Coordinator) stopStreams(streams []pair) {
	for _, s := range streams {
		s.src.Stop()
		s.proc.Stop()
	}
}

// Toggle starts streaming when stopped and stops it when running. It reports the new state.
func (c *Coordinator) Toggle(ctx context.Context) (bool, error) {
	if c.Streaming() {
		c.Stop()
		return false, nil
	}
	if err := c.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// BeginGalleryChange claims the gallery for enrollment or clearing. It fails while streaming
// or while another change holds the gallery, and Start is refused until done is called.
func (c *Coordinator) BeginGalleryChange() (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming.Load() {
		return nil, enroll.ErrStreamingActive
	}
	if c.changing {
		return nil, enroll.ErrGalleryChanging
	}
	c.changing = true
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.changing = false
			c.mu.Unlock()
		})
	}, nil
}

// ClearGallery empties the gallery (and its persisted copy) and drops every cached identity.
// It is refused while streaming.
func (c *Coordinator) ClearGallery(ctx context.Context) error {
	done, err := c.BeginGalleryChange()
	if err != nil {
		return err
	}
	defer done()
	if c.clearer != nil {
		if err := c.clearer.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear stored gallery: %w", err)
		}
	}
	c.gallery.Clear()

	c.mu.Lock()
	for _, s := range c.streams {
		s.proc.ResetCache()
	}
	c.mu.Unlock()
	c.log.Info().Msg("gallery cleared")
	return nil
}

// StreamInfo is a status snapshot of one stream.
type StreamInfo struct {
	Mode    string       `json:"mode"`
	Running bool         `json:"running"`
	Busy    bool         `json:"busy"`
	Stats   stream.Stats `json:"stats"`
}

func (c *Coordinator) Streams() []StreamInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StreamInfo, 0, len(c.streams))
	for _, s := range c.streams {
		out = append(out, StreamInfo{
			Mode:    s.proc.Mode().String(),
			Running: s.proc.Running() && s.src.IsRunning(),
			Busy:    s.proc.Busy(),
			Stats:   s.proc.Stats(),
		})
	}
	return out
}

// Close stops streaming and waits for queued recognition jobs to drain.
func (c *Coordinator) Close() {
	c.Stop()
	if c.closed.CompareAndSwap(false, true) {
		c.pool.StopWait()
	}
}

// OutcomeLogger logs every finished recognition job at debug level.
func OutcomeLogger(log zerolog.Logger) func(stream.Outcome) {
	return func(o stream.Outcome) {
		ev := log.Debug()
		if o.Stage == stream.StagePanicked {
			ev = log.Warn()
		}
		ev.Str("stream", o.Mode.String()).
			Int64("face_id", o.FaceID).
			Str("stage", o.Stage.String()).
			Str("liveness", o.Liveness.State.String()).
			Str("message", o.Message).
			Bool("cached", o.Cached).
			Bool("discarded", o.Discarded).
			Dur("took", o.Duration).
			Msg("recognition finished")
	}
}
