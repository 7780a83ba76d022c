// Package stream drives one camera stream: it decides which frames are worth recognising,
// keeps at most one recognition job in flight, and publishes the latest outcome for rendering.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/faceguard/internal/engine"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/overlay"
	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/rs/zerolog"
)

// QualityThreshold is the minimum face quality worth a liveness check. Scores at or below it abort.
const QualityThreshold float32 = 0.35

// Submitter runs a job in the background. *workerpool.WorkerPool satisfies it.
type Submitter interface {
	Submit(task func())
}

type Config struct {
	Mode                types.Mode
	LivenessThreshold   float32
	SimilarityThreshold float32
	// TrustTrackIDs enables skipping recognition for a face whose tracker id was already recognised.
	// Turn it off for detectors that do not keep ids stable across frames.
	TrustTrackIDs bool
}

// Admission is what OnFrame decided for one frame.
type Admission int

const (
	AdmissionStopped Admission = iota
	AdmissionBusy
	AdmissionDetectFailed
	AdmissionNoFace
	AdmissionCacheHit
	AdmissionLaunched
)

func (a Admission) String() string {
	switch a {
	case AdmissionStopped:
		return "stopped"
	case AdmissionBusy:
		return "busy"
	case AdmissionDetectFailed:
		return "detect-failed"
	case AdmissionNoFace:
		return "no-face"
	case AdmissionCacheHit:
		return "cache-hit"
	case AdmissionLaunched:
		return "launched"
	}
	return "unknown"
}

// Stats are cumulative counters since the processor was created.
type Stats struct {
	Frames       uint64 `json:"frames"`
	DroppedBusy  uint64 `json:"dropped_busy"`
	DetectErrors uint64 `json:"detect_errors"`
	NoFace       uint64 `json:"no_face"`
	CacheHits    uint64 `json:"cache_hits"`
	Launched     uint64 `json:"launched"`
	Completed    uint64 `json:"completed"`
	Anomalies    uint64 `json:"anomalies"`
}

type counters struct {
	frames, droppedBusy, detectErrors, noFace, cacheHits, launched, completed, anomalies atomic.Uint64
}

// run is the state of one start..stop cycle. Jobs keep a pointer to the run that launched them
// so results arriving after Stop can be recognised and dropped.
type run struct {
	session *Session
	overlay *OverlayState
	stopped atomic.Bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithOutcomeHook registers a callback invoked after every job, once the stream is free again.
func WithOutcomeHook(fn func(Outcome)) Option {
	return func(p *Processor) { p.onOutcome = fn }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Processor) { p.log = log }
}

// Processor owns frame admission and recognition for a single stream.
type Processor struct {
	cfg        Config
	detector   engine.Capability
	recognizer engine.Capability
	gallery    *gallery.Gallery
	pool       Submitter
	log        zerolog.Logger
	onOutcome  func(Outcome)

	mu    sync.Mutex
	run   *run
	stats counters
}

// NewProcessor wires a stream to its engines. detector runs on the admission path (video mode,
// tracking ids); recognizer runs inside jobs. gal may be nil for streams that never match.
func NewProcessor(cfg Config, detector, recognizer engine.Capability, gal *gallery.Gallery, pool Submitter, opts ...Option) *Processor {
	p := &Processor{
		cfg:        cfg,
		detector:   detector,
		recognizer: recognizer,
		gallery:    gal,
		pool:       pool,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("stream", cfg.Mode.String()).Logger()
	return p
}

func (p *Processor) Mode() types.Mode { return p.cfg.Mode }

// Start begins a fresh run with a new session and an empty overlay.
func (p *Processor) Start() {
	r := &run{session: NewSession(), overlay: NewOverlayState()}
	p.mu.Lock()
	if p.run != nil {
		p.run.stopped.Store(true)
	}
	p.run = r
	p.mu.Unlock()
	p.log.Info().Str("session", r.session.ID.String()).Msg("stream started")
}

// Stop ends the run. An in-flight job still completes and frees its session, but its result is discarded.
func (p *Processor) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()
	if r != nil {
		r.stopped.Store(true)
		p.log.Info().Str("session", r.session.ID.String()).Bool("job_in_flight", r.session.Busy()).Msg("stream stopped")
	}
}

func (p *Processor) Running() bool {
	return p.current() != nil
}

func (p *Processor) current() *run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run
}

// Busy reports whether a recognition job is in flight for the current run.
func (p *Processor) Busy() bool {
	r := p.current()
	return r != nil && r.session.Busy()
}

// Session exposes the current run's session, or nil when stopped.
func (p *Processor) Session() *Session {
	if r := p.current(); r != nil {
		return r.session
	}
	return nil
}

// ResetCache forgets the cached identity, e.g. after the gallery changed.
func (p *Processor) ResetCache() {
	if r := p.current(); r != nil {
		r.session.cache.Reset()
	}
}

// Annotation is the render view of the current run. A stopped stream renders nothing.
func (p *Processor) Annotation() overlay.Annotation {
	r := p.current()
	if r == nil {
		return overlay.Annotation{Liveness: types.LivenessUndetermined}
	}
	return r.overlay.Annotation()
}

func (p *Processor) Stats() Stats {
	return Stats{
		Frames:       p.stats.frames.Load(),
		DroppedBusy:  p.stats.droppedBusy.Load(),
		DetectErrors: p.stats.detectErrors.Load(),
		NoFace:       p.stats.noFace.Load(),
		CacheHits:    p.stats.cacheHits.Load(),
		Launched:     p.stats.launched.Load(),
		Completed:    p.stats.completed.Load(),
		Anomalies:    p.stats.anomalies.Load(),
	}
}

func (p *Processor) generation() uint64 {
	if p.gallery == nil {
		return 0
	}
	return p.gallery.Generation()
}

// OnFrame is called once per capture tick. It never blocks on recognition and never takes
// ownership of frame; anything a job needs is copied before OnFrame returns.
func (p *Processor) OnFrame(frame *types.Frame) Admission {
	r := p.current()
	if r == nil {
		return AdmissionStopped
	}
	p.stats.frames.Add(1)

	if r.session.Busy() {
		p.stats.droppedBusy.Add(1)
		return AdmissionBusy
	}

	faces, err := p.detector.Detect(frame)
	if err != nil {
		p.stats.detectErrors.Add(1)
		p.log.Debug().Err(err).Msg("detection failed, frame dropped")
		return AdmissionDetectFailed
	}

	idx := types.LargestFace(faces)
	if idx < 0 || faces[idx].Rect.Degenerate() {
		p.stats.noFace.Add(1)
		r.overlay.ClearMark()
		return AdmissionNoFace
	}
	face := faces[idx]
	r.overlay.SetMark(FaceMark{Rect: face.Rect, FrameWidth: frame.Width, FrameHeight: frame.Height})

	if p.cfg.TrustTrackIDs && r.session.cache.Hit(face.ID, p.generation()) {
		p.stats.cacheHits.Add(1)
		return AdmissionCacheHit
	}

	if !r.session.TryAcquire() {
		p.stats.droppedBusy.Add(1)
		return AdmissionBusy
	}

	snapshot := frame.Clone()
	p.stats.launched.Add(1)
	p.pool.Submit(func() { p.recognize(r, snapshot, face) })
	return AdmissionLaunched
}
