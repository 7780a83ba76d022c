package stream

import (
	"fmt"
	"time"

	"github.com/andresmejia3/faceguard/internal/engine"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/google/uuid"
)

// Stage is how far a recognition job got.
type Stage int

const (
	StageQualityRejected Stage = iota // aborted before liveness; overlay untouched
	StageLivenessOnly                 // not live, undetermined, or (RGB) extraction failed
	StageUnmatched                    // live and extracted, nothing cleared the threshold
	StageMatched
	StagePanicked
)

func (s Stage) String() string {
	switch s {
	case StageQualityRejected:
		return "quality-rejected"
	case StageLivenessOnly:
		return "liveness-only"
	case StageUnmatched:
		return "unmatched"
	case StageMatched:
		return "matched"
	case StagePanicked:
		return "panicked"
	}
	return "unknown"
}

// Outcome describes one finished job.
type Outcome struct {
	Session  uuid.UUID
	Mode     types.Mode
	FaceID   int64
	Stage    Stage
	Liveness types.LivenessResult
	Match    gallery.Match
	Message  string
	// Cached is true when the face id was remembered for later cache hits.
	Cached bool
	// Discarded is true when the stream stopped before the result could be published.
	Discarded bool
	Duration  time.Duration
}

// recognize runs off the admission path. It owns frame and always frees the session.
func (p *Processor) recognize(r *run, frame *types.Frame, face types.FaceBox) {
	start := time.Now()
	out := Outcome{Session: r.session.ID, Mode: p.cfg.Mode, FaceID: face.ID, Stage: StageLivenessOnly}
	defer func() {
		if rec := recover(); rec != nil {
			out.Stage = StagePanicked
			p.log.Error().Interface("panic", rec).Int64("face_id", face.ID).Msg("recognition job panicked")
		}
		frame.Release()
		p.stats.completed.Add(1)
		out.Duration = time.Since(start)
		r.session.Release()
		if p.onOutcome != nil {
			p.onOutcome(out)
		}
	}()

	quality, err := p.recognizer.AssessQuality(frame, face)
	if err != nil || quality <= QualityThreshold {
		out.Stage = StageQualityRejected
		p.log.Debug().Err(err).Float32("quality", quality).Int64("face_id", face.ID).Msg("face below quality gate")
		return
	}

	out.Liveness = p.checkLiveness(frame, face)
	live := out.Liveness.State == types.LivenessLive
	gen := p.generation()

	switch {
	case !live:
		out.Message = p.livenessMessage(out.Liveness.State)
	case p.cfg.Mode == types.ModeIR:
		out.Message = p.livenessMessage(out.Liveness.State)
		out.Cached = true
	default:
		gen = p.match(frame, face, &out, gen)
	}

	if face.ID == 0 {
		out.Cached = false
	}
	if r.stopped.Load() {
		out.Discarded = true
		out.Cached = false
		return
	}
	r.overlay.SetUnit(TrackUnit{Message: out.Message, Liveness: out.Liveness.State})
	if out.Cached {
		r.session.cache.Remember(face.ID, gen)
	}
}

// match extracts the probe and ranks it against the gallery. Extraction failure leaves the
// liveness message in place and the face uncached so it is retried. It returns the generation
// of the gallery snapshot it ranked against, or gen when it never took one.
func (p *Processor) match(frame *types.Frame, face types.FaceBox, out *Outcome, gen uint64) uint64 {
	out.Message = p.livenessMessage(out.Liveness.State)

	feature, err := p.recognizer.ExtractFeature(frame, face)
	if err != nil || feature.Empty() {
		p.log.Warn().Err(err).Int64("face_id", face.ID).Msg("feature extraction failed")
		return gen
	}
	// copied out so nothing references engine memory once the frame is released
	probe := feature.Clone()
	out.Cached = true
	out.Stage = StageUnmatched

	if p.gallery == nil {
		return gen
	}
	entries, gen := p.gallery.Snapshot()
	res := gallery.Rank(p.recognizer, probe, entries, p.cfg.SimilarityThreshold)
	if res.Anomalies > 0 {
		p.stats.anomalies.Add(uint64(res.Anomalies))
		p.log.Warn().Int("count", res.Anomalies).Int64("face_id", face.ID).Msg("non-finite similarity treated as zero")
	}
	if res.Errors > 0 {
		p.log.Warn().Int("count", res.Errors).Int64("face_id", face.ID).Msg("compare failed, scored as zero")
	}
	if res.Found {
		out.Stage = StageMatched
		out.Match = res.Match
		out.Message = fmt.Sprintf("%d %.2f %s", res.Index, res.Similarity, out.Liveness.State)
	}
	return gen
}

func (p *Processor) checkLiveness(frame *types.Frame, face types.FaceBox) types.LivenessResult {
	score, err := p.recognizer.LivenessScore(frame, face, p.cfg.Mode)
	if err != nil {
		p.log.Warn().Err(err).Int64("face_id", face.ID).Msg("liveness check failed")
		return types.LivenessResult{State: types.LivenessUndetermined, Code: engine.Code(err)}
	}
	res := types.LivenessResult{State: types.LivenessNotLive, Score: score}
	if score > p.cfg.LivenessThreshold {
		res.State = types.LivenessLive
	}
	return res
}

func (p *Processor) livenessMessage(l types.Liveness) string {
	if p.cfg.Mode == types.ModeIR {
		return "IR " + l.String()
	}
	return l.String()
}
