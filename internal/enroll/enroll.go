// Package enroll implements the static image paths: building the gallery from photos and
// matching a single probe photo against it. Both are serial and user-initiated.
package enroll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/andresmejia3/faceguard/internal/engine"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/imaging"
	"github.com/andresmejia3/faceguard/internal/stream"
	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrLowQuality      = errors.New("face quality too low")
	ErrNoFeature       = errors.New("no feature could be extracted from the face")
	ErrEmptyGallery    = errors.New("gallery is empty, enroll faces first")
	ErrStreamingActive = errors.New("gallery cannot change while streaming is active")
	ErrGalleryChanging = errors.New("gallery is being changed, streaming cannot start until that finishes")
)

// Saver persists an enrolled entry. The store satisfies it.
type Saver interface {
	InsertEntry(ctx context.Context, entry types.GalleryEntry) (int64, error)
}

// Guard keeps gallery changes and live streaming apart. BeginGalleryChange fails while
// streaming, and streaming cannot start until done is called. The coordinator satisfies it.
type Guard interface {
	BeginGalleryChange() (done func(), err error)
}

// Input is one image offered for enrollment.
type Input struct {
	Label  string
	Source string // path or upload name, for messages only
	Image  image.Image
}

// Result is the fate of one Input. Index is the gallery index, or -1 when rejected.
type Result struct {
	Label  string
	Source string
	Index  int
	Err    error
}

// candidate is an image that passed screening and waits for extraction.
type candidate struct {
	input     Input
	frame     *types.Frame
	face      types.FaceBox
	thumbnail []byte
}

type Enroller struct {
	engine  engine.Capability
	gallery *gallery.Gallery
	saver   Saver
	guard   Guard
	log     zerolog.Logger
}

// New builds an Enroller. saver and guard may be nil (in-memory gallery, no streaming).
func New(eng engine.Capability, gal *gallery.Gallery, saver Saver, guard Guard, log zerolog.Logger) *Enroller {
	return &Enroller{engine: eng, gallery: gal, saver: saver, guard: guard, log: log}
}

// screen detects faces, keeps the largest, and applies the quality gate. On success the
// caller owns the candidate's frame.
func (e *Enroller) screen(in Input) (*candidate, error) {
	frame := types.FrameFromImage(in.Image, types.PixelBGR24)

	faces, err := e.engine.Detect(frame)
	if err != nil {
		frame.Release()
		return nil, err
	}
	idx := types.LargestFace(faces)
	if idx < 0 {
		frame.Release()
		return nil, engine.ErrNoFace
	}
	face := faces[idx]

	quality, err := e.engine.AssessQuality(frame, face)
	if err != nil {
		frame.Release()
		return nil, err
	}
	if quality <= stream.QualityThreshold {
		frame.Release()
		return nil, fmt.Errorf("%w: %.2f", ErrLowQuality, quality)
	}

	c := &candidate{input: in, frame: frame, face: face}
	r := image.Rect(face.Rect.Left, face.Rect.Top, face.Rect.Right, face.Rect.Bottom)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, imaging.Crop(in.Image, r.Add(in.Image.Bounds().Min)), nil); err == nil {
		c.thumbnail = buf.Bytes()
	}
	return c, nil
}

// Enroll screens every input, then extracts features serially for the ones that passed and
// appends them to the gallery in input order. progress, if set, sees every result.
func (e *Enroller) Enroll(ctx context.Context, inputs []Input, progress func(Result)) ([]Result, error) {
	if e.guard != nil {
		done, err := e.guard.BeginGalleryChange()
		if err != nil {
			return nil, err
		}
		defer done()
	}
	report := func(r Result) Result {
		if progress != nil {
			progress(r)
		}
		return r
	}

	results := make([]Result, len(inputs))
	for i, in := range inputs {
		results[i] = Result{Label: in.Label, Source: in.Source, Index: -1}
	}
	candidates := make([]*candidate, len(inputs))
	defer func() {
		for _, c := range candidates {
			if c != nil {
				c.frame.Release()
			}
		}
	}()

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			skip(results, err)
			return results, err
		}
		c, err := e.screen(in)
		if err != nil {
			e.log.Info().Err(err).Str("source", in.Source).Msg("image rejected")
			results[i] = report(Result{Label: in.Label, Source: in.Source, Index: -1, Err: err})
			continue
		}
		candidates[i] = c
	}

	for i, c := range candidates {
		if c == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			skip(results, err)
			return results, err
		}
		results[i] = report(e.enrollOne(ctx, c))
	}
	return results, nil
}

// skip marks every result that was never reached with err.
func skip(results []Result, err error) {
	for i := range results {
		if results[i].Index < 0 && results[i].Err == nil {
			results[i].Err = err
		}
	}
}

func (e *Enroller) enrollOne(ctx context.Context, c *candidate) Result {
	res := Result{Label: c.input.Label, Source: c.input.Source, Index: -1}

	feature, err := e.engine.ExtractFeature(c.frame, c.face)
	if err != nil || feature.Empty() {
		res.Err = errors.Join(ErrNoFeature, err)
		return res
	}
	entry := types.GalleryEntry{Label: c.input.Label, Feature: feature.Clone(), Thumbnail: c.thumbnail}

	if e.saver != nil {
		if _, err := e.saver.InsertEntry(ctx, entry); err != nil {
			res.Err = fmt.Errorf("failed to save entry: %w", err)
			return res
		}
	}
	res.Index = e.gallery.AppendEntry(entry)
	e.log.Info().Int("index", res.Index).Str("label", res.Label).Int("feature_bytes", feature.Size()).Msg("face enrolled")
	return res
}

// Report is the outcome of matching one probe image.
type Report struct {
	gallery.Result
	Entries int
}

// Match screens the probe, extracts its feature, and ranks it against the whole gallery.
func (e *Enroller) Match(ctx context.Context, in Input, threshold float32) (Report, error) {
	entries, _ := e.gallery.Snapshot()
	if len(entries) == 0 {
		return Report{}, ErrEmptyGallery
	}

	c, err := e.screen(in)
	if err != nil {
		return Report{}, err
	}
	defer c.frame.Release()

	feature, err := e.engine.ExtractFeature(c.frame, c.face)
	if err != nil || feature.Empty() {
		return Report{}, errors.Join(ErrNoFeature, err)
	}

	res := gallery.Rank(e.engine, feature.Clone(), entries, threshold)
	if res.Anomalies > 0 {
		e.log.Warn().Int("count", res.Anomalies).Msg("non-finite similarity treated as zero")
	}
	return Report{Result: res, Entries: len(entries)}, ctx.Err()
}
