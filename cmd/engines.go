package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/faceguard/internal/engine"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/andresmejia3/faceguard/internal/utils"
)

// engineSpec is one engine process.
type engineSpec struct {
	ID   int
	Mode engine.DetectMode
}

// streamEngines is the pair of engines one stream runs on.
type streamEngines struct {
	Detector   engineSpec
	Recognizer engineSpec
}

// planEngines assigns engines to streams. RGB tracks on a video-mode engine and recognises on an
// image-mode one. IR does both on a video-mode engine of its own. No engine serves two streams.
func planEngines(dual bool) map[types.Mode]streamEngines {
	plan := map[types.Mode]streamEngines{
		types.ModeRGB: {
			Detector:   engineSpec{ID: 0, Mode: engine.DetectVideo},
			Recognizer: engineSpec{ID: 1, Mode: engine.DetectImage},
		},
	}
	if dual {
		ir := engineSpec{ID: 2, Mode: engine.DetectVideo}
		plan[types.ModeIR] = streamEngines{Detector: ir, Recognizer: ir}
	}
	return plan
}

// startEngines starts every engine the plan names once, keyed by id.
func startEngines(ctx context.Context, plan map[types.Mode]streamEngines) map[int]*engine.Python {
	started := make(map[int]*engine.Python)
	for _, mode := range []types.Mode{types.ModeRGB, types.ModeIR} {
		se, ok := plan[mode]
		if !ok {
			continue
		}
		for _, spec := range []engineSpec{se.Detector, se.Recognizer} {
			if _, ok := started[spec.ID]; !ok {
				started[spec.ID] = startEngine(ctx, spec.ID, spec.Mode)
			}
		}
	}
	return started
}

// startEngine spawns and activates one engine process. Any failure here is fatal.
func startEngine(ctx context.Context, id int, mode engine.DetectMode) *engine.Python {
	if !Cfg.HasCredentials() {
		utils.Die("Engine credentials missing", errors.New("set FACE_APP_ID, FACE_SDK_KEY and FACE_ACTIVE_KEY (or [engine] in the config file)"), nil)
	}

	eng, err := engine.NewPython(ctx, id, engine.PythonConfig{
		Interpreter: Cfg.Engine.Python,
		Script:      Cfg.Engine.Script,
		Mode:        mode,
		DetectScale: Cfg.Engine.DetectScale,
		MaxFaces:    Cfg.Engine.MaxFaces,
	})
	if err != nil {
		utils.Die(fmt.Sprintf("Engine %d failed to initialise", id), err, nil)
	}
	if err := eng.Activate(Cfg.Engine.AppID, Cfg.Engine.SDKKey, Cfg.Engine.ActiveKey); err != nil {
		cmd := eng.Cmd
		eng.Close()
		utils.Die(fmt.Sprintf("Engine %d activation failed (code %d)", id, engine.Code(err)), err, cmd)
	}
	Log.Debug().Int("engine", id).Str("mode", string(mode)).Msg("engine ready")
	return eng
}

// loadGallery fills a gallery from the store, in enrollment order. With --memory it starts empty.
func loadGallery(ctx context.Context) *gallery.Gallery {
	gal := gallery.New()
	if DB == nil {
		return gal
	}
	entries, err := DB.LoadEntries(ctx)
	if err != nil {
		utils.Die("Failed to load gallery", err, nil)
	}
	gal.Load(entries)
	fmt.Fprintf(os.Stderr, "🗂️  Loaded %d gallery entries\n", gal.Len())
	return gal
}
