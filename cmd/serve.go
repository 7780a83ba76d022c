package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/faceguard/internal/capture"
	"github.com/andresmejia3/faceguard/internal/console"
	"github.com/andresmejia3/faceguard/internal/coordinator"
	"github.com/andresmejia3/faceguard/internal/enroll"
	"github.com/andresmejia3/faceguard/internal/stream"
	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/andresmejia3/faceguard/internal/utils"
)

// ServeOptions are the serve flags. Zero values leave the configuration untouched.
type ServeOptions struct {
	Addr      string
	RGBSource string
	IRSource  string
	RGBOnly   bool
	NoStart   bool
}

var serveOpts ServeOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live RGB/IR liveness pipeline and the operator console",
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOpts.Addr, "addr", "a", "", "Console listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveOpts.RGBSource, "rgb-source", "", "Video file to replay instead of the RGB camera")
	serveCmd.Flags().StringVar(&serveOpts.IRSource, "ir-source", "", "Video file to replay instead of the IR camera")
	serveCmd.Flags().BoolVar(&serveOpts.RGBOnly, "rgb-only", false, "Never start the IR stream")
	serveCmd.Flags().BoolVar(&serveOpts.NoStart, "no-start", false, "Do not start streaming until requested from the console")
	rootCmd.AddCommand(serveCmd)
}

// applyServeOptions folds the flags into the camera and console configuration.
func applyServeOptions(opts ServeOptions) {
	if opts.Addr != "" {
		Cfg.Console.Addr = opts.Addr
	}
	if opts.RGBSource != "" {
		Cfg.Cameras.RGBSource = opts.RGBSource
	}
	if opts.IRSource != "" {
		Cfg.Cameras.IRSource = opts.IRSource
	}
}

// validateServeFlags rejects replay files that cannot be read.
func validateServeFlags(opts ServeOptions) error {
	for _, src := range []string{opts.RGBSource, opts.IRSource} {
		if src == "" {
			continue
		}
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("source %s: %w", src, err)
		}
		if info.IsDir() {
			return fmt.Errorf("source %s is a directory, expected a video file", src)
		}
	}
	if opts.RGBOnly && opts.IRSource != "" {
		return fmt.Errorf("--ir-source cannot be combined with --rgb-only")
	}
	return nil
}

// replaySources is the part of the camera configuration the plan depends on.
type replaySources struct {
	RGBSource string
	IRSource  string
}

// cameraCount is how many usable inputs exist. Replay files count as cameras of their own.
func cameraCount(cams replaySources, devices []int) int {
	n := len(devices)
	if cams.RGBSource != "" && cams.IRSource != "" {
		return 2
	}
	if cams.RGBSource != "" || cams.IRSource != "" {
		n++
	}
	return n
}

func startupPlan(opts ServeOptions, devices []int) coordinator.Plan {
	cams := replaySources{RGBSource: Cfg.Cameras.RGBSource, IRSource: Cfg.Cameras.IRSource}
	plan := coordinator.NewPlan(Cfg.Cameras.RGBIndex, Cfg.Cameras.IRIndex, cameraCount(cams, devices))
	if opts.RGBOnly {
		plan.Dual = false
		plan.Reason = "--rgb-only"
	}
	return plan
}

func captureInput(device int, file string) utils.CaptureInput {
	in := utils.CaptureInput{
		Width:  Cfg.Cameras.Width,
		Height: Cfg.Cameras.Height,
		FPS:    Cfg.Cameras.FPS,
	}
	if file != "" {
		in.Path = file
	} else {
		in.Device = utils.DeviceForIndex(device)
	}
	return in
}

func runServe(ctx context.Context, opts ServeOptions) {
	if err := validateServeFlags(opts); err != nil {
		utils.Die("Invalid serve flags", err, nil)
	}
	applyServeOptions(opts)

	devices := utils.ListCameras()
	plan := startupPlan(opts, devices)
	Log.Info().Ints("cameras", devices).Bool("dual", plan.Dual).Str("reason", plan.Reason).Msg("startup plan")
	if plan.Dual {
		fmt.Fprintf(os.Stderr, "📷 Dual camera mode: RGB %d, IR %d\n", plan.RGBIndex, plan.IRIndex)
	} else {
		fmt.Fprintf(os.Stderr, "📷 RGB-only mode (%s)\n", plan.Reason)
	}

	fmt.Fprintln(os.Stderr, "⚙️  Starting engines...")
	assign := planEngines(plan.Dual)
	engines := startEngines(ctx, assign)
	defer func() {
		for _, eng := range engines {
			eng.Close()
		}
	}()
	rgbEngines := assign[types.ModeRGB]
	rgbRecognizer := engines[rgbEngines.Recognizer.ID]

	gal := loadGallery(ctx)

	modes := []types.Mode{types.ModeRGB}
	if plan.Dual {
		modes = append(modes, types.ModeIR)
	}
	srv := console.New(console.Options{
		Addr:          Cfg.Console.Addr,
		SurfaceWidth:  Cfg.Console.SurfaceWidth,
		SurfaceHeight: Cfg.Console.SurfaceHeight,
		Modes:         modes,
	}, gal, Log)

	var clearer coordinator.GalleryClearer
	var saver enroll.Saver
	if DB != nil {
		clearer = DB
		saver = DB
	}
	coord := coordinator.New(gal, clearer, srv, Cfg.Workers, Log)
	defer coord.Close()

	hook := stream.WithOutcomeHook(coordinator.OutcomeLogger(Log))
	rgbProc := stream.NewProcessor(stream.Config{
		Mode:                types.ModeRGB,
		LivenessThreshold:   Cfg.Thresholds.RGBLiveness,
		SimilarityThreshold: Cfg.Thresholds.Similarity,
		TrustTrackIDs:       Cfg.Recognition.TrustTrackIDs,
	}, engines[rgbEngines.Detector.ID], rgbRecognizer, gal, coord, hook, stream.WithLogger(Log))
	coord.AddStream(rgbProc, capture.NewFFmpegSource(captureInput(plan.RGBIndex, Cfg.Cameras.RGBSource), types.PixelBGR24, Log))

	if plan.Dual {
		irEngines := assign[types.ModeIR]
		irProc := stream.NewProcessor(stream.Config{
			Mode:                types.ModeIR,
			LivenessThreshold:   Cfg.Thresholds.IRLiveness,
			SimilarityThreshold: Cfg.Thresholds.Similarity,
			TrustTrackIDs:       Cfg.Recognition.TrustTrackIDs,
		}, engines[irEngines.Detector.ID], engines[irEngines.Recognizer.ID], gal, coord, hook, stream.WithLogger(Log))
		coord.AddStream(irProc, capture.NewFFmpegSource(captureInput(plan.IRIndex, Cfg.Cameras.IRSource), types.PixelGray8, Log))
	}

	srv.Attach(coord, enroll.New(rgbRecognizer, gal, saver, coord, Log))

	if !opts.NoStart {
		if err := coord.Start(ctx); err != nil {
			utils.Die("Failed to start streaming", err, nil)
		}
	}

	fmt.Fprintf(os.Stderr, "🛰️  Console on %s (Ctrl+C to stop)\n", Cfg.Console.Addr)
	if err := srv.Run(ctx); err != nil {
		utils.ShowError("Console stopped", err, nil)
	}
	fmt.Fprintln(os.Stderr, "👋 Shutting down...")
}
