package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/faceguard/internal/engine"
	"github.com/andresmejia3/faceguard/internal/enroll"
	"github.com/andresmejia3/faceguard/internal/utils"
)

var imageExtensions = map[string]bool{
	".bmp": true, ".jpg": true, ".jpeg": true, ".png": true,
	".pgm": true, ".ppm": true, ".pnm": true,
}

var enrollLabel string

var enrollCmd = &cobra.Command{
	Use:   "enroll <image|dir>...",
	Short: "Add faces from photos to the gallery",
	Long: "Each image is screened (face found, quality above the gate) before any feature is extracted. " +
		"Without --label, an entry is labelled with its file name.",
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runEnroll(cmd.Context(), args, enrollLabel)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollLabel, "label", "l", "", "Label for every enrolled face (default: file name)")
	rootCmd.AddCommand(enrollCmd)
}

// collectImages expands directories (one level) and keeps files with a known image extension, sorted.
func collectImages(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// labelFor is the gallery label of path: the flag value, or the file name without extension.
func labelFor(path, label string) string {
	if label != "" {
		return label
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runEnroll(ctx context.Context, args []string, label string) {
	paths, err := collectImages(args)
	if err != nil {
		utils.Die("Unable to read enrollment input", err, nil)
	}
	if len(paths) == 0 {
		utils.Die("No images to enroll", fmt.Errorf("no %s files found", "bmp/jpg/png/pgm/ppm"), nil)
	}

	gal := loadGallery(ctx)
	eng := startEngine(ctx, 0, engine.DetectImage)
	defer eng.Close()

	var saver enroll.Saver
	if DB != nil {
		saver = DB
	} else {
		fmt.Fprintln(os.Stderr, "⚠️  --memory: enrolled faces are not saved")
	}
	enroller := enroll.New(eng, gal, saver, nil, Log)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("🧬 Enrolling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var inputs []enroll.Input
	var failed []enroll.Result
	for _, p := range paths {
		img, err := enroll.LoadImage(p)
		if err != nil {
			failed = append(failed, enroll.Result{Label: labelFor(p, label), Source: p, Index: -1, Err: err})
			bar.Add(1)
			continue
		}
		inputs = append(inputs, enroll.Input{Label: labelFor(p, label), Source: p, Image: img})
	}

	results, err := enroller.Enroll(ctx, inputs, func(enroll.Result) { bar.Add(1) })
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		utils.Die("Enrollment interrupted", err, nil)
	}

	enrolled := 0
	for _, r := range append(failed, results...) {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "❌ %s: %v\n", r.Source, r.Err)
			continue
		}
		enrolled++
		fmt.Printf("✅ %s enrolled as #%d '%s'\n", r.Source, r.Index, r.Label)
	}
	fmt.Printf("✨ %d of %d images enrolled, gallery holds %d faces\n", enrolled, len(paths), gal.Len())
}
