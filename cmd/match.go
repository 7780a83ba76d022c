package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/faceguard/internal/engine"
	"github.com/andresmejia3/faceguard/internal/enroll"
	"github.com/andresmejia3/faceguard/internal/utils"
)

var matchThreshold float32

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Compare the largest face in a photo against every gallery entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMatch(cmd.Context(), args[0], matchThreshold)
	},
}

func init() {
	matchCmd.Flags().Float32VarP(&matchThreshold, "threshold", "t", 0, "Similarity a match must exceed (default from config, 0.8)")
	rootCmd.AddCommand(matchCmd)
}

func validateThreshold(t float32) error {
	if t < 0 || t > 1 {
		return fmt.Errorf("must be between 0.0 and 1.0, got %.2f", t)
	}
	return nil
}

func runMatch(ctx context.Context, path string, threshold float32) {
	requireDB("match")
	if err := validateThreshold(threshold); err != nil {
		utils.Die("Invalid match threshold", err, nil)
	}
	if threshold == 0 {
		threshold = Cfg.Thresholds.Similarity
	}

	img, err := enroll.LoadImage(path)
	if err != nil {
		utils.Die("Unable to use probe image", err, nil)
	}

	gal := loadGallery(ctx)
	if gal.Len() == 0 {
		utils.Die("Nothing to match against", enroll.ErrEmptyGallery, nil)
	}

	eng := startEngine(ctx, 0, engine.DetectImage)
	defer eng.Close()

	report, err := enroll.New(eng, gal, nil, nil, Log).Match(ctx, enroll.Input{Source: path, Image: img}, threshold)
	switch {
	case errors.Is(err, engine.ErrNoFace):
		utils.Die("No face found in probe image", err, nil)
	case errors.Is(err, enroll.ErrLowQuality):
		utils.Die("Probe face quality too low", err, nil)
	case errors.Is(err, enroll.ErrNoFeature):
		utils.Die("Could not extract a feature from the probe face", err, nil)
	case err != nil:
		utils.Die("Match failed", err, nil)
	}

	entries, _ := gal.Snapshot()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INDEX\tLABEL\tSIMILARITY")
	fmt.Fprintln(w, "-----\t-----\t----------")
	for i, score := range report.Scores {
		fmt.Fprintf(w, "%d\t%s\t%.4f\n", i, entries[i].Label, score)
	}
	w.Flush()

	if report.Anomalies > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  %d similarities were not finite and are shown as 0\n", report.Anomalies)
	}
	if report.Found {
		fmt.Printf("🎯 Best match: #%d '%s' (%.4f > %.2f)\n", report.Index, report.Label, report.Similarity, threshold)
	} else {
		fmt.Printf("🤷 No gallery entry above %.2f\n", threshold)
	}
}
