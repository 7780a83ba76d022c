package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/faceguard/internal/utils"
)

var labelCmd = &cobra.Command{
	Use:   "label <index> <name>",
	Short: "Rename an enrolled gallery entry",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		index, name, err := parseLabelArgs(args)
		if err != nil {
			utils.Die("Invalid label arguments", err, nil)
		}
		runLabel(cmd.Context(), index, name)
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func parseLabelArgs(args []string) (int, string, error) {
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, "", fmt.Errorf("index %q is not a number", args[0])
	}
	if index < 0 {
		return 0, "", fmt.Errorf("index must not be negative, got %d", index)
	}
	name := strings.TrimSpace(args[1])
	if name == "" {
		return 0, "", errors.New("name must not be empty")
	}
	return index, name, nil
}

func runLabel(ctx context.Context, index int, name string) {
	requireDB("label")

	id, err := DB.EntryID(ctx, index)
	if err != nil {
		utils.Die("Failed to find gallery entry", err, nil)
	}
	if err := DB.RenameEntry(ctx, id, name); err != nil {
		utils.Die("Failed to label gallery entry", err, nil)
	}

	fmt.Printf("✅ Entry #%d labeled as '%s'\n", index, name)
}
