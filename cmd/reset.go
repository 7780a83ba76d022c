package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/faceguard/internal/utils"
)

var (
	resetDrop bool
	resetYes  bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every gallery entry",
	Long:  "Clears the stored gallery. With --drop the table itself is dropped and recreated on the next run.",
	Run: func(cmd *cobra.Command, args []string) {
		requireDB("reset")
		reader := bufio.NewReader(os.Stdin)

		if resetDrop {
			if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP the gallery table?") {
				fmt.Println("🗑️  Dropping gallery table...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		} else if resetYes || confirm(reader, "⚠️  Are you sure you want to delete every gallery entry?") {
			fmt.Println("🗑️  Clearing gallery...")
			if err := DB.Clear(cmd.Context()); err != nil {
				utils.Die("Failed to clear gallery", err, nil)
			}
		}

		fmt.Println("✨ Reset complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDrop, "drop", false, "Drop the gallery table instead of emptying it")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
