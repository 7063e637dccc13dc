package ctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caic-xyz/orchestrator/internal/durationfmt"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <project-key>",
	Short: "Show a project's queue depth and worker liveness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := client().ProjectStats(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return err
		}

		worker := "✗ not running"
		if stats.WorkerAlive {
			worker = "✓ running"
		}
		fmt.Printf("Project       %s\n", stats.ProjectKey)
		fmt.Printf("Pending jobs  %d\n", stats.Pending)
		fmt.Printf("Running jobs  %d\n", stats.Running)
		fmt.Printf("Worker        %s\n", worker)
		fmt.Printf("Oldest running job age  %s\n", durationfmt.Format(stats.OldestRunningAgeSeconds))
		return nil
	},
}
