package ctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(flushJobCmd)
}

var flushJobCmd = &cobra.Command{
	Use:   "flush-job <job-id>",
	Short: "Delete a single job unconditionally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().FlushJob(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return err
		}
		fmt.Printf("flushed job %s\n", args[0])
		return nil
	},
}
