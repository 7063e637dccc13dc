package ctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(flushStuckCmd)
}

var flushStuckCmd = &cobra.Command{
	Use:   "flush-stuck",
	Short: "Recover every stuck running job across all projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client().FlushStuck()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return err
		}
		fmt.Printf("recovered %d job(s)\n", n)
		return nil
	},
}
