package ctl

import (
	"github.com/spf13/cobra"
)

var adminAddr string

var rootCmd = &cobra.Command{
	Use:   "orchestratorctl",
	Short: "Inspect and administer a running orchestratord",
	Long: `orchestratorctl talks to a running orchestratord over its admin HTTP
surface: project queue status, recovering stuck jobs, and deleting a
single job by id.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", "http://localhost:8081", "orchestratord admin HTTP base URL")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func client() *Client {
	return NewClient(adminAddr)
}
