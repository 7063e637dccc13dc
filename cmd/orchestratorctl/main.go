// Command orchestratorctl is the admin CLI for a running orchestratord:
// "status", "flush-stuck", and "flush-job <id>" (spec.md §6/§9).
package main

import (
	"os"

	"github.com/caic-xyz/orchestrator/internal/ctl"
)

func main() {
	if err := ctl.Execute(); err != nil {
		os.Exit(1)
	}
}
