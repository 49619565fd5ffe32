// stratus-reports collects block, reward, schedule and telemetry data from a
// Solana cluster and writes CSV reports.
package main

import "github.com/fortiblox/stratus-reports/internal/cmd"

// Version information set via ldflags during build
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.Exit(err)
	}
}
