package cmd

import (
	"fmt"
	"os"

	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitConnectivity = 2
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case rpcfetch.IsConnectivity(err):
		return ExitConnectivity
	default:
		return ExitFailure
	}
}

// Exit prints err and terminates the process with ExitCode(err).
func Exit(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(ExitCode(err))
}
