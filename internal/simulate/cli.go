package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/rewind/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures the logger to write to stdout and, when logFile is
// set, to that file as well. It returns a close function for the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	out := io.Writer(os.Stdout)
	closeFn := func() error { return nil }

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closeFn = file.Close
	}

	if err := logger.Init(logger.WithOutput(out), logger.WithService("rewind-sim")); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Rewind Simulator
================

Drives a running recorder with synthetic object trajectories, then checks
reconstructed state and cursor playback against locally expected values.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -objects int
        Number of objects to track (default 50)
  -samples int
        Steps generated per object (default 200)
  -step float
        Seconds between steps (default 0.1)
  -queries int
        Random state queries per object (default 20)
  -cursors int
        Objects scrubbed with a cursor (default 5)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        Max wait for the capture queue to drain (default 30s)
  -output string
        Write generated samples to this JSON file
  -log string
        Also write logs to this file
  -keep
        Leave objects tracked after the run
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  go run ./cmd/simulate -objects 500 -samples 1000 -workers 16
  go run ./cmd/simulate -url http://localhost:8080 -keep -verbose
`)
}
