package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/rewind/internal/simulate"
)

// Default configuration constants.
const (
	defaultObjects  = 50
	defaultSamples  = 200
	defaultStep     = 0.1
	defaultQueries  = 20
	defaultCursors  = 5
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 30 * time.Second
	defaultSettle   = 30 * time.Second
	defaultDeadline = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		objects    = flag.Int("objects", defaultObjects, "Number of objects to track")
		samples    = flag.Int("samples", defaultSamples, "Steps generated per object")
		step       = flag.Float64("step", defaultStep, "Seconds between steps")
		queries    = flag.Int("queries", defaultQueries, "Random state queries per object")
		cursors    = flag.Int("cursors", defaultCursors, "Objects scrubbed with a cursor")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "Max wait for the capture queue to drain")
		outputFile = flag.String("output", "", "Write generated samples to this JSON file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		keep       = flag.Bool("keep", false, "Leave objects tracked after the run")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultDeadline)
	defer cancel()

	config := &simulate.Config{
		BaseURL:          *baseURL,
		Objects:          *objects,
		SamplesPerObject: *samples,
		Step:             *step,
		Queries:          *queries,
		Cursors:          *cursors,
		Workers:          *workers,
		Timeout:          *timeout,
		SettleTimeout:    *settle,
		OutputFile:       *outputFile,
		Keep:             *keep,
		Verbose:          *verbose,
	}

	if _, err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		_ = closeLog()
		os.Exit(1) //nolint:gocritic // deferred cleanup already ran above
	}
}
