// Package simulate drives a running recorder over HTTP with synthetic
// trajectories and checks what it reconstructs.
package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/rewind/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// ErrVerificationFailed reports mismatching state or failed submissions.
var ErrVerificationFailed = errors.New("verification failed")

// Run executes the complete simulation.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting rewind simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("objects", config.Objects),
		logger.Int("samplesPerObject", config.SamplesPerObject),
		logger.Float64("step", config.Step),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("verbose", config.Verbose))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate trajectories
	trajs, err := generateTrajectories(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("trajectory generation failed: %w", err)
	}

	// Step 3: Start tracking every object
	if err := startTracking(ctx, config, client, trajs); err != nil {
		return stats, fmt.Errorf("start tracking failed: %w", err)
	}
	if !config.Keep {
		defer stopTracking(context.WithoutCancel(ctx), client, trajs)
	}

	// Step 4: Submit samples concurrently
	submitSamples(ctx, config, client, trajs, stats)

	// Step 5: Wait for the capture queue to drain
	if err := waitDrained(ctx, config, client); err != nil {
		return stats, fmt.Errorf("capture did not drain: %w", err)
	}

	// Step 6: Verify state and cursors
	if err := verifyStates(ctx, config, client, trajs, stats); err != nil {
		return stats, fmt.Errorf("state verification failed: %w", err)
	}
	if err := verifyCursors(ctx, config, client, trajs, stats); err != nil {
		return stats, fmt.Errorf("cursor verification failed: %w", err)
	}

	// Step 7: Save samples to file
	if config.OutputFile != "" {
		if err := saveSamplesToFile(ctx, config.OutputFile, trajs); err != nil {
			log.Warn(ctx, "failed to save samples to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if stats.SamplesFailed > 0 || stats.StateMismatches > 0 || stats.CursorMismatches > 0 {
		return stats, fmt.Errorf("%w: %d failed samples, %d state mismatches, %d cursor mismatches",
			ErrVerificationFailed, stats.SamplesFailed, stats.StateMismatches, stats.CursorMismatches)
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")
	// The service answers with Prometheus metrics; any 200 is healthy.
	return client.expect(ctx, http.StatusOK, http.MethodGet, "/healthz", nil, nil)
}

func startTracking(ctx context.Context, config *Config, client *HTTPClient, trajs []*Trajectory) error {
	body := map[string]any{
		"retention": map[string]any{"kind": "entries", "max_entries": retentionFor(config.SamplesPerObject)},
	}
	for _, traj := range trajs {
		path := "/objects/" + url.PathEscape(traj.ObjectID)
		status, err := client.do(ctx, http.MethodPost, path, body, nil)
		if err != nil {
			return err
		}
		// 200 means a previous run left the object tracked with the same policy.
		if status != http.StatusCreated && status != http.StatusOK {
			return fmt.Errorf("POST %s: unexpected status %d", path, status)
		}
	}
	return nil
}

func stopTracking(ctx context.Context, client *HTTPClient, trajs []*Trajectory) {
	for _, traj := range trajs {
		_, _ = client.do(ctx, http.MethodDelete, "/objects/"+url.PathEscape(traj.ObjectID), nil, nil)
	}
}

// waitDrained polls /stats until no accepted sample is pending.
func waitDrained(ctx context.Context, config *Config, client *HTTPClient) error {
	logger.Get().Info(ctx, "waiting for samples to be recorded")

	deadline := time.Now().Add(config.SettleTimeout)
	for {
		var stats struct {
			Pending int64 `json:"pending"`
		}
		if err := client.expect(ctx, http.StatusOK, http.MethodGet, "/stats", nil, &stats); err != nil {
			return err
		}
		if stats.Pending == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%d samples still pending after %s", stats.Pending, config.SettleTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(DrainPollInterval):
		}
	}
}

// saveSamplesToFile writes every generated sample as a JSON array.
func saveSamplesToFile(ctx context.Context, filename string, trajs []*Trajectory) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(ctx, "failed to close file", logger.Error(err))
		}
	}()

	var all []Sample
	for _, traj := range trajs {
		all = append(all, traj.Samples...)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	logger.Get().Info(ctx, "samples saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, samplesPerSecond float64

	if stats.SamplesSubmitted > 0 {
		acceptRate = float64(stats.SamplesAccepted) / float64(stats.SamplesSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		samplesPerSecond = float64(stats.SamplesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("samplesGenerated", stats.SamplesGenerated),
		logger.Int("samplesSubmitted", stats.SamplesSubmitted),
		logger.Int("samplesAccepted", stats.SamplesAccepted),
		logger.Int("samplesDuplicate", stats.SamplesDuplicate),
		logger.Int("samplesFailed", stats.SamplesFailed),
		logger.Int("stateChecks", stats.StateChecks),
		logger.Int("stateMismatches", stats.StateMismatches),
		logger.Int("cursorChecks", stats.CursorChecks),
		logger.Int("cursorMismatches", stats.CursorMismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("samplesPerSecond", samplesPerSecond))
}
