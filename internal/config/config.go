// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/rewind/internal/domain/timeline"
)

// Retention kinds accepted in RetentionKind.
const (
	RetentionEntries = "entries"
	RetentionAge     = "age"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory capture queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of capture workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many sample ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// RetentionKind selects the default retention policy: entries or age.
	RetentionKind string `koanf:"retention_kind"`

	// RetentionMaxEntries bounds each track under entries retention.
	RetentionMaxEntries int `koanf:"retention_max_entries"`

	// RetentionMaxAge bounds each track under age retention.
	RetentionMaxAge time.Duration `koanf:"retention_max_age"`

	// Compaction coalesces runs of equal values on new timelines.
	Compaction bool `koanf:"compaction"`

	// MaxCursors caps the number of open playback cursors.
	MaxCursors int `koanf:"max_cursors"`

	// TracingEndpoint is the OTLP/HTTP collector host:port; empty disables export.
	TracingEndpoint string `koanf:"tracing_endpoint"`

	// ServiceName is reported as service.name on traces.
	ServiceName string `koanf:"service_name"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          500_000,
		RetentionKind:       RetentionEntries,
		RetentionMaxEntries: 4096,
		RetentionMaxAge:     5 * time.Minute,
		MaxCursors:          1024,
		ServiceName:         "rewind",
	}
}

// Retention returns the default retention policy described by the config.
func (c *Config) Retention() (timeline.Retention, error) {
	var r timeline.Retention
	switch strings.ToLower(strings.TrimSpace(c.RetentionKind)) {
	case RetentionEntries:
		r = timeline.MaxEntries(c.RetentionMaxEntries)
	case RetentionAge:
		r = timeline.MaxAge(c.RetentionMaxAge)
	default:
		return timeline.Retention{}, fmt.Errorf("%w: unknown retention_kind %q", ErrInvalidConfig, c.RetentionKind)
	}
	if err := r.Validate(); err != nil {
		return timeline.Retention{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return r, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxCursors <= 0:
		return fmt.Errorf("%w: max_cursors must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	_, err := c.Retention()
	return err
}
