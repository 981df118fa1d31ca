package simulate

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/rewind/internal/domain/value"
)

// ErrInvalidConfig reports unusable run parameters.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL          string        // Base URL of the service
	Objects          int           // Number of objects to track
	SamplesPerObject int           // Samples generated per object and property
	Step             float64       // Seconds between consecutive samples
	Queries          int           // Random state queries per object
	Cursors          int           // Objects scrubbed with a cursor
	Workers          int           // Number of concurrent workers
	Timeout          time.Duration // HTTP request timeout
	SettleTimeout    time.Duration // Max wait for the capture queue to drain
	OutputFile       string        // Output file for generated samples
	Keep             bool          // Leave objects tracked after the run
	Verbose          bool          // Enable verbose logging
}

// Sample is the wire form of a captured sample.
type Sample struct {
	SampleID   string      `json:"sample_id"`
	ObjectID   string      `json:"object_id"`
	PropertyID string      `json:"property_id"`
	T          float64     `json:"t"`
	Value      value.Value `json:"value"`
}

// AckResponse represents the response from sample submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	SamplesGenerated int
	SamplesSubmitted int
	SamplesAccepted  int
	SamplesDuplicate int
	SamplesFailed    int
	StateChecks      int
	StateMismatches  int
	CursorChecks     int
	CursorMismatches int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// Validate checks that the run parameters are usable.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Objects < 1:
		return fmt.Errorf("%w: objects must be positive", ErrInvalidConfig)
	case c.SamplesPerObject < 2:
		return fmt.Errorf("%w: at least two samples per object are required", ErrInvalidConfig)
	case !(c.Step > 0):
		return fmt.Errorf("%w: step must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Queries < 0 || c.Cursors < 0:
		return fmt.Errorf("%w: queries and cursors must not be negative", ErrInvalidConfig)
	}
	return nil
}
