// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/rewind/internal/domain/value"
)

// ErrInvalidSample reports a capture request missing required fields.
var ErrInvalidSample = errors.New("invalid sample")

// Sample is one captured property value submitted by a client.
type Sample struct {
	SampleID   string      // unique id for idempotency
	ObjectID   string      // tracked object
	PropertyID string      // property of the object
	Time       float64     // sample time in seconds on the capture clock
	Value      value.Value // captured value
	ReceivedAt time.Time   // server receive time
}

// Validate checks the fields every capture path requires.
func (s *Sample) Validate() error {
	switch {
	case strings.TrimSpace(s.SampleID) == "":
		return fmt.Errorf("%w: sample_id is required", ErrInvalidSample)
	case strings.TrimSpace(s.ObjectID) == "":
		return fmt.Errorf("%w: object_id is required", ErrInvalidSample)
	case strings.TrimSpace(s.PropertyID) == "":
		return fmt.Errorf("%w: property_id is required", ErrInvalidSample)
	case math.IsNaN(s.Time) || math.IsInf(s.Time, 0):
		return fmt.Errorf("%w: time must be finite", ErrInvalidSample)
	case !s.Value.IsValid():
		return fmt.Errorf("%w: value is required", ErrInvalidSample)
	}
	return nil
}
