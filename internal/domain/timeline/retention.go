package timeline

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RetentionKind selects how a track bounds its history.
type RetentionKind uint8

const (
	// RetainEntries keeps the newest N entries per track.
	RetainEntries RetentionKind = iota + 1
	// RetainAge keeps entries no older than a window behind the newest one.
	RetainAge
)

// Retention bounds how much history each track of a timeline keeps.
// Retention values are comparable with ==.
type Retention struct {
	Kind    RetentionKind
	Entries int
	Window  float64 // seconds, in the timeline's clock
}

// MaxEntries keeps at most n entries per track, dropping the oldest first.
func MaxEntries(n int) Retention {
	return Retention{Kind: RetainEntries, Entries: n}
}

// MaxAge keeps entries whose timestamp is within window of the newest
// appended timestamp. Eviction happens on append.
func MaxAge(window time.Duration) Retention {
	return Retention{Kind: RetainAge, Window: window.Seconds()}
}

// MaxAgeSeconds is MaxAge for callers that already work in clock seconds.
func MaxAgeSeconds(window float64) Retention {
	return Retention{Kind: RetainAge, Window: window}
}

// Validate reports ErrInvalidPolicy for unusable policies.
func (r Retention) Validate() error {
	switch r.Kind {
	case RetainEntries:
		if r.Entries < 1 {
			return fmt.Errorf("%w: max entries must be >= 1, got %d", ErrInvalidPolicy, r.Entries)
		}
	case RetainAge:
		if !(r.Window > 0) || math.IsInf(r.Window, 0) {
			return fmt.Errorf("%w: max age must be a positive finite window, got %g", ErrInvalidPolicy, r.Window)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidPolicy, r.Kind)
	}
	return nil
}

func (r Retention) String() string {
	switch r.Kind {
	case RetainEntries:
		return fmt.Sprintf("max_entries(%d)", r.Entries)
	case RetainAge:
		return fmt.Sprintf("max_age(%gs)", r.Window)
	default:
		return "retention(invalid)"
	}
}

// Policy decides how a value between two samples is resolved.
type Policy uint8

const (
	// Hold returns the last value at or before the query time.
	Hold Policy = iota
	// Interpolate blends the bracketing samples for numeric kinds and holds
	// for everything else.
	Interpolate
)

func (p Policy) String() string {
	if p == Interpolate {
		return "interpolate"
	}
	return "hold"
}

// ParsePolicy accepts "hold" (also empty) and "interpolate"/"lerp".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hold":
		return Hold, nil
	case "interpolate", "lerp":
		return Interpolate, nil
	default:
		return Hold, fmt.Errorf("unknown sampling policy %q", s)
	}
}
