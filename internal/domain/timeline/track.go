// Package timeline stores the recorded history of an object's properties.
//
// A Track is an append-only, time-ordered ring of samples for one property.
// A Timeline groups the tracks of one object under a shared retention policy
// and a read-write lock. Lookups are binary searches over the ring, so point
// queries cost O(log n) regardless of how the caller moves through time.
package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/rewind/internal/domain/value"
)

const minTrackCapacity = 8

// Sample is one recorded value. Until equals Time unless the track
// coalesced a run of equal consecutive values, in which case Until is the
// timestamp of the last sample of the run.
type Sample struct {
	Time  float64     `json:"t"`
	Until float64     `json:"until"`
	Value value.Value `json:"value"`
}

// TrackStats are cumulative counters for one track.
type TrackStats struct {
	Len      int    `json:"len"`
	Appended uint64 `json:"appended"`
	Rejected uint64 `json:"rejected"`
	Evicted  uint64 `json:"evicted"`
}

// TrackOption configures a Track.
type TrackOption func(*Track)

// WithTrackCompaction coalesces consecutive equal values into one entry.
// Age-bounded tracks ignore it: a run keeps only its first and last
// timestamps, so it cannot be trimmed exactly at the age cutoff.
func WithTrackCompaction(enabled bool) TrackOption {
	return func(t *Track) {
		t.compact = enabled
	}
}

// Track is the history of a single property.
//
// Track is not safe for concurrent use; Timeline provides the locking.
type Track struct {
	buf       []Sample // ring, oldest at head
	head      int
	n         int
	retention Retention
	compact   bool

	appended uint64
	rejected uint64
	evicted  uint64
}

// NewTrack builds an empty track bounded by retention.
func NewTrack(retention Retention, opts ...TrackOption) (*Track, error) {
	if err := retention.Validate(); err != nil {
		return nil, err
	}
	t := &Track{retention: retention}
	for _, opt := range opts {
		opt(t)
	}
	if retention.Kind == RetainAge {
		t.compact = false
	}
	return t, nil
}

func (t *Track) at(i int) *Sample {
	return &t.buf[(t.head+i)%len(t.buf)]
}

func (t *Track) last() *Sample {
	return t.at(t.n - 1)
}

// Append records v at ts. Timestamps must be strictly increasing; a rejected
// append leaves the recorded samples untouched.
func (t *Track) Append(ts float64, v value.Value) error {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		t.rejected++
		return fmt.Errorf("%w: non-finite timestamp %v", ErrNonMonotonicTime, ts)
	}
	if !v.IsValid() {
		t.rejected++
		return fmt.Errorf("%w: value has no kind", ErrInvalidSample)
	}
	if t.n > 0 {
		if prev := t.last(); ts <= prev.Until {
			t.rejected++
			return fmt.Errorf("%w: %g <= %g", ErrNonMonotonicTime, ts, prev.Until)
		}
	}

	t.appended++
	if t.compact && t.n > 0 && value.Equal(t.last().Value, v) {
		t.last().Until = ts
	} else {
		if t.retention.Kind == RetainEntries && t.n == t.retention.Entries {
			t.popFront()
		}
		t.pushBack(Sample{Time: ts, Until: ts, Value: v})
	}

	if t.retention.Kind == RetainAge {
		cutoff := ts - t.retention.Window
		for t.n > 1 && t.at(0).Until < cutoff {
			t.popFront()
		}
	}
	return nil
}

func (t *Track) pushBack(s Sample) {
	if t.n == len(t.buf) {
		t.grow()
	}
	t.buf[(t.head+t.n)%len(t.buf)] = s
	t.n++
}

func (t *Track) popFront() {
	t.buf[t.head] = Sample{}
	t.head = (t.head + 1) % len(t.buf)
	t.n--
	t.evicted++
}

// grow doubles the ring, capped at the entry limit when one applies.
func (t *Track) grow() {
	size := len(t.buf) * 2
	if size < minTrackCapacity {
		size = minTrackCapacity
	}
	if t.retention.Kind == RetainEntries && size > t.retention.Entries {
		size = t.retention.Entries
	}
	next := make([]Sample, size)
	for i := 0; i < t.n; i++ {
		next[i] = *t.at(i)
	}
	t.buf = next
	t.head = 0
}

// search returns the index of the last entry starting at or before ts, or -1.
func (t *Track) search(ts float64) int {
	return sort.Search(t.n, func(i int) bool { return t.at(i).Time > ts }) - 1
}

// ValueAt resolves the property value at ts.
func (t *Track) ValueAt(ts float64, policy Policy) (value.Value, error) {
	if t.n == 0 {
		return value.Value{}, fmt.Errorf("%w: track is empty", ErrNoData)
	}
	if math.IsNaN(ts) {
		return value.Value{}, fmt.Errorf("%w: NaN timestamp", ErrNoData)
	}
	i := t.search(ts)
	if i < 0 {
		return value.Value{}, fmt.Errorf("%w: %g precedes first sample at %g", ErrNoData, ts, t.at(0).Time)
	}
	cur := t.at(i)
	if policy != Interpolate || ts <= cur.Until || i == t.n-1 {
		return cur.Value, nil
	}
	next := t.at(i + 1)
	if !cur.Value.Interpolable() || !next.Value.Interpolable() {
		return cur.Value, nil
	}
	alpha := (ts - cur.Until) / (next.Time - cur.Until)
	return value.Lerp(cur.Value, next.Value, alpha), nil
}

// Range returns the entries overlapping [from, to], oldest first.
func (t *Track) Range(from, to float64) []Sample {
	if t.n == 0 || to < from {
		return nil
	}
	start := sort.Search(t.n, func(i int) bool { return t.at(i).Until >= from })
	var out []Sample
	for i := start; i < t.n; i++ {
		s := t.at(i)
		if s.Time > to {
			break
		}
		out = append(out, *s)
	}
	return out
}

// Samples returns a copy of every retained entry, oldest first.
func (t *Track) Samples() []Sample {
	out := make([]Sample, t.n)
	for i := range out {
		out[i] = *t.at(i)
	}
	return out
}

// Len is the number of retained entries.
func (t *Track) Len() int { return t.n }

// Span returns the first and last retained timestamps.
func (t *Track) Span() (first, last float64, ok bool) {
	if t.n == 0 {
		return 0, 0, false
	}
	return t.at(0).Time, t.last().Until, true
}

// Clear drops every sample. Counters are kept.
func (t *Track) Clear() {
	t.buf = nil
	t.head = 0
	t.n = 0
}

// Stats returns the track counters.
func (t *Track) Stats() TrackStats {
	return TrackStats{
		Len:      t.n,
		Appended: t.appended,
		Rejected: t.rejected,
		Evicted:  t.evicted,
	}
}
