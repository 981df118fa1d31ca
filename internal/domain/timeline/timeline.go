package timeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/rewind/internal/domain/value"
)

// Option configures a Timeline.
type Option func(*Timeline)

// WithCompaction enables run coalescing on every track of the timeline.
func WithCompaction(enabled bool) Option {
	return func(tl *Timeline) {
		tl.compact = enabled
	}
}

// Span is a closed time interval.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Crossing is a sample whose timestamp was passed over by a cursor move.
type Crossing struct {
	Property string `json:"property"`
	Sample
}

// Stats aggregates the counters of all tracks of a timeline.
type Stats struct {
	Tracks   int    `json:"tracks"`
	Samples  int    `json:"samples"`
	Appended uint64 `json:"appended"`
	Rejected uint64 `json:"rejected"`
	Evicted  uint64 `json:"evicted"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Tracks += o.Tracks
	s.Samples += o.Samples
	s.Appended += o.Appended
	s.Rejected += o.Rejected
	s.Evicted += o.Evicted
}

// Timeline owns one track per recorded property of a single object.
//
// Writes must come from a single goroutine per timeline (the capture
// owner); the lock only keeps readers from observing a half-applied
// eviction.
type Timeline struct {
	mu        sync.RWMutex
	id        string
	retention Retention
	compact   bool
	tracks    map[string]*Track
}

// New creates an empty timeline for objectID.
func New(objectID string, retention Retention, opts ...Option) (*Timeline, error) {
	if err := retention.Validate(); err != nil {
		return nil, err
	}
	tl := &Timeline{
		id:        objectID,
		retention: retention,
		tracks:    make(map[string]*Track),
	}
	for _, opt := range opts {
		opt(tl)
	}
	return tl, nil
}

// ID returns the tracked object identifier.
func (tl *Timeline) ID() string { return tl.id }

// Retention returns the policy shared by all tracks.
func (tl *Timeline) Retention() Retention { return tl.retention }

// RecordSample appends v to the track of propertyID, creating the track on
// first use. A failed first append does not leave an empty track behind.
func (tl *Timeline) RecordSample(propertyID string, ts float64, v value.Value) error {
	if strings.TrimSpace(propertyID) == "" {
		return fmt.Errorf("%w: empty property id", ErrInvalidSample)
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	tr, ok := tl.tracks[propertyID]
	if !ok {
		var err error
		tr, err = NewTrack(tl.retention, WithTrackCompaction(tl.compact))
		if err != nil {
			return err
		}
	}
	if err := tr.Append(ts, v); err != nil {
		return fmt.Errorf("property %q: %w", propertyID, err)
	}
	if !ok {
		tl.tracks[propertyID] = tr
	}
	return nil
}

// StateAt resolves every property at ts. Properties without data at ts are
// left out of the result rather than defaulted.
func (tl *Timeline) StateAt(ts float64, policy Policy) map[string]value.Value {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	out := make(map[string]value.Value, len(tl.tracks))
	for id, tr := range tl.tracks {
		v, err := tr.ValueAt(ts, policy)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out
}

// ValueAt resolves a single property at ts.
func (tl *Timeline) ValueAt(propertyID string, ts float64, policy Policy) (value.Value, error) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	tr, ok := tl.tracks[propertyID]
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %q", ErrUnknownProperty, propertyID)
	}
	v, err := tr.ValueAt(ts, policy)
	if err != nil {
		return value.Value{}, fmt.Errorf("property %q: %w", propertyID, err)
	}
	return v, nil
}

// PropertyIDs lists the recorded properties in lexical order.
func (tl *Timeline) PropertyIDs() []string {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	ids := make([]string, 0, len(tl.tracks))
	for id := range tl.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrackView is a read-only handle on one property track. Every call takes
// the timeline read lock, so a view stays safe while the owner keeps
// recording.
type TrackView struct {
	tl   *Timeline
	prop string
}

// Track returns a read-only view of propertyID.
func (tl *Timeline) Track(propertyID string) (TrackView, error) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	if _, ok := tl.tracks[propertyID]; !ok {
		return TrackView{}, fmt.Errorf("%w: %q", ErrUnknownProperty, propertyID)
	}
	return TrackView{tl: tl, prop: propertyID}, nil
}

// PropertyID returns the viewed property.
func (v TrackView) PropertyID() string { return v.prop }

// ValueAt resolves the property at ts.
func (v TrackView) ValueAt(ts float64, policy Policy) (value.Value, error) {
	return v.tl.ValueAt(v.prop, ts, policy)
}

// Samples returns a copy of the retained entries, oldest first.
func (v TrackView) Samples() []Sample {
	v.tl.mu.RLock()
	defer v.tl.mu.RUnlock()
	return v.tl.tracks[v.prop].Samples()
}

// Span returns the first and last retained timestamps.
func (v TrackView) Span() (first, last float64, ok bool) {
	v.tl.mu.RLock()
	defer v.tl.mu.RUnlock()
	return v.tl.tracks[v.prop].Span()
}

// Stats returns the track counters.
func (v TrackView) Stats() TrackStats {
	v.tl.mu.RLock()
	defer v.tl.mu.RUnlock()
	return v.tl.tracks[v.prop].Stats()
}

// Samples returns the retained entries of propertyID overlapping [from, to].
func (tl *Timeline) Samples(propertyID string, from, to float64) ([]Sample, error) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	tr, ok := tl.tracks[propertyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, propertyID)
	}
	return tr.Range(from, to), nil
}

// Span returns the union of all track spans.
func (tl *Timeline) Span() (Span, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var (
		span  Span
		found bool
	)
	for _, tr := range tl.tracks {
		first, last, ok := tr.Span()
		if !ok {
			continue
		}
		if !found || first < span.Start {
			span.Start = first
		}
		if !found || last > span.End {
			span.End = last
		}
		found = true
	}
	return span, found
}

// Crossings returns the samples passed over when moving from one time to
// another. Moving forward covers (from, to]; moving backward covers
// [to, from). Results are ordered in the direction of travel.
func (tl *Timeline) Crossings(from, to float64) []Crossing {
	if from == to {
		return nil
	}
	lo, hi := from, to
	if to < from {
		lo, hi = to, from
	}

	tl.mu.RLock()
	var out []Crossing
	for id, tr := range tl.tracks {
		for _, s := range tr.Range(lo, hi) {
			if s.Time < lo || s.Time > hi {
				continue
			}
			if s.Time == from {
				continue
			}
			out = append(out, Crossing{Property: id, Sample: s})
		}
	}
	tl.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			if to > from {
				return out[i].Time < out[j].Time
			}
			return out[i].Time > out[j].Time
		}
		return out[i].Property < out[j].Property
	})
	return out
}

// Clear drops the history of every track but keeps the property set.
func (tl *Timeline) Clear() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for _, tr := range tl.tracks {
		tr.Clear()
	}
}

// Stats returns the aggregate counters of the timeline.
func (tl *Timeline) Stats() Stats {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	st := Stats{Tracks: len(tl.tracks)}
	for _, tr := range tl.tracks {
		ts := tr.Stats()
		st.Samples += ts.Len
		st.Appended += ts.Appended
		st.Rejected += ts.Rejected
		st.Evicted += ts.Evicted
	}
	return st
}
