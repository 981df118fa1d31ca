// Package recorder is the registry of tracked objects and the single entry
// point for capture calls.
//
// A Recorder is an ordinary value: create one per session (or per
// simulation instance) and Close it when the session ends. Capture never
// starts tracking implicitly, so stray samples cannot grow the registry.
package recorder

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
)

// Stats summarises a recorder.
type Stats struct {
	timeline.Stats
	Objects   int    `json:"objects"`
	Untracked uint64 `json:"untracked"`
}

// Recorder maps object identifiers to their timelines.
type Recorder struct {
	mu        sync.RWMutex
	session   uuid.UUID
	compact   bool
	timelines map[string]*timeline.Timeline

	untracked atomic.Uint64
}

// New constructs an empty recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		session:   uuid.New(),
		timelines: make(map[string]*timeline.Timeline),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SessionID identifies this recorder instance.
func (r *Recorder) SessionID() uuid.UUID { return r.session }

// StartTracking creates the timeline for objectID, or returns the existing
// one when the policy matches. A different policy on an already tracked
// object is rejected so history is never silently truncated.
func (r *Recorder) StartTracking(objectID string, policy timeline.Retention) (*timeline.Timeline, error) {
	tl, _, err := r.Track(objectID, policy)
	return tl, err
}

// Track is StartTracking that also reports whether the timeline was created
// by this call.
func (r *Recorder) Track(objectID string, policy timeline.Retention) (*timeline.Timeline, bool, error) {
	if strings.TrimSpace(objectID) == "" {
		return nil, false, ErrInvalidObjectID
	}
	if err := policy.Validate(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if tl, ok := r.timelines[objectID]; ok {
		if tl.Retention() != policy {
			return nil, false, fmt.Errorf("%w: %q has %s, requested %s", ErrPolicyConflict, objectID, tl.Retention(), policy)
		}
		return tl, false, nil
	}

	tl, err := timeline.New(objectID, policy, timeline.WithCompaction(r.compact))
	if err != nil {
		return nil, false, err
	}
	r.timelines[objectID] = tl
	return tl, true, nil
}

// StopTracking drops the timeline of objectID. Unknown objects are ignored
// since callers may race with object teardown. It reports whether a
// timeline was removed.
func (r *Recorder) StopTracking(objectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tl, ok := r.timelines[objectID]
	if !ok {
		return false
	}
	delete(r.timelines, objectID)
	tl.Clear()
	return true
}

// RecordSample appends a sample to a tracked object.
func (r *Recorder) RecordSample(objectID, propertyID string, ts float64, v value.Value) error {
	tl, err := r.TimelineFor(objectID)
	if err != nil {
		r.untracked.Add(1)
		return err
	}
	if err := tl.RecordSample(propertyID, ts, v); err != nil {
		return fmt.Errorf("object %q: %w", objectID, err)
	}
	return nil
}

// TimelineFor returns the timeline of a tracked object.
func (r *Recorder) TimelineFor(objectID string) (*timeline.Timeline, error) {
	r.mu.RLock()
	tl, ok := r.timelines[objectID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUntrackedObject, objectID)
	}
	return tl, nil
}

// PropertyIDs lists the recorded properties of a tracked object.
func (r *Recorder) PropertyIDs(objectID string) ([]string, error) {
	tl, err := r.TimelineFor(objectID)
	if err != nil {
		return nil, err
	}
	return tl.PropertyIDs(), nil
}

// TrackedObjectIDs lists tracked objects in lexical order.
func (r *Recorder) TrackedObjectIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.timelines))
	for id := range r.timelines {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked objects.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timelines)
}

// Stats aggregates the counters of every tracked timeline.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	timelines := make([]*timeline.Timeline, 0, len(r.timelines))
	for _, tl := range r.timelines {
		timelines = append(timelines, tl)
	}
	r.mu.RUnlock()

	st := Stats{Objects: len(timelines), Untracked: r.untracked.Load()}
	for _, tl := range timelines {
		st.Add(tl.Stats())
	}
	return st
}

// Close stops tracking every object.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, tl := range r.timelines {
		tl.Clear()
		delete(r.timelines, id)
	}
	return nil
}
