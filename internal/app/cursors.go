package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/rewind/internal/domain/playback"
	"github.com/okian/rewind/internal/domain/recorder"
	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	"github.com/okian/rewind/pkg/metrics"
)

type cursorEntry struct {
	id       string
	objectID string
	cursor   *playback.Cursor
}

// cursorRegistry holds the open cursors of a session.
type cursorRegistry struct {
	mu      sync.RWMutex
	max     int
	entries map[string]*cursorEntry
}

func newCursorRegistry(maxCursors int) *cursorRegistry {
	return &cursorRegistry{
		max:     maxCursors,
		entries: make(map[string]*cursorEntry),
	}
}

func (r *cursorRegistry) add(objectID string, c *playback.Cursor) (*cursorEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.entries) >= r.max {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyCursors, r.max)
	}
	e := &cursorEntry{id: uuid.NewString(), objectID: objectID, cursor: c}
	r.entries[e.id] = e
	return e, nil
}

func (r *cursorRegistry) get(id string) (*cursorEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCursorNotFound, id)
	}
	return e, nil
}

func (r *cursorRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// closeObject drops every cursor over objectID and returns how many.
func (r *cursorRegistry) closeObject(objectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if e.objectID == objectID {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

func (r *cursorRegistry) closeAll() {
	r.mu.Lock()
	r.entries = make(map[string]*cursorEntry)
	r.mu.Unlock()
}

func (r *cursorRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CursorView is the externally visible state of a cursor.
type CursorView struct {
	ID        string                 `json:"id"`
	ObjectID  string                 `json:"object_id"`
	Time      float64                `json:"t"`
	Playing   bool                   `json:"playing"`
	Direction string                 `json:"direction"`
	Rate      float64                `json:"rate"`
	Looping   bool                   `json:"looping"`
	State     map[string]value.Value `json:"state,omitempty"`
}

func view(e *cursorEntry) CursorView {
	c := e.cursor
	return CursorView{
		ID:        e.id,
		ObjectID:  e.objectID,
		Time:      c.Time(),
		Playing:   c.IsPlaying(),
		Direction: c.Direction().String(),
		Rate:      c.PlayRate(),
		Looping:   c.Looping(),
	}
}

// PlayOptions configures PlayCursor.
type PlayOptions struct {
	Direction playback.Direction
	Rate      *float64
	Loop      *bool
}

func (s *Service) cursor(id string) (*cursorEntry, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	return s.cursors.get(id)
}

// OpenCursor creates a cursor over objectID positioned at start, or at the
// beginning of the recording when start is nil.
func (s *Service) OpenCursor(ctx context.Context, objectID string, start *float64) (CursorView, error) {
	rec, err := s.running()
	if err != nil {
		return CursorView{}, err
	}
	_, span := s.span(ctx, "service.OpenCursor", attribute.String("object.id", objectID))
	tl, err := rec.TimelineFor(objectID)
	if err != nil {
		endSpan(span, err)
		return CursorView{}, err
	}

	var opts []playback.Option
	if start != nil {
		opts = append(opts, playback.WithStart(*start))
	}
	e, err := s.attachCursor(rec, objectID, tl, playback.New(tl, opts...))
	if err != nil {
		endSpan(span, err)
		return CursorView{}, err
	}
	span.SetAttributes(attribute.String("cursor.id", e.id))
	endSpan(span, nil)

	metrics.UpdateActiveCursors(s.cursors.len())
	return view(e), nil
}

// attachCursor registers c and then confirms tl is still the live timeline
// of objectID. StopTracking removes the timeline before it closes cursors, so
// a cursor added after that sweep is dropped here instead of outliving its
// object.
func (s *Service) attachCursor(rec *recorder.Recorder, objectID string, tl *timeline.Timeline, c *playback.Cursor) (*cursorEntry, error) {
	e, err := s.cursors.add(objectID, c)
	if err != nil {
		return nil, err
	}
	live, err := rec.TimelineFor(objectID)
	if err == nil && live != tl {
		err = fmt.Errorf("%w: %q was restarted", recorder.ErrUntrackedObject, objectID)
	}
	if err != nil {
		s.cursors.remove(e.id)
		return nil, err
	}
	return e, nil
}

// CursorState returns the cursor with the object state at its position.
func (s *Service) CursorState(ctx context.Context, id string, policy timeline.Policy) (CursorView, error) {
	e, err := s.cursor(id)
	if err != nil {
		return CursorView{}, err
	}
	_, span := s.span(ctx, "service.CursorState",
		attribute.String("cursor.id", id),
		attribute.String("policy", policy.String()),
	)
	defer span.End()
	v := view(e)
	v.State = e.cursor.Sample(policy)
	return v, nil
}

// SeekCursor jumps to t.
func (s *Service) SeekCursor(_ context.Context, id string, t float64) (CursorView, error) {
	e, err := s.cursor(id)
	if err != nil {
		return CursorView{}, err
	}
	if err := e.cursor.Seek(t); err != nil {
		return CursorView{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return view(e), nil
}

// StepCursor moves by delta and returns the samples passed over.
func (s *Service) StepCursor(_ context.Context, id string, delta float64) (CursorView, []timeline.Crossing, error) {
	e, err := s.cursor(id)
	if err != nil {
		return CursorView{}, nil, err
	}
	from := e.cursor.Time()
	if err := e.cursor.Step(delta); err != nil {
		return CursorView{}, nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return view(e), e.cursor.Crossed(from, e.cursor.Time()), nil
}

// PlayCursor starts playback in the given direction.
func (s *Service) PlayCursor(_ context.Context, id string, opts PlayOptions) (CursorView, error) {
	e, err := s.cursor(id)
	if err != nil {
		return CursorView{}, err
	}
	c := e.cursor
	if opts.Rate != nil {
		if err := c.SetPlayRate(*opts.Rate); err != nil {
			return CursorView{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}
	if opts.Loop != nil {
		c.SetLooping(*opts.Loop)
	}
	if opts.Direction == playback.Backward {
		c.Reverse()
	} else {
		c.Play()
	}
	return view(e), nil
}

// PauseCursor stops playback and keeps the position.
func (s *Service) PauseCursor(_ context.Context, id string) (CursorView, error) {
	e, err := s.cursor(id)
	if err != nil {
		return CursorView{}, err
	}
	e.cursor.Stop()
	return view(e), nil
}

// AdvanceCursor moves a playing cursor by dt of wall time.
func (s *Service) AdvanceCursor(_ context.Context, id string, dt float64) (CursorView, playback.Progress, error) {
	e, err := s.cursor(id)
	if err != nil {
		return CursorView{}, playback.Progress{}, err
	}
	p := e.cursor.Advance(dt)
	return view(e), p, nil
}

// CloseCursor releases a cursor.
func (s *Service) CloseCursor(_ context.Context, id string) error {
	if _, err := s.running(); err != nil {
		return err
	}
	if !s.cursors.remove(id) {
		return fmt.Errorf("%w: %q", ErrCursorNotFound, id)
	}
	metrics.UpdateActiveCursors(s.cursors.len())
	return nil
}
