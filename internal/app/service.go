// Package service wires the recorder, capture pipeline and playback cursors
// behind the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/rewind/internal/adapters/mq/worker"
	"github.com/okian/rewind/internal/domain/dedupe"
	"github.com/okian/rewind/internal/domain/model"
	"github.com/okian/rewind/internal/domain/recorder"
	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	"github.com/okian/rewind/pkg/logger"
	"github.com/okian/rewind/pkg/metrics"
	"github.com/okian/rewind/pkg/tracing"
)

// Default service configuration constants.
const (
	defaultQueueSize  = 100000
	defaultDedupeSize = 50000
	defaultMaxCursors = 1024
	defaultMaxEntries = 4096
)

// ObjectInfo summarises one tracked object.
type ObjectInfo struct {
	ID         string             `json:"id"`
	Retention  timeline.Retention `json:"retention"`
	Properties []string           `json:"properties"`
	Span       *timeline.Span     `json:"span,omitempty"`
	Stats      timeline.Stats     `json:"stats"`
	// Created is set by StartTracking when the call opened a new timeline.
	Created bool `json:"-"`
}

// Service implements the API dependencies for the recorder.
type Service struct {
	mu sync.RWMutex

	recorder *recorder.Recorder
	deduper  dedupe.Deduper
	pool     *worker.Pool
	cursors  *cursorRegistry

	workerCount int
	queueSize   int
	dedupeSize  int
	maxCursors  int
	retention   timeline.Retention
	compaction  bool

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
	tracer trace.Tracer
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		maxCursors:  defaultMaxCursors,
		retention:   timeline.MaxEntries(defaultMaxEntries),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a fresh recording session and starts the capture workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.tracer == nil {
		s.tracer = tracing.Tracer()
	}

	s.recorder = recorder.New(recorder.WithCompaction(s.compaction))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.cursors = newCursorRegistry(s.maxCursors)
	s.pool = worker.NewPool(s.workerCount, s.recorder,
		worker.WithQueueCapacity(s.queueSize),
		worker.WithPoolLogger(s.logger.Named("workers")),
		worker.WithPoolResultHook(s.onApplied),
	)

	// Workers outlive the request that started the service.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "recorder service started",
		logger.String("session", s.recorder.SessionID().String()),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("retention", s.retention.String()),
		logger.Bool("compaction", s.compaction),
	)
	return nil
}

// Stop drains the capture queue and drops every timeline and cursor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping recorder service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	s.cancel()
	s.cursors.closeAll()
	_ = s.recorder.Close()
	metrics.UpdateActiveCursors(0)

	s.started = false
	s.logger.Info(ctx, "recorder service stopped")
}

// onApplied lets a rejected sample id be resubmitted, e.g. after the client
// starts tracking the object.
func (s *Service) onApplied(ctx context.Context, smp worker.Sample, err error) { //nolint:gocritic // hugeParam: Sample is passed by value for channel semantics
	if err != nil && smp.SampleID != "" {
		s.Unrecord(ctx, smp.SampleID)
	}
}

func (s *Service) running() (*recorder.Recorder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.recorder, nil
}

func (s *Service) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	t := s.tracer
	if t == nil {
		t = tracing.Tracer()
	}
	return t.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) dedupe() dedupe.Deduper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deduper
}

// SeenAndRecord reports whether a sample id was already accepted.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	d := s.dedupe()
	if d == nil {
		return false
	}
	seen := d.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordSampleDuplicate()
	}
	return seen
}

// Unrecord forgets a sample id.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if d := s.dedupe(); d != nil {
		d.Unrecord(ctx, id)
	}
}

// Size returns the number of remembered sample ids.
func (s *Service) Size() int64 {
	d := s.dedupe()
	if d == nil {
		return 0
	}
	return d.Size()
}

// Submit queues a sample for asynchronous recording. Samples of one object
// are applied in submission order.
func (s *Service) Submit(ctx context.Context, smp model.Sample) error { //nolint:gocritic // hugeParam: Sample is passed by value for channel semantics
	if _, err := s.running(); err != nil {
		return err
	}
	if smp.ReceivedAt.IsZero() {
		smp.ReceivedAt = time.Now()
	}
	return s.pool.Submit(ctx, smp)
}

// RecordNow applies a sample inline and returns the recorder's verdict.
func (s *Service) RecordNow(ctx context.Context, smp model.Sample) error { //nolint:gocritic // hugeParam: Sample is passed by value for channel semantics
	rec, err := s.running()
	if err != nil {
		return err
	}
	_, span := s.span(ctx, "service.RecordNow",
		attribute.String("object.id", smp.ObjectID),
		attribute.String("property.id", smp.PropertyID),
		attribute.Float64("sample.t", smp.Time),
	)
	err = rec.RecordSample(smp.ObjectID, smp.PropertyID, smp.Time, smp.Value)
	endSpan(span, err)

	if err != nil {
		reason := worker.RejectReason(err)
		metrics.RecordSampleRejected(reason)
		if reason == worker.ReasonUntracked {
			metrics.RecordUntrackedSample()
		}
		return err
	}
	metrics.RecordSampleRecorded()
	return nil
}

// StartTracking begins recording objectID. A nil retention uses the service
// default.
func (s *Service) StartTracking(ctx context.Context, objectID string, retention *timeline.Retention) (ObjectInfo, error) {
	rec, err := s.running()
	if err != nil {
		return ObjectInfo{}, err
	}
	r := s.retention
	if retention != nil {
		r = *retention
	}

	ctx, span := s.span(ctx, "service.StartTracking",
		attribute.String("object.id", objectID),
		attribute.String("retention", r.String()),
	)
	tl, created, err := rec.Track(objectID, r)
	span.SetAttributes(attribute.Bool("created", created))
	endSpan(span, err)
	if err != nil {
		return ObjectInfo{}, err
	}
	if created {
		s.logger.Debug(ctx, "tracking started", logger.String("objectID", objectID), logger.String("retention", r.String()))
	}
	info := describe(tl)
	info.Created = created
	return info, nil
}

// StopTracking ends recording of objectID and closes its cursors. Unknown
// objects are ignored.
func (s *Service) StopTracking(ctx context.Context, objectID string) bool {
	rec, err := s.running()
	if err != nil {
		return false
	}
	ctx, span := s.span(ctx, "service.StopTracking", attribute.String("object.id", objectID))
	removed := rec.StopTracking(objectID)
	closed := s.cursors.closeObject(objectID)
	span.SetAttributes(attribute.Bool("removed", removed), attribute.Int("cursors.closed", closed))
	endSpan(span, nil)

	metrics.UpdateActiveCursors(s.cursors.len())
	if removed {
		s.logger.Debug(ctx, "tracking stopped", logger.String("objectID", objectID), logger.Int("cursorsClosed", closed))
	}
	return removed
}

// TrackedObjects lists tracked object ids in lexical order.
func (s *Service) TrackedObjects(_ context.Context) ([]string, error) {
	rec, err := s.running()
	if err != nil {
		return nil, err
	}
	return rec.TrackedObjectIDs(), nil
}

// Object describes one tracked object.
func (s *Service) Object(_ context.Context, objectID string) (ObjectInfo, error) {
	rec, err := s.running()
	if err != nil {
		return ObjectInfo{}, err
	}
	tl, err := rec.TimelineFor(objectID)
	if err != nil {
		return ObjectInfo{}, err
	}
	return describe(tl), nil
}

func describe(tl *timeline.Timeline) ObjectInfo {
	info := ObjectInfo{
		ID:         tl.ID(),
		Retention:  tl.Retention(),
		Properties: tl.PropertyIDs(),
		Stats:      tl.Stats(),
	}
	if span, ok := tl.Span(); ok {
		info.Span = &span
	}
	return info
}

// PropertyIDs lists the recorded properties of objectID.
func (s *Service) PropertyIDs(_ context.Context, objectID string) ([]string, error) {
	rec, err := s.running()
	if err != nil {
		return nil, err
	}
	return rec.PropertyIDs(objectID)
}

// StateAt reconstructs objectID at time t.
func (s *Service) StateAt(ctx context.Context, objectID string, t float64, policy timeline.Policy) (map[string]value.Value, error) {
	rec, err := s.running()
	if err != nil {
		return nil, err
	}
	_, span := s.span(ctx, "service.StateAt",
		attribute.String("object.id", objectID),
		attribute.Float64("t", t),
		attribute.String("policy", policy.String()),
	)
	start := time.Now()
	tl, err := rec.TimelineFor(objectID)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	state := tl.StateAt(t, policy)
	metrics.RecordQueryLatency("state", float64(time.Since(start).Microseconds())/1000)
	span.SetAttributes(attribute.Int("properties", len(state)))
	endSpan(span, nil)
	return state, nil
}

// Samples returns the retained samples of one property overlapping
// [from, to].
func (s *Service) Samples(ctx context.Context, objectID, propertyID string, from, to float64) ([]timeline.Sample, error) {
	rec, err := s.running()
	if err != nil {
		return nil, err
	}
	if from > to {
		return nil, fmt.Errorf("%w: from %v is after to %v", ErrInvalidArgument, from, to)
	}
	_, span := s.span(ctx, "service.Samples",
		attribute.String("object.id", objectID),
		attribute.String("property.id", propertyID),
	)
	start := time.Now()
	tl, err := rec.TimelineFor(objectID)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	out, err := tl.Samples(propertyID, from, to)
	metrics.RecordQueryLatency("samples", float64(time.Since(start).Microseconds())/1000)
	endSpan(span, err)
	return out, err
}

// GetStats returns service statistics for monitoring and refreshes the
// recorder gauges.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"maxCursors":  s.maxCursors,
		"retention":   s.retention.String(),
		"compaction":  s.compaction,
	}
	if !s.started {
		return stats
	}

	rs := s.recorder.Stats()
	stats["session"] = s.recorder.SessionID().String()
	stats["objects"] = rs.Objects
	stats["tracks"] = rs.Tracks
	stats["samples"] = rs.Samples
	stats["appended"] = rs.Appended
	stats["rejected"] = rs.Rejected
	stats["evicted"] = rs.Evicted
	stats["untracked"] = rs.Untracked
	stats["queueLength"] = s.pool.Len()
	stats["pending"] = s.pool.Pending()
	stats["cursors"] = s.cursors.len()
	stats["dedupeEntries"] = s.deduper.Size()

	metrics.UpdateRecorderStats(rs.Objects, rs.Tracks, rs.Samples, rs.Evicted)
	metrics.UpdateActiveCursors(s.cursors.len())
	return stats
}

// Pending returns the number of accepted samples not yet applied.
func (s *Service) Pending() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return 0
	}
	return s.pool.Pending()
}

// IsNotFound reports whether err means the addressed object, property or
// cursor does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, recorder.ErrUntrackedObject) ||
		errors.Is(err, timeline.ErrUnknownProperty) ||
		errors.Is(err, ErrCursorNotFound)
}
