// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/rewind/internal/adapters/mq/queue"
	service "github.com/okian/rewind/internal/app"
	"github.com/okian/rewind/internal/domain/dedupe"
	"github.com/okian/rewind/internal/domain/model"
	"github.com/okian/rewind/internal/domain/playback"
	"github.com/okian/rewind/internal/domain/recorder"
	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
)

// SampleDependencies capture samples.
type SampleDependencies interface {
	dedupe.Deduper

	// Submit queues a sample for async recording. Fails with queue.ErrFull
	// on backpressure.
	Submit(ctx context.Context, s model.Sample) error
	// RecordNow records inline and returns the recorder verdict.
	RecordNow(ctx context.Context, s model.Sample) error
}

// ObjectDependencies manage tracked objects and query their timelines.
type ObjectDependencies interface {
	StartTracking(ctx context.Context, objectID string, r *timeline.Retention) (service.ObjectInfo, error)
	StopTracking(ctx context.Context, objectID string) bool
	TrackedObjects(ctx context.Context) ([]string, error)
	Object(ctx context.Context, objectID string) (service.ObjectInfo, error)
	PropertyIDs(ctx context.Context, objectID string) ([]string, error)
	StateAt(ctx context.Context, objectID string, t float64, policy timeline.Policy) (map[string]value.Value, error)
	Samples(ctx context.Context, objectID, propertyID string, from, to float64) ([]timeline.Sample, error)
}

// CursorDependencies drive playback cursors.
type CursorDependencies interface {
	OpenCursor(ctx context.Context, objectID string, start *float64) (service.CursorView, error)
	CursorState(ctx context.Context, id string, policy timeline.Policy) (service.CursorView, error)
	SeekCursor(ctx context.Context, id string, t float64) (service.CursorView, error)
	StepCursor(ctx context.Context, id string, delta float64) (service.CursorView, []timeline.Crossing, error)
	PlayCursor(ctx context.Context, id string, opts service.PlayOptions) (service.CursorView, error)
	PauseCursor(ctx context.Context, id string) (service.CursorView, error)
	AdvanceCursor(ctx context.Context, id string, dt float64) (service.CursorView, playback.Progress, error)
	CloseCursor(ctx context.Context, id string) error
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SampleDependencies
	ObjectDependencies
	CursorDependencies
}

// Server wires HTTP routes for the recorder API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	samplesHandler *SamplesHandler
	objectsHandler *ObjectsHandler
	cursorsHandler *CursorsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(statsProvider),
		statsHandler:   NewStatsHandler(statsProvider),
		samplesHandler: NewSamplesHandler(deps),
		objectsHandler: NewObjectsHandler(deps),
		cursorsHandler: NewCursorsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /samples", MetricsMiddleware(s.samplesHandler.HandlePostSample, "samples"))

	o := s.objectsHandler
	mux.HandleFunc("GET /objects", MetricsMiddleware(o.HandleList, "objects"))
	mux.HandleFunc("POST /objects/{id}", MetricsMiddleware(o.HandleStart, "objects"))
	mux.HandleFunc("GET /objects/{id}", MetricsMiddleware(o.HandleGet, "objects"))
	mux.HandleFunc("DELETE /objects/{id}", MetricsMiddleware(o.HandleStop, "objects"))
	mux.HandleFunc("GET /objects/{id}/properties", MetricsMiddleware(o.HandleProperties, "properties"))
	mux.HandleFunc("GET /objects/{id}/state", MetricsMiddleware(o.HandleState, "state"))
	mux.HandleFunc("GET /objects/{id}/tracks/{prop}", MetricsMiddleware(o.HandleTrack, "tracks"))

	c := s.cursorsHandler
	mux.HandleFunc("POST /objects/{id}/cursors", MetricsMiddleware(c.HandleOpen, "cursors"))
	mux.HandleFunc("GET /cursors/{cid}", MetricsMiddleware(c.HandleGet, "cursors"))
	mux.HandleFunc("DELETE /cursors/{cid}", MetricsMiddleware(c.HandleClose, "cursors"))
	mux.HandleFunc("POST /cursors/{cid}/seek", MetricsMiddleware(c.HandleSeek, "cursor_seek"))
	mux.HandleFunc("POST /cursors/{cid}/step", MetricsMiddleware(c.HandleStep, "cursor_step"))
	mux.HandleFunc("POST /cursors/{cid}/play", MetricsMiddleware(c.HandlePlay, "cursor_play"))
	mux.HandleFunc("POST /cursors/{cid}/pause", MetricsMiddleware(c.HandlePause, "cursor_pause"))
	mux.HandleFunc("POST /cursors/{cid}/advance", MetricsMiddleware(c.HandleAdvance, "cursor_advance"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates upstream errors to a status code.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recorder.ErrUntrackedObject),
		errors.Is(err, timeline.ErrUnknownProperty),
		errors.Is(err, service.ErrCursorNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, timeline.ErrNonMonotonicTime):
		writeError(w, http.StatusConflict, "non_monotonic", err)
	case errors.Is(err, recorder.ErrPolicyConflict):
		writeError(w, http.StatusConflict, "policy_conflict", err)
	case errors.Is(err, queue.ErrFull),
		errors.Is(err, ErrBackpressure),
		errors.Is(err, service.ErrTooManyCursors):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, timeline.ErrInvalidPolicy),
		errors.Is(err, timeline.ErrInvalidSample),
		errors.Is(err, recorder.ErrInvalidObjectID),
		errors.Is(err, model.ErrInvalidSample):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeBody decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// queryFloat parses a finite float query parameter, returning def when absent.
func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q; must be a finite number", key, raw)
	}
	return f, nil
}

func queryPolicy(r *http.Request) (timeline.Policy, error) {
	return timeline.ParsePolicy(r.URL.Query().Get("policy"))
}
