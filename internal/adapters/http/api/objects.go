package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	service "github.com/okian/rewind/internal/app"
	"github.com/okian/rewind/internal/domain/timeline"
)

// ObjectsHandler handles tracking and timeline queries.
type ObjectsHandler struct {
	deps ObjectDependencies
}

// NewObjectsHandler creates a new objects handler.
func NewObjectsHandler(deps ObjectDependencies) *ObjectsHandler {
	return &ObjectsHandler{deps: deps}
}

// retentionDTO is the wire form of a retention policy.
type retentionDTO struct {
	Kind          string  `json:"kind"`
	MaxEntries    int     `json:"max_entries,omitempty"`
	MaxAgeSeconds float64 `json:"max_age_seconds,omitempty"`
}

func toRetentionDTO(r timeline.Retention) retentionDTO {
	if r.Kind == timeline.RetainAge {
		return retentionDTO{Kind: "age", MaxAgeSeconds: r.Window}
	}
	return retentionDTO{Kind: "entries", MaxEntries: r.Entries}
}

func (d retentionDTO) toRetention() (timeline.Retention, error) {
	var r timeline.Retention
	switch d.Kind {
	case "entries":
		r = timeline.MaxEntries(d.MaxEntries)
	case "age":
		r = timeline.MaxAgeSeconds(d.MaxAgeSeconds)
	default:
		return r, fmt.Errorf("unknown retention kind %q; want entries or age", d.Kind)
	}
	return r, r.Validate()
}

type startRequest struct {
	Retention *retentionDTO `json:"retention"`
}

type objectResponse struct {
	ID         string         `json:"id"`
	Retention  retentionDTO   `json:"retention"`
	Properties []string       `json:"properties"`
	Span       *timeline.Span `json:"span,omitempty"`
	Stats      timeline.Stats `json:"stats"`
}

func toObjectResponse(info service.ObjectInfo) objectResponse { //nolint:gocritic // hugeParam: read-only copy
	props := info.Properties
	if props == nil {
		props = []string{}
	}
	return objectResponse{
		ID:         info.ID,
		Retention:  toRetentionDTO(info.Retention),
		Properties: props,
		Span:       info.Span,
		Stats:      info.Stats,
	}
}

// HandleStart handles POST /objects/{id}. It answers 201 for a new
// timeline and 200 when the object was already tracked with the same policy.
func (h *ObjectsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_tracking"

	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	var retention *timeline.Retention
	if req.Retention != nil {
		rt, err := req.Retention.toRetention()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		retention = &rt
	}

	info, err := h.deps.StartTracking(r.Context(), r.PathValue("id"), retention)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if info.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toObjectResponse(info))
}

// HandleStop handles DELETE /objects/{id}. Unknown objects are not an error.
func (h *ObjectsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	removed := h.deps.StopTracking(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// HandleList handles GET /objects.
func (h *ObjectsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.deps.TrackedObjects(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"objects": ids})
}

// HandleGet handles GET /objects/{id}.
func (h *ObjectsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.Object(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toObjectResponse(info))
}

// HandleProperties handles GET /objects/{id}/properties.
func (h *ObjectsHandler) HandleProperties(w http.ResponseWriter, r *http.Request) {
	ids, err := h.deps.PropertyIDs(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"properties": ids})
}

// HandleState handles GET /objects/{id}/state?t=&policy=.
func (h *ObjectsHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	const op = "api.state"

	if r.URL.Query().Get("t") == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing t")))
		return
	}
	t, err := queryFloat(r, "t", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	policy, err := queryPolicy(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	state, err := h.deps.StateAt(r.Context(), r.PathValue("id"), t, policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object_id": r.PathValue("id"),
		"t":         t,
		"policy":    policy.String(),
		"state":     state,
	})
}

// HandleTrack handles GET /objects/{id}/tracks/{prop}?from=&to=.
func (h *ObjectsHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	const op = "api.track"

	from, err := queryFloat(r, "from", -math.MaxFloat64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	to, err := queryFloat(r, "to", math.MaxFloat64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	samples, err := h.deps.Samples(r.Context(), r.PathValue("id"), r.PathValue("prop"), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if samples == nil {
		samples = []timeline.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object_id":   r.PathValue("id"),
		"property_id": r.PathValue("prop"),
		"samples":     samples,
	})
}
