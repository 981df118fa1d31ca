package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/rewind/internal/domain/model"
	"github.com/okian/rewind/internal/domain/value"
)

// SamplesHandler handles capture requests.
type SamplesHandler struct {
	deps SampleDependencies
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps SampleDependencies) *SamplesHandler {
	return &SamplesHandler{deps: deps}
}

// sampleRequest is the body of POST /samples.
type sampleRequest struct {
	SampleID   string      `json:"sample_id"`
	ObjectID   string      `json:"object_id"`
	PropertyID string      `json:"property_id"`
	T          *float64    `json:"t"`
	Value      value.Value `json:"value"`
}

func (req *sampleRequest) toSample() (model.Sample, error) {
	s := model.Sample{
		SampleID:   req.SampleID,
		ObjectID:   req.ObjectID,
		PropertyID: req.PropertyID,
		Value:      req.Value,
		ReceivedAt: time.Now(),
	}
	if req.T == nil {
		return s, NewKind("api.sample", ErrBadRequest)
	}
	s.Time = *req.T
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// HandlePostSample handles POST /samples. Samples are queued for async
// recording unless ?sync=true asks for an inline verdict.
func (h *SamplesHandler) HandlePostSample(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sample"

	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	smp, err := req.toSample()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), smp.SampleID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if sync {
		if err := h.deps.RecordNow(r.Context(), smp); err != nil {
			h.deps.Unrecord(r.Context(), smp.SampleID)
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ackResponse{Status: "recorded"})
		return
	}

	if err := h.deps.Submit(r.Context(), smp); err != nil {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), smp.SampleID)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
