package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/rewind/internal/app"
	"github.com/okian/rewind/internal/domain/playback"
	"github.com/okian/rewind/internal/domain/timeline"
)

// CursorsHandler handles playback cursor requests.
type CursorsHandler struct {
	deps CursorDependencies
}

// NewCursorsHandler creates a new cursors handler.
func NewCursorsHandler(deps CursorDependencies) *CursorsHandler {
	return &CursorsHandler{deps: deps}
}

type openRequest struct {
	T *float64 `json:"t"`
}

type seekRequest struct {
	T *float64 `json:"t"`
}

type stepRequest struct {
	Delta *float64 `json:"delta"`
}

type playRequest struct {
	Direction string   `json:"direction"`
	Rate      *float64 `json:"rate"`
	Loop      *bool    `json:"loop"`
}

type advanceRequest struct {
	DT *float64 `json:"dt"`
}

type stepResponse struct {
	Cursor    service.CursorView  `json:"cursor"`
	Crossings []timeline.Crossing `json:"crossings"`
}

type advanceResponse struct {
	Cursor   service.CursorView `json:"cursor"`
	Progress playback.Progress  `json:"progress"`
}

func parseDirection(s string) (playback.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forward":
		return playback.Forward, nil
	case "backward", "reverse":
		return playback.Backward, nil
	default:
		return playback.Forward, fmt.Errorf("unknown direction %q", s)
	}
}

func badRequest(w http.ResponseWriter, op string, err error) {
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}

// HandleOpen handles POST /objects/{id}/cursors.
func (h *CursorsHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "api.open_cursor", err)
		return
	}
	view, err := h.deps.OpenCursor(r.Context(), r.PathValue("id"), req.T)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleGet handles GET /cursors/{cid}?policy=.
func (h *CursorsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	policy, err := queryPolicy(r)
	if err != nil {
		badRequest(w, "api.cursor_state", err)
		return
	}
	view, err := h.deps.CursorState(r.Context(), r.PathValue("cid"), policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSeek handles POST /cursors/{cid}/seek.
func (h *CursorsHandler) HandleSeek(w http.ResponseWriter, r *http.Request) {
	const op = "api.cursor_seek"
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, op, err)
		return
	}
	if req.T == nil {
		badRequest(w, op, errors.New("missing t"))
		return
	}
	view, err := h.deps.SeekCursor(r.Context(), r.PathValue("cid"), *req.T)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleStep handles POST /cursors/{cid}/step.
func (h *CursorsHandler) HandleStep(w http.ResponseWriter, r *http.Request) {
	const op = "api.cursor_step"
	var req stepRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, op, err)
		return
	}
	if req.Delta == nil {
		badRequest(w, op, errors.New("missing delta"))
		return
	}
	view, crossed, err := h.deps.StepCursor(r.Context(), r.PathValue("cid"), *req.Delta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if crossed == nil {
		crossed = []timeline.Crossing{}
	}
	writeJSON(w, http.StatusOK, stepResponse{Cursor: view, Crossings: crossed})
}

// HandlePlay handles POST /cursors/{cid}/play.
func (h *CursorsHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	const op = "api.cursor_play"
	var req playRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, op, err)
		return
	}
	dir, err := parseDirection(req.Direction)
	if err != nil {
		badRequest(w, op, err)
		return
	}
	view, err := h.deps.PlayCursor(r.Context(), r.PathValue("cid"), service.PlayOptions{
		Direction: dir,
		Rate:      req.Rate,
		Loop:      req.Loop,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandlePause handles POST /cursors/{cid}/pause.
func (h *CursorsHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.PauseCursor(r.Context(), r.PathValue("cid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleAdvance handles POST /cursors/{cid}/advance.
func (h *CursorsHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	const op = "api.cursor_advance"
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, op, err)
		return
	}
	if req.DT == nil {
		badRequest(w, op, errors.New("missing dt"))
		return
	}
	view, p, err := h.deps.AdvanceCursor(r.Context(), r.PathValue("cid"), *req.DT)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Cursor: view, Progress: p})
}

// HandleClose handles DELETE /cursors/{cid}.
func (h *CursorsHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CloseCursor(r.Context(), r.PathValue("cid")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
