package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/formaly/tiergate/internal/domain/model"
)

// InvalidationsHandler accepts subscription-change notifications and hands
// them to the async invalidation pipeline.
type InvalidationsHandler struct {
	deps Dependencies
}

// NewInvalidationsHandler creates a new invalidations handler.
func NewInvalidationsHandler(deps Dependencies) *InvalidationsHandler {
	return &InvalidationsHandler{deps: deps}
}

type invalidationRequest struct {
	EventID   string `json:"event_id"`
	SubjectID string `json:"subject_id,omitempty"`
	FieldID   string `json:"field_id,omitempty"`
}

func (r invalidationRequest) validate() error {
	if r.EventID == "" {
		return errors.New("event_id is required")
	}
	return nil
}

// HandlePostInvalidation handles POST /invalidations requests. Duplicate
// event ids are acknowledged without re-enqueueing; on queue backpressure
// the seen mark is rolled back so the sender's retry can land.
func (h *InvalidationsHandler) HandlePostInvalidation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_invalidation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req invalidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if h.deps.SeenAndRecord(r.Context(), req.EventID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	e := model.InvalidationEvent{
		EventID:   req.EventID,
		SubjectID: req.SubjectID,
		FieldID:   req.FieldID,
		TS:        time.Now().UTC(),
	}
	if ok := h.deps.EnqueueInvalidation(r.Context(), e); !ok {
		h.deps.Unrecord(r.Context(), req.EventID)
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
