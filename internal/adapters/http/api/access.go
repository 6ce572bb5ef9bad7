package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/formaly/tiergate/internal/domain/model"
)

// AccessHandler answers field-level and project-level access checks.
type AccessHandler struct {
	deps Dependencies
}

// NewAccessHandler creates a new access handler.
func NewAccessHandler(deps Dependencies) *AccessHandler {
	return &AccessHandler{deps: deps}
}

type fieldAccessRequest struct {
	Subject subjectPayload `json:"subject"`
	Field   model.Field    `json:"field"`
}

func (r fieldAccessRequest) validate() error {
	if r.Field.ID == "" {
		return errors.New("field.id is required")
	}
	return nil
}

type projectAccessRequest struct {
	Subject subjectPayload `json:"subject"`
	Project model.Project  `json:"project"`
}

func (r projectAccessRequest) validate() error {
	if r.Project.ID == "" {
		return errors.New("project.id is required")
	}
	return nil
}

type accessResponse struct {
	Success bool   `json:"success"`
	Allowed bool   `json:"allowed"`
	Level   string `json:"level,omitempty"`
}

// HandleFieldAccess handles POST /access/field requests.
func (h *AccessHandler) HandleFieldAccess(w http.ResponseWriter, r *http.Request) {
	const op = "api.field_access"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req fieldAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	decision, prompt := h.deps.CheckFieldAccess(r.Context(), req.Subject.toModel(), req.Field)
	if !decision.Allowed {
		writeDenial(w, decision, prompt)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{Success: true, Allowed: true, Level: decision.Level})
}

// HandleProjectAccess handles POST /access/project requests.
func (h *AccessHandler) HandleProjectAccess(w http.ResponseWriter, r *http.Request) {
	const op = "api.project_access"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req projectAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	decision, prompt := h.deps.CheckProjectAccess(r.Context(), req.Subject.toModel(), req.Project)
	if !decision.Allowed {
		writeDenial(w, decision, prompt)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{Success: true, Allowed: true, Level: decision.Level})
}
