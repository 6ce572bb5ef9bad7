package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/formaly/tiergate/internal/adapters/repository"
	"github.com/formaly/tiergate/internal/domain/model"
)

// ProjectsHandler manages the project registry.
type ProjectsHandler struct {
	deps Dependencies
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(deps Dependencies) *ProjectsHandler {
	return &ProjectsHandler{deps: deps}
}

type putProjectRequest struct {
	Project model.Project `json:"project"`
}

func (r putProjectRequest) validate() error {
	if r.Project.ID == "" {
		return errors.New("project.id is required")
	}
	return nil
}

type projectResponse struct {
	Success bool          `json:"success"`
	Project model.Project `json:"project"`
}

// HandlePutProject handles PUT /projects requests. Registering an existing
// id replaces the definition and invalidates cached decisions for its fields.
func (h *ProjectsHandler) HandlePutProject(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_project"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	var req putProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.RegisterProject(r.Context(), req.Project); err != nil {
		if errors.Is(err, repository.ErrDuplicateField) || errors.Is(err, repository.ErrMissingID) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{Success: true, Project: req.Project})
}

// HandleGetProject handles GET /projects/{id} requests.
func (h *ProjectsHandler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_project"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/projects/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	p, err := h.deps.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{Success: true, Project: p})
}
