package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/formaly/tiergate/internal/adapters/repository"
	service "github.com/formaly/tiergate/internal/app"
	"github.com/formaly/tiergate/internal/domain/assessment"
	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/pkg/metrics"
)

// defaultMaxAssessFields bounds inline field definitions per submission
// when no explicit cap is configured.
const defaultMaxAssessFields = 200

// AssessHandler runs tier-filtered assessment calculations.
type AssessHandler struct {
	deps      Dependencies
	maxFields int
}

// NewAssessHandler creates a new assessment handler.
func NewAssessHandler(deps Dependencies, maxFields int) *AssessHandler {
	if maxFields <= 0 {
		maxFields = defaultMaxAssessFields
	}
	return &AssessHandler{deps: deps, maxFields: maxFields}
}

// assessRequest carries either inline field definitions or a project id to
// resolve them from the registry; project_id wins when both are present.
type assessRequest struct {
	Subject   subjectPayload    `json:"subject"`
	Strategy  string            `json:"strategy"`
	ProjectID string            `json:"project_id,omitempty"`
	Fields    []model.Field     `json:"fields,omitempty"`
	Responses model.ResponseSet `json:"responses"`
}

func (r assessRequest) validate(maxFields int) error {
	if r.Strategy == "" {
		return errors.New("strategy is required")
	}
	if r.ProjectID == "" && len(r.Fields) == 0 {
		return errors.New("either project_id or fields is required")
	}
	if len(r.Fields) > maxFields {
		return errors.New("too many fields")
	}
	seen := make(map[string]struct{}, len(r.Fields))
	for _, f := range r.Fields {
		if f.ID == "" {
			return errors.New("field id is required")
		}
		if _, dup := seen[f.ID]; dup {
			return errors.New("duplicate field id: " + f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}

type assessResponse struct {
	Success        bool `json:"success"`
	Result         any  `json:"result"`
	Blocked        any  `json:"blocked"`
	Counts         any  `json:"counts"`
	UpgradePrompts any  `json:"upgradePrompts,omitempty"`
}

// HandleAssess handles POST /assess requests.
func (h *AssessHandler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	const op = "api.assess"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(h.maxFields); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.Assess(r.Context(), req.Subject.toModel(), req.Strategy, req.ProjectID, req.Fields, req.Responses)
	if err != nil {
		switch {
		case errors.Is(err, assessment.ErrUnknownStrategy):
			writeError(w, http.StatusBadRequest, "unknown_strategy", Wrap(op, err))
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
		default:
			metrics.RecordErrorByComponent("assessment", "calculation")
			writeError(w, http.StatusInternalServerError, "internal", Wrap(op, err))
		}
		return
	}

	writeJSON(w, http.StatusOK, assessResponse{
		Success:        true,
		Result:         out.Result,
		Blocked:        out.Blocked,
		Counts:         out.Counts,
		UpgradePrompts: promptsOrNil(out),
	})
}

func promptsOrNil(a service.Assessment) any {
	if len(a.UpgradePrompts) == 0 {
		return nil
	}
	return a.UpgradePrompts
}
