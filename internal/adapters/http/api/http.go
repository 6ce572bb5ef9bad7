// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/formaly/tiergate/internal/app"
	"github.com/formaly/tiergate/internal/domain/access"
	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
	"github.com/formaly/tiergate/internal/domain/upgrade"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CheckFieldAccess(ctx context.Context, subject model.Subject, field model.Field) (access.Decision, *upgrade.Prompt)
	CheckProjectAccess(ctx context.Context, subject model.Subject, project model.Project) (access.Decision, *upgrade.Prompt)
	Assess(ctx context.Context, subject model.Subject, strategyName, projectID string, fields []model.Field, responses model.ResponseSet) (service.Assessment, error)

	RegisterProject(ctx context.Context, p model.Project) error
	GetProject(ctx context.Context, id string) (model.Project, error)

	// Invalidation intake: idempotency plus async application.
	SeenAndRecord(ctx context.Context, id string) bool
	Unrecord(ctx context.Context, id string)
	EnqueueInvalidation(ctx context.Context, e model.InvalidationEvent) bool
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	accessHandler        *AccessHandler
	assessHandler        *AssessHandler
	projectsHandler      *ProjectsHandler
	invalidationsHandler *InvalidationsHandler
}

// NewServer creates a new API server with all handlers. maxAssessFields
// caps inline field definitions per assess request.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxAssessFields int) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(statsProvider),
		accessHandler:        NewAccessHandler(deps),
		assessHandler:        NewAssessHandler(deps, maxAssessFields),
		projectsHandler:      NewProjectsHandler(deps),
		invalidationsHandler: NewInvalidationsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/access/field", MetricsMiddleware(s.accessHandler.HandleFieldAccess, "access_field"))
	mux.HandleFunc("/access/project", MetricsMiddleware(s.accessHandler.HandleProjectAccess, "access_project"))
	mux.HandleFunc("/assess", MetricsMiddleware(s.assessHandler.HandleAssess, "assess"))
	mux.HandleFunc("/projects", MetricsMiddleware(s.projectsHandler.HandlePutProject, "projects"))
	mux.HandleFunc("/projects/", MetricsMiddleware(s.projectsHandler.HandleGetProject, "projects_get"))
	mux.HandleFunc("/invalidations", MetricsMiddleware(s.invalidationsHandler.HandlePostInvalidation, "invalidations"))
}

// subjectPayload mirrors the subject claims supplied by the request layer.
// The caller resolves the tier from subscription records; a failure there
// arrives as tier_error and makes every gated check fail closed.
type subjectPayload struct {
	ID            string `json:"id"`
	Authenticated bool   `json:"authenticated"`
	Tier          string `json:"tier"`
	TierError     string `json:"tier_error,omitempty"`
}

func (p subjectPayload) toModel() model.Subject {
	s := model.Subject{
		ID:            p.ID,
		Authenticated: p.Authenticated,
		Tier:          tier.Tier(p.Tier),
	}
	if !p.Authenticated && p.Tier == "" {
		s.Tier = tier.Free
	}
	if p.TierError != "" {
		s.TierErr = errors.New(p.TierError)
	}
	return s
}

// denialResponse is the 403 body. The exact key casing is load-bearing for
// existing clients.
type denialResponse struct {
	Success         bool            `json:"success"`
	Error           string          `json:"error"`
	UpgradeRequired bool            `json:"upgradeRequired"`
	UpgradePrompt   *upgrade.Prompt `json:"upgradePrompt,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
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

// writeDenial renders the backward-compatible 403 envelope for a denied
// decision.
func writeDenial(w http.ResponseWriter, decision access.Decision, prompt *upgrade.Prompt) {
	writeJSON(w, http.StatusForbidden, denialResponse{
		Success:         false,
		Error:           decision.Reason,
		UpgradeRequired: true,
		UpgradePrompt:   prompt,
	})
}
