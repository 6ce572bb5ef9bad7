package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/formaly/tiergate/internal/adapters/http/api"
	"github.com/formaly/tiergate/internal/adapters/repository"
	service "github.com/formaly/tiergate/internal/app"
	"github.com/formaly/tiergate/internal/domain/access"
	"github.com/formaly/tiergate/internal/domain/assessment"
	"github.com/formaly/tiergate/internal/domain/filter"
	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
	"github.com/formaly/tiergate/internal/domain/upgrade"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDependencies struct {
	fieldDecision   access.Decision
	projectDecision access.Decision
	prompt          *upgrade.Prompt
	lastSubject     model.Subject

	assessOut service.Assessment
	assessErr error

	registerErr error
	project     model.Project
	getErr      error

	seen       map[string]bool
	unrecorded []string
	enqueueOK  bool
	enqueued   []model.InvalidationEvent
}

func (m *mockDependencies) CheckFieldAccess(ctx context.Context, subject model.Subject, field model.Field) (access.Decision, *upgrade.Prompt) {
	m.lastSubject = subject
	if m.fieldDecision.Allowed {
		return m.fieldDecision, nil
	}
	return m.fieldDecision, m.prompt
}

func (m *mockDependencies) CheckProjectAccess(ctx context.Context, subject model.Subject, project model.Project) (access.Decision, *upgrade.Prompt) {
	m.lastSubject = subject
	if m.projectDecision.Allowed {
		return m.projectDecision, nil
	}
	return m.projectDecision, m.prompt
}

func (m *mockDependencies) Assess(ctx context.Context, subject model.Subject, strategyName, projectID string, fields []model.Field, responses model.ResponseSet) (service.Assessment, error) {
	m.lastSubject = subject
	return m.assessOut, m.assessErr
}

func (m *mockDependencies) RegisterProject(ctx context.Context, p model.Project) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.project = p
	return nil
}

func (m *mockDependencies) GetProject(ctx context.Context, id string) (model.Project, error) {
	if m.getErr != nil {
		return model.Project{}, m.getErr
	}
	return m.project, nil
}

func (m *mockDependencies) SeenAndRecord(ctx context.Context, id string) bool {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDependencies) Unrecord(ctx context.Context, id string) {
	delete(m.seen, id)
	m.unrecorded = append(m.unrecorded, id)
}

func (m *mockDependencies) EnqueueInvalidation(ctx context.Context, e model.InvalidationEvent) bool {
	if !m.enqueueOK {
		return false
	}
	m.enqueued = append(m.enqueued, e)
	return true
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies, stats map[string]interface{}) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: stats}, 100)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{enqueueOK: true}
		mux := newMux(deps, map[string]interface{}{"started": true})

		Convey("Then the health endpoint is accessible", func() {
			w := doJSON(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And the stats endpoint returns the provider's view", func() {
			w := doJSON(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(t, w)["started"], ShouldEqual, true)
		})

		Convey("And an unknown route is a 404", func() {
			w := doJSON(mux, "GET", "/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestFieldAccessEndpoint(t *testing.T) {
	Convey("Given the field access endpoint", t, func() {
		deps := &mockDependencies{
			fieldDecision: access.Decision{Allowed: true, Level: access.LevelTier},
		}
		mux := newMux(deps, nil)

		body := `{"subject":{"id":"u-1","authenticated":true,"tier":"premium"},"field":{"id":"revenue","required_tier":"premium"}}`

		Convey("When access is allowed", func() {
			w := doJSON(mux, "POST", "/access/field", body)

			Convey("Then the success envelope carries the level", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				got := decodeBody(t, w)
				So(got["success"], ShouldEqual, true)
				So(got["allowed"], ShouldEqual, true)
				So(got["level"], ShouldEqual, "tier")
			})

			Convey("And the subject claims were mapped through", func() {
				So(deps.lastSubject.ID, ShouldEqual, "u-1")
				So(deps.lastSubject.Tier, ShouldEqual, tier.Premium)
			})
		})

		Convey("When access is denied", func() {
			deps.fieldDecision = access.Decision{
				Allowed:      false,
				Reason:       access.ReasonInsufficientTier,
				RequiredTier: tier.Premium,
			}
			deps.prompt = &upgrade.Prompt{
				Headline:     "Unlock Annual revenue",
				RequiredTier: tier.Premium,
				Features:     []string{"Annual revenue"},
				Message:      "Annual revenue is available on the premium plan and above.",
			}
			w := doJSON(mux, "POST", "/access/field", body)

			Convey("Then the 403 envelope keeps its exact key casing", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
				got := decodeBody(t, w)
				So(got["success"], ShouldEqual, false)
				So(got["error"], ShouldEqual, "insufficient tier")
				So(got["upgradeRequired"], ShouldEqual, true)
				prompt, ok := got["upgradePrompt"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(prompt["required_tier"], ShouldEqual, "premium")
			})
		})

		Convey("When the payload carries a tier resolution error", func() {
			errBody := `{"subject":{"id":"u-1","authenticated":true,"tier":"premium","tier_error":"billing timeout"},"field":{"id":"revenue"}}`
			doJSON(mux, "POST", "/access/field", errBody)

			Convey("Then the mapped subject fails closed downstream", func() {
				So(deps.lastSubject.TierErr, ShouldNotBeNil)
				So(deps.lastSubject.TierErr.Error(), ShouldEqual, "billing timeout")
			})
		})

		Convey("When the subject is anonymous with no tier", func() {
			anonBody := `{"subject":{"authenticated":false},"field":{"id":"name"}}`
			doJSON(mux, "POST", "/access/field", anonBody)

			Convey("Then the tier defaults to the lowest rank", func() {
				So(deps.lastSubject.Tier, ShouldEqual, tier.Free)
			})
		})

		Convey("When the body is not valid JSON", func() {
			w := doJSON(mux, "POST", "/access/field", "{nope")

			Convey("Then a bad request error is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(t, w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the field id is missing", func() {
			w := doJSON(mux, "POST", "/access/field", `{"subject":{},"field":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is GET", func() {
			w := doJSON(mux, "GET", "/access/field", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestProjectAccessEndpoint(t *testing.T) {
	Convey("Given the project access endpoint", t, func() {
		deps := &mockDependencies{
			projectDecision: access.Decision{Allowed: true, Level: access.LevelPublic},
		}
		mux := newMux(deps, nil)
		body := `{"subject":{"id":"u-1","authenticated":true,"tier":"free"},"project":{"id":"open","public":true}}`

		Convey("When access is allowed", func() {
			w := doJSON(mux, "POST", "/access/project", body)

			Convey("Then the envelope reports the public level", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody(t, w)["level"], ShouldEqual, "public")
			})
		})

		Convey("When sign-in is required", func() {
			deps.projectDecision = access.Decision{Allowed: false, Reason: access.ReasonSignInRequired}
			w := doJSON(mux, "POST", "/access/project", body)

			Convey("Then the denial reason is surfaced verbatim", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
				So(decodeBody(t, w)["error"], ShouldEqual, "sign in required")
			})
		})

		Convey("When the project id is missing", func() {
			w := doJSON(mux, "POST", "/access/project", `{"subject":{},"project":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAssessEndpoint(t *testing.T) {
	Convey("Given the assess endpoint", t, func() {
		deps := &mockDependencies{
			assessOut: service.Assessment{
				Result: assessment.WeightedResult{
					Strategy:   assessment.StrategyWeighted,
					Score:      82.0,
					Confidence: 100,
				},
				Blocked: []model.BlockedField{
					{FieldID: "revenue", FieldLabel: "Annual revenue", RequiredTier: tier.Premium},
				},
				Counts: filter.Counts{Fields: 2, Responses: 2, Accessible: 1, Blocked: 1},
				UpgradePrompts: []upgrade.Prompt{
					{Headline: "Unlock Annual revenue", RequiredTier: tier.Premium},
				},
			},
		}
		mux := newMux(deps, nil)
		body := `{"subject":{"id":"u-1","authenticated":true,"tier":"registered"},"strategy":"weighted","project_id":"growth-check","responses":{"experience":"senior"}}`

		Convey("When a submission succeeds", func() {
			w := doJSON(mux, "POST", "/assess", body)

			Convey("Then the envelope carries result, blocked and prompts", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				got := decodeBody(t, w)
				So(got["success"], ShouldEqual, true)
				result, ok := got["result"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(result["score"], ShouldEqual, 82.0)
				blocked, ok := got["blocked"].([]any)
				So(ok, ShouldBeTrue)
				So(blocked, ShouldHaveLength, 1)
				So(got, ShouldContainKey, "upgradePrompts")
			})
		})

		Convey("When nothing was blocked", func() {
			deps.assessOut.Blocked = []model.BlockedField{}
			deps.assessOut.UpgradePrompts = nil
			w := doJSON(mux, "POST", "/assess", body)

			Convey("Then the prompts key is omitted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody(t, w), ShouldNotContainKey, "upgradePrompts")
			})
		})

		Convey("When the strategy is unknown", func() {
			deps.assessErr = assessment.NewUnknownStrategy("bayesian")
			w := doJSON(mux, "POST", "/assess", body)

			Convey("Then a 400 with the strategy code is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(t, w)["code"], ShouldEqual, "unknown_strategy")
			})
		})

		Convey("When the project is unknown", func() {
			deps.assessErr = fmt.Errorf("load project growth-check: %w", repository.ErrNotFound)
			w := doJSON(mux, "POST", "/assess", body)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the calculation fails unexpectedly", func() {
			deps.assessErr = errors.New("boom")
			w := doJSON(mux, "POST", "/assess", body)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When neither project_id nor fields are given", func() {
			w := doJSON(mux, "POST", "/assess", `{"subject":{},"strategy":"weighted","responses":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the strategy is empty", func() {
			w := doJSON(mux, "POST", "/assess", `{"subject":{},"project_id":"p","responses":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When inline fields exceed the configured cap", func() {
			fields := make([]string, 0, 101)
			for i := 0; i < 101; i++ {
				fields = append(fields, fmt.Sprintf(`{"id":"f%d"}`, i))
			}
			big := `{"subject":{},"strategy":"weighted","fields":[` + strings.Join(fields, ",") + `],"responses":{}}`
			w := doJSON(mux, "POST", "/assess", big)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When inline fields repeat an id", func() {
			dup := `{"subject":{},"strategy":"weighted","fields":[{"id":"a"},{"id":"a"}],"responses":{}}`
			w := doJSON(mux, "POST", "/assess", dup)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestProjectsEndpoints(t *testing.T) {
	Convey("Given the projects endpoints", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, nil)

		Convey("When registering a project", func() {
			body := `{"project":{"id":"growth-check","name":"Growth readiness check","fields":[{"id":"experience","weight":40}]}}`
			w := doJSON(mux, "PUT", "/projects", body)

			Convey("Then the stored definition is echoed back", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				got := decodeBody(t, w)
				So(got["success"], ShouldEqual, true)
				project, ok := got["project"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(project["id"], ShouldEqual, "growth-check")
			})
		})

		Convey("When the definition repeats a field id", func() {
			deps.registerErr = fmt.Errorf("put project: %w", repository.ErrDuplicateField)
			w := doJSON(mux, "PUT", "/projects", `{"project":{"id":"p"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the project id is missing", func() {
			w := doJSON(mux, "PUT", "/projects", `{"project":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When fetching a project", func() {
			deps.project = model.Project{ID: "growth-check", Name: "Growth readiness check"}
			w := doJSON(mux, "GET", "/projects/growth-check", "")

			Convey("Then the definition is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				project, ok := decodeBody(t, w)["project"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(project["name"], ShouldEqual, "Growth readiness check")
			})
		})

		Convey("When fetching an unknown project", func() {
			deps.getErr = repository.ErrNotFound
			w := doJSON(mux, "GET", "/projects/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the path carries extra segments", func() {
			w := doJSON(mux, "GET", "/projects/a/b", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting to the collection", func() {
			w := doJSON(mux, "POST", "/projects", `{}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestInvalidationsEndpoint(t *testing.T) {
	Convey("Given the invalidations endpoint", t, func() {
		deps := &mockDependencies{enqueueOK: true}
		mux := newMux(deps, nil)
		body := `{"event_id":"evt-1","subject_id":"u-1"}`

		Convey("When a new event arrives", func() {
			w := doJSON(mux, "POST", "/invalidations", body)

			Convey("Then it is accepted and enqueued", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				got := decodeBody(t, w)
				So(got["status"], ShouldEqual, "accepted")
				So(got["duplicate"], ShouldEqual, false)
				So(deps.enqueued, ShouldHaveLength, 1)
				So(deps.enqueued[0].EventID, ShouldEqual, "evt-1")
				So(deps.enqueued[0].SubjectID, ShouldEqual, "u-1")
			})
		})

		Convey("When the same event id arrives twice", func() {
			doJSON(mux, "POST", "/invalidations", body)
			w := doJSON(mux, "POST", "/invalidations", body)

			Convey("Then the replay is acknowledged without enqueueing", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody(t, w)["duplicate"], ShouldEqual, true)
				So(deps.enqueued, ShouldHaveLength, 1)
			})
		})

		Convey("When the queue is full", func() {
			deps.enqueueOK = false
			w := doJSON(mux, "POST", "/invalidations", body)

			Convey("Then backpressure is signalled and the seen mark rolled back", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decodeBody(t, w)["code"], ShouldEqual, "backpressure")
				So(deps.unrecorded, ShouldResemble, []string{"evt-1"})
			})

			Convey("And a retry after recovery lands", func() {
				deps.enqueueOK = true
				retry := doJSON(mux, "POST", "/invalidations", body)
				So(retry.Code, ShouldEqual, http.StatusAccepted)
			})
		})

		Convey("When the event id is missing", func() {
			w := doJSON(mux, "POST", "/invalidations", `{"subject_id":"u-1"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
