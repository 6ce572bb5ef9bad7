// Package access resolves whether a subject may see a field or project.
//
// Resolution is a pure function of the subject's tier and the target's
// gating metadata; the decision cache is an optional decorator that must
// never change an outcome, only its cost. Denial is a return value here,
// never an error.
package access

import (
	"context"
	"sync/atomic"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
)

// Access levels reported on allowed project decisions.
const (
	LevelPublic     = "public"
	LevelOwner      = "owner"
	LevelRegistered = "registered"
	LevelTier       = "tier"
)

// Denial reasons. These surface verbatim in API responses, so existing
// clients depend on the exact strings.
const (
	ReasonInsufficientTier = "insufficient tier"
	ReasonTierResolution   = "tier resolution failed"
	ReasonSignInRequired   = "sign in required"
)

// Decision is the outcome of a single access check.
type Decision struct {
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason,omitempty"`
	RequiredTier tier.Tier `json:"required_tier,omitempty"`
	Level        string    `json:"level,omitempty"`
}

// DecisionCache memoizes decisions keyed by (subject, field). Implementations
// must be safe for concurrent use. Get treats expired entries as absent.
type DecisionCache interface {
	Get(ctx context.Context, subjectKey, fieldID string) (Decision, bool)
	Put(ctx context.Context, subjectKey, fieldID string, d Decision)

	// Invalidate drops entries: both keys empty clears everything, a
	// subject key alone clears that subject, a field id alone clears that
	// field across subjects, and both together clear the single pair.
	Invalidate(ctx context.Context, subjectKey, fieldID string)
}

// NopCache satisfies DecisionCache without retaining anything. Useful in
// tests and wherever caching is disabled.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, subjectKey, fieldID string) (Decision, bool) {
	return Decision{}, false
}
func (NopCache) Put(ctx context.Context, subjectKey, fieldID string, d Decision) {}
func (NopCache) Invalidate(ctx context.Context, subjectKey, fieldID string)      {}

// Resolver computes access decisions against a tier hierarchy, consulting
// the cache before deriving and populating it after.
type Resolver struct {
	tiers *tier.Hierarchy
	cache DecisionCache

	// resolutions counts cache-miss derivations; tests use it to prove
	// the cache short-circuits repeat lookups.
	resolutions atomic.Int64
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithCache injects a decision cache. Defaults to NopCache.
func WithCache(c DecisionCache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// NewResolver creates a resolver over the given hierarchy.
func NewResolver(tiers *tier.Hierarchy, opts ...Option) *Resolver {
	r := &Resolver{
		tiers: tiers,
		cache: NopCache{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveFieldAccess decides whether subject may use field. A field without
// a required tier is universally accessible. Any tier-resolution failure
// fails closed: granting access on error is the dangerous failure mode for
// a monetization gate.
func (r *Resolver) ResolveFieldAccess(ctx context.Context, subject model.Subject, field model.Field) Decision {
	if subject.TierErr != nil {
		// Transient failures must not poison the cache.
		return r.deriveFieldDecision(subject, field)
	}

	key := subject.CacheKey()
	if d, ok := r.cache.Get(ctx, key, field.ID); ok {
		return d
	}

	d := r.deriveFieldDecision(subject, field)
	r.cache.Put(ctx, key, field.ID, d)
	return d
}

func (r *Resolver) deriveFieldDecision(subject model.Subject, field model.Field) Decision {
	r.resolutions.Add(1)

	if !field.Gated() {
		return Decision{Allowed: true}
	}
	if subject.TierErr != nil {
		return Decision{Allowed: false, Reason: ReasonTierResolution, RequiredTier: field.RequiredTier}
	}
	if r.tiers.AtLeast(subject.Tier, field.RequiredTier) {
		return Decision{Allowed: true, Level: LevelTier}
	}
	return Decision{
		Allowed:      false,
		Reason:       ReasonInsufficientTier,
		RequiredTier: field.RequiredTier,
	}
}

// ResolveProjectAccess decides project-level access: public projects are
// open to everyone, owners always pass, tier-gated projects compare ranks,
// and an unmarked project admits any authenticated subject.
func (r *Resolver) ResolveProjectAccess(ctx context.Context, subject model.Subject, project model.Project) Decision {
	if subject.TierErr != nil {
		return r.deriveProjectDecision(subject, project)
	}

	key := subject.CacheKey()
	cacheID := projectCacheID(project.ID)
	if d, ok := r.cache.Get(ctx, key, cacheID); ok {
		return d
	}

	d := r.deriveProjectDecision(subject, project)
	r.cache.Put(ctx, key, cacheID, d)
	return d
}

func (r *Resolver) deriveProjectDecision(subject model.Subject, project model.Project) Decision {
	r.resolutions.Add(1)

	switch {
	case project.Public:
		return Decision{Allowed: true, Level: LevelPublic}
	case project.OwnerID != "" && project.OwnerID == subject.ID:
		return Decision{Allowed: true, Level: LevelOwner}
	case project.RequiredTier != "":
		if subject.TierErr != nil {
			return Decision{Allowed: false, Reason: ReasonTierResolution, RequiredTier: project.RequiredTier}
		}
		if r.tiers.AtLeast(subject.Tier, project.RequiredTier) {
			return Decision{Allowed: true, Level: LevelTier}
		}
		return Decision{
			Allowed:      false,
			Reason:       ReasonInsufficientTier,
			RequiredTier: project.RequiredTier,
		}
	case subject.Authenticated:
		return Decision{Allowed: true, Level: LevelRegistered}
	default:
		return Decision{Allowed: false, Reason: ReasonSignInRequired, RequiredTier: tier.Registered}
	}
}

// UpgradeAdjacent reports whether required is exactly one tier above the
// subject's current tier.
func (r *Resolver) UpgradeAdjacent(subject model.Subject, required tier.Tier) bool {
	return r.tiers.UpgradeAdjacent(subject.Tier, required)
}

// Hierarchy exposes the underlying tier ordering for collaborators that
// need rank comparisons, e.g. the upgrade prompt builder.
func (r *Resolver) Hierarchy() *tier.Hierarchy {
	return r.tiers
}

// Resolutions returns the number of cache-miss derivations performed.
func (r *Resolver) Resolutions() int64 {
	return r.resolutions.Load()
}

// projectCacheID namespaces project decisions inside the (subject, field)
// keyed cache so they cannot collide with field ids.
func projectCacheID(projectID string) string {
	return "project:" + projectID
}
