// Package service wires the access, filtering, and assessment components
// into the single dependency the HTTP API consumes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/formaly/tiergate/internal/adapters/cache"
	eventqueue "github.com/formaly/tiergate/internal/adapters/mq/queue"
	workerpool "github.com/formaly/tiergate/internal/adapters/mq/worker"
	"github.com/formaly/tiergate/internal/adapters/repository"
	"github.com/formaly/tiergate/internal/domain/access"
	"github.com/formaly/tiergate/internal/domain/assessment"
	"github.com/formaly/tiergate/internal/domain/dedupe"
	"github.com/formaly/tiergate/internal/domain/filter"
	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
	"github.com/formaly/tiergate/internal/domain/upgrade"
	"github.com/formaly/tiergate/pkg/logger"
	"github.com/formaly/tiergate/pkg/metrics"
)

// Assessment is the full outcome of one submission: the computed result
// plus everything the caller needs to render upsells.
type Assessment struct {
	Result         assessment.Result    `json:"result"`
	Blocked        []model.BlockedField `json:"blocked"`
	Counts         filter.Counts        `json:"counts"`
	UpgradePrompts []upgrade.Prompt     `json:"upgrade_prompts"`
}

// Service implements the API dependencies for the access and assessment
// system.
type Service struct {
	mu sync.RWMutex

	// Core components
	tiers      *tier.Hierarchy
	cache      *cache.DecisionCache
	resolver   *access.Resolver
	filter     *filter.Filter
	engine     *assessment.Engine
	prompts    *upgrade.Builder
	registry   repository.Store
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	tierOrder       []tier.Tier
	cacheTTL        time.Duration
	cacheMaxEntries int
	queueSize       int
	workerCount     int
	dedupeSize      int
	shardCount      int
	baseScore       float64

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTierOrder sets the ascending tier ordering.
func WithTierOrder(order []tier.Tier) Option {
	return func(s *Service) {
		if len(order) > 0 {
			s.tierOrder = order
		}
	}
}

// WithCacheTTL sets how long cached decisions stay fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithCacheMaxEntries bounds the decision cache.
func WithCacheMaxEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheMaxEntries = n
		}
	}
}

// WithQueueSize bounds the invalidation event queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithWorkerCount sets the number of invalidation workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithDedupeSize bounds the invalidation idempotency cache.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithShardCount sets registry lock striping.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithBaseScore sets the neutral starting score for calculations.
func WithBaseScore(base float64) Option {
	return func(s *Service) {
		if base >= 0 && base <= 100 {
			s.baseScore = base
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		tierOrder:       tier.DefaultOrder(),
		cacheTTL:        5 * time.Minute,
		cacheMaxEntries: 1000,
		queueSize:       10_000,
		workerCount:     runtime.NumCPU() * 2,
		dedupeSize:      50_000,
		shardCount:      8,
		baseScore:       50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting access service...")

	s.tiers = tier.NewHierarchy(s.tierOrder...)
	s.cache = cache.New(
		cache.WithTTL(s.cacheTTL),
		cache.WithMaxEntries(s.cacheMaxEntries),
	)
	s.resolver = access.NewResolver(s.tiers, access.WithCache(s.cache))
	s.filter = filter.New(s.resolver)
	s.engine = assessment.NewEngine(assessment.WithBaseScore(s.baseScore))
	s.prompts = upgrade.NewBuilder(s.tiers)
	s.registry = repository.NewInMemoryStore(repository.WithShardCount(s.shardCount))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.cache)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "access service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("cacheMaxEntries", s.cacheMaxEntries),
		logger.String("cacheTTL", s.cacheTTL.String()),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping access service...")

	if q, ok := s.eventQueue.(*eventqueue.InMemoryQueue); ok {
		_ = q.Close()
	}
	if s.workerPool != nil {
		s.workerPool.Stop()
	}

	s.started = false
	s.logger.Info(context.Background(), "access service stopped")
}

// CheckFieldAccess resolves field access for a subject. On denial it also
// returns the upgrade prompt derived from the locked field.
func (s *Service) CheckFieldAccess(ctx context.Context, subject model.Subject, field model.Field) (access.Decision, *upgrade.Prompt) {
	start := time.Now()
	decision := s.resolver.ResolveFieldAccess(ctx, subject, field)
	metrics.RecordResolutionLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordAccessDecision("field", outcome(decision))

	if decision.Allowed {
		return decision, nil
	}
	prompt := s.buildPrompt(subject, []model.BlockedField{{
		FieldID:      field.ID,
		FieldLabel:   field.Label,
		RequiredTier: decision.RequiredTier,
	}})
	return decision, prompt
}

// CheckProjectAccess resolves project access for a subject.
func (s *Service) CheckProjectAccess(ctx context.Context, subject model.Subject, project model.Project) (access.Decision, *upgrade.Prompt) {
	start := time.Now()
	decision := s.resolver.ResolveProjectAccess(ctx, subject, project)
	metrics.RecordResolutionLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordAccessDecision("project", outcome(decision))

	if decision.Allowed {
		return decision, nil
	}
	label := project.Name
	if label == "" {
		label = project.ID
	}
	prompt := s.buildPrompt(subject, []model.BlockedField{{
		FieldID:      project.ID,
		FieldLabel:   label,
		RequiredTier: decision.RequiredTier,
	}})
	return decision, prompt
}

// Assess filters a submission down to the accessible subset, runs the
// requested strategy over it, and derives upgrade prompts from whatever
// was blocked. When projectID is set the field list comes from the
// registry; otherwise the caller supplies fields inline.
func (s *Service) Assess(ctx context.Context, subject model.Subject, strategyName, projectID string, fields []model.Field, responses model.ResponseSet) (Assessment, error) {
	start := time.Now()

	strategy, err := assessment.ParseStrategy(strategyName)
	if err != nil {
		metrics.RecordCalculationError()
		return Assessment{}, err
	}

	if projectID != "" {
		fields, err = s.registry.Fields(ctx, projectID)
		if err != nil {
			return Assessment{}, fmt.Errorf("load project %s: %w", projectID, err)
		}
	}

	filtered := s.filter.Apply(ctx, subject, fields, responses)
	if n := len(filtered.Blocked); n > 0 {
		metrics.RecordBlockedFields(n)
	}

	result, err := s.engine.Calculate(ctx, strategy, assessment.Input{
		Responses: filtered.Accessible,
		Fields:    fields,
		Locked:    filtered.Locked,
	})
	if err != nil {
		metrics.RecordCalculationError()
		return Assessment{}, err
	}

	out := Assessment{
		Result:         result,
		Blocked:        filtered.Blocked,
		Counts:         filtered.Counts,
		UpgradePrompts: []upgrade.Prompt{},
	}
	if prompt := s.buildPrompt(subject, filtered.Blocked); prompt != nil {
		out.UpgradePrompts = append(out.UpgradePrompts, *prompt)
	}

	metrics.RecordCalculation(string(strategy))
	metrics.RecordCalculationLatency(float64(time.Since(start).Milliseconds()))

	s.logger.Debug(ctx, "assessment computed",
		logger.String("strategy", string(strategy)),
		logger.String("subject", subject.CacheKey()),
		logger.Int("blocked", len(filtered.Blocked)),
	)
	return out, nil
}

// RegisterProject stores a project definition in the registry. Replacing a
// definition invalidates every cached decision for its fields.
func (s *Service) RegisterProject(ctx context.Context, p model.Project) error {
	existing, err := s.registry.Project(ctx, p.ID)
	replacing := err == nil

	if err := s.registry.PutProject(ctx, p); err != nil {
		return err
	}
	if replacing {
		for _, f := range existing.Fields {
			s.cache.Invalidate(ctx, "", f.ID)
		}
	}
	s.logger.Info(ctx, "project registered",
		logger.String("projectID", p.ID),
		logger.Int("fields", len(p.Fields)),
		logger.Bool("replaced", replacing),
	)
	return nil
}

// GetProject returns a registered project definition.
func (s *Service) GetProject(ctx context.Context, id string) (model.Project, error) {
	return s.registry.Project(ctx, id)
}

// IsNotFound reports whether err is the registry's not-found kind.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// SeenAndRecord atomically checks whether an invalidation event id was
// seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordInvalidationDuplicate()
	}
	return seen
}

// Unrecord removes an event id so a failed delivery can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// EnqueueInvalidation submits an invalidation event for asynchronous
// application. Returns false on backpressure.
func (s *Service) EnqueueInvalidation(ctx context.Context, e model.InvalidationEvent) bool {
	ok := s.eventQueue.Enqueue(ctx, e)
	if !ok {
		s.logger.Warn(ctx, "invalidation queue full, rejecting event",
			logger.String("eventID", e.EventID),
		)
	}
	return ok
}

// InvalidateSubject synchronously drops every cached decision for a
// subject. This is the hook subscription-management code calls when an
// active package changes.
func (s *Service) InvalidateSubject(ctx context.Context, subjectID string) {
	s.cache.Invalidate(ctx, subjectID, "")
}

// FlushCache drops every cached decision, e.g. after a permission-template
// edit.
func (s *Service) FlushCache(ctx context.Context) {
	s.cache.Invalidate(ctx, "", "")
}

// Resolutions exposes the resolver's derivation counter for stats.
func (s *Service) Resolutions() int64 {
	return s.resolver.Resolutions()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"tiers":       len(s.tierOrder),
	}

	if s.started {
		stats["queueLength"] = s.eventQueue.Len(ctx)
		stats["cacheEntries"] = s.cache.Len()
		stats["projects"] = s.registry.Count(ctx)
		stats["resolutions"] = s.resolver.Resolutions()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(s.eventQueue.Len(ctx))
		metrics.UpdateCacheSize(s.cache.Len())
		metrics.UpdateProjectCount(s.registry.Count(ctx))
	}
	return stats
}

// buildPrompt wraps the prompt builder with metrics.
func (s *Service) buildPrompt(subject model.Subject, blocked []model.BlockedField) *upgrade.Prompt {
	prompt := s.prompts.Build(blocked, subject.Tier)
	if prompt == nil {
		return nil
	}
	kind := "generic"
	if prompt.Adjacent {
		kind = "adjacent"
	}
	metrics.RecordUpgradePrompt(kind)
	return prompt
}

func outcome(d access.Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return "denied"
}
