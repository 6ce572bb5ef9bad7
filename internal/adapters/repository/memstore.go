package repository

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/pkg/metrics"
)

// Default store configuration constants.
const (
	defaultShardCount = 8
)

// shard is one lock-striped slice of the project map.
type shard struct {
	mu       sync.RWMutex
	projects map[string]model.Project
}

// InMemoryStore implements Store with lock-striped maps. Striping keeps
// project reads on the assess hot path from contending with registry
// writes.
type InMemoryStore struct {
	shards     []*shard
	shardCount int
}

// Option applies a configuration option to the InMemoryStore.
type Option func(*InMemoryStore)

// WithShardCount sets the number of lock stripes.
func WithShardCount(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// NewInMemoryStore creates an in-memory project registry.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{projects: make(map[string]model.Project)}
	}
	return s
}

// PutProject validates and stores a project definition. The stored copy
// has its field list normalized into field_order so readers never re-sort.
func (s *InMemoryStore) PutProject(ctx context.Context, p model.Project) error {
	if p.ID == "" {
		return ErrMissingID
	}
	seen := make(map[string]struct{}, len(p.Fields))
	for _, f := range p.Fields {
		if _, dup := seen[f.ID]; dup {
			return ErrDuplicateField
		}
		seen[f.ID] = struct{}{}
	}

	stored := p
	stored.Fields = make([]model.Field, len(p.Fields))
	copy(stored.Fields, p.Fields)
	sort.SliceStable(stored.Fields, func(i, j int) bool {
		return stored.Fields[i].FieldOrder < stored.Fields[j].FieldOrder
	})

	sh := s.shardFor(p.ID)
	sh.mu.Lock()
	sh.projects[p.ID] = stored
	sh.mu.Unlock()

	metrics.UpdateProjectCount(s.Count(ctx))
	return nil
}

// Project returns a project by id.
func (s *InMemoryStore) Project(ctx context.Context, id string) (model.Project, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	p, ok := sh.projects[id]
	sh.mu.RUnlock()
	if !ok {
		return model.Project{}, ErrNotFound
	}
	return p, nil
}

// Fields returns the ordered field list of a project.
func (s *InMemoryStore) Fields(ctx context.Context, projectID string) ([]model.Field, error) {
	p, err := s.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Field, len(p.Fields))
	copy(out, p.Fields)
	return out, nil
}

// RemoveProject deletes a project definition. Removing an unknown id is a
// no-op.
func (s *InMemoryStore) RemoveProject(ctx context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	delete(sh.projects, id)
	sh.mu.Unlock()

	metrics.UpdateProjectCount(s.Count(ctx))
	return nil
}

// Count returns the number of registered projects.
func (s *InMemoryStore) Count(ctx context.Context) int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.projects)
		sh.mu.RUnlock()
	}
	return total
}

func (s *InMemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[int(h.Sum32())%s.shardCount]
}
