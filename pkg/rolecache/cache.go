package rolecache

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// DefaultTTL bounds how long a snapshot may be served after it was loaded
const DefaultTTL = 30 * time.Second

// ProjectRoleEntry is one project membership inside a snapshot
type ProjectRoleEntry struct {
	ProjectID int64            `json:"project_id"`
	Role      rbac.ProjectRole `json:"role"`
}

// Snapshot is the cached view of one actor's roles
type Snapshot struct {
	ActorID        int64              `json:"actor_id"`
	OrganizationID int64              `json:"organization_id"`
	Role           rbac.OrgRole       `json:"role"`
	Permissions    []rbac.Permission  `json:"permissions"`
	Projects       []ProjectRoleEntry `json:"projects"`
	LoadedAt       time.Time          `json:"loaded_at"`
}

// Backend stores snapshots. Get returns (nil, nil) on a miss.
type Backend interface {
	Name() string
	Get(ctx context.Context, actorID int64) (*Snapshot, error)
	Set(ctx context.Context, snapshot *Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, actorID int64) error
}

// Loader builds a fresh snapshot from the system of record
type Loader func(ctx context.Context, actorID int64) (*Snapshot, error)

// LookupRecorder observes cache hits and misses
type LookupRecorder interface {
	RecordCacheLookup(backend string, hit bool)
}

// Cache is a read-through snapshot cache
type Cache struct {
	backend  Backend
	load     Loader
	ttl      time.Duration
	recorder LookupRecorder
	logger   *observability.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRecorder reports lookups to r
func WithRecorder(r LookupRecorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// WithLogger sets the logger used for backend failures
func WithLogger(l *observability.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a read-through cache over backend
func New(backend Backend, load Loader, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		load:    load,
		ttl:     DefaultTTL,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness bound
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// ReadThrough returns the cached snapshot or loads and stores a new one. A
// failing backend degrades to a direct load.
func (c *Cache) ReadThrough(ctx context.Context, actorID int64) (*Snapshot, error) {
	cached, err := c.backend.Get(ctx, actorID)
	if err != nil {
		c.logger.WithError(err).WithField("actor_id", actorID).Warn("role cache read failed")
	}
	if cached != nil && time.Since(cached.LoadedAt) <= c.ttl {
		c.record(true)
		return cached, nil
	}
	c.record(false)

	snapshot, err := c.load(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role snapshot: %w", err)
	}

	if err := c.backend.Set(ctx, snapshot, c.ttl); err != nil {
		c.logger.WithError(err).WithField("actor_id", actorID).Warn("role cache write failed")
	}
	return snapshot, nil
}

// Invalidate drops the actor's snapshot
func (c *Cache) Invalidate(ctx context.Context, actorID int64) error {
	if err := c.backend.Delete(ctx, actorID); err != nil {
		return fmt.Errorf("failed to invalidate role cache: %w", err)
	}
	return nil
}

func (c *Cache) record(hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(c.backend.Name(), hit)
	}
}
