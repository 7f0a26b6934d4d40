package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/identity"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// Side effect names used in warnings and metrics
const (
	EffectAudit  = "audit"
	EffectClaims = "claims"
	EffectCache  = "cache"
)

// CacheInvalidator drops cached role snapshots
type CacheInvalidator interface {
	Invalidate(ctx context.Context, actorID int64) error
}

// MetricsRecorder observes mutation outcomes
type MetricsRecorder interface {
	RecordMutation(operation, outcome string)
	RecordSideEffectFailure(effect string)
	RecordBulkAssignment(duration time.Duration)
}

// Service applies role mutations
type Service struct {
	store           store.Store
	sink            audit.Sink
	claims          identity.ClaimsPublisher
	cache           CacheInvalidator
	metrics         MetricsRecorder
	logger          *observability.Logger
	bulkConcurrency int
}

// Option configures a Service
type Option func(*Service)

// WithAuditSink records role change events to sink
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithClaimsPublisher pushes organization role changes to the identity provider
func WithClaimsPublisher(p identity.ClaimsPublisher) Option {
	return func(s *Service) { s.claims = p }
}

// WithCacheInvalidator drops cached snapshots after every change
func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics reports outcomes to m
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBulkConcurrency bounds how many bulk assignments run at once
func WithBulkConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkConcurrency = n
		}
	}
}

// NewService creates a role mutation service
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:           st,
		sink:            audit.NewMultiSink(),
		claims:          identity.NoopClaimsPublisher{},
		logger:          observability.NopLogger(),
		bulkConcurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Warning describes a post-commit step that failed
type Warning struct {
	Effect  string `json:"effect"`
	Message string `json:"message"`
}

// OrgRoleChange is the result of an organization role change
type OrgRoleChange struct {
	Actor    *store.Actor           `json:"actor"`
	Event    *audit.RoleChangeEvent `json:"event"`
	Warnings []Warning              `json:"warnings,omitempty"`
}

// ProjectRoleChange is the result of a project membership change. Member is
// nil after a removal.
type ProjectRoleChange struct {
	Member   *store.ProjectMember   `json:"member,omitempty"`
	Previous *store.ProjectMember   `json:"previous,omitempty"`
	Event    *audit.RoleChangeEvent `json:"event"`
	Warnings []Warning              `json:"warnings,omitempty"`
}

// outcome labels a mutation result for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, rbac.ErrSelfModification):
		return "self_modification"
	case errors.Is(err, rbac.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, rbac.ErrLastOwner):
		return "last_owner"
	case errors.Is(err, rbac.ErrConflictingMutation):
		return "conflict"
	case errors.Is(err, rbac.ErrDuplicateMember):
		return "duplicate"
	case errors.Is(err, rbac.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, rbac.ErrActorNotFound),
		errors.Is(err, rbac.ErrMemberNotFound),
		errors.Is(err, rbac.ErrProjectNotFound),
		errors.Is(err, rbac.ErrTenantNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordMutation(operation, outcome(err))
	}
}

// sideEffects runs the best-effort steps after a committed write
type sideEffects struct {
	s        *Service
	ctx      context.Context
	logger   *observability.Logger
	warnings []Warning
}

func (s *Service) after(ctx context.Context, event *audit.RoleChangeEvent) *sideEffects {
	logger := observability.FromContext(observability.WithLogger(ctx, s.logger)).WithFields(map[string]interface{}{
		"scope":           string(event.Scope),
		"action":          string(event.Action),
		"target_actor_id": event.TargetActorID,
		"performed_by":    event.PerformedBy,
	})
	return &sideEffects{s: s, ctx: ctx, logger: logger}
}

func (e *sideEffects) fail(effect string, err error) {
	e.logger.WithError(err).WithField("effect", effect).Warn("role change side effect failed")
	if e.s.metrics != nil {
		e.s.metrics.RecordSideEffectFailure(effect)
	}
	e.warnings = append(e.warnings, Warning{Effect: effect, Message: err.Error()})
}

func (e *sideEffects) audit(event *audit.RoleChangeEvent) {
	if err := e.s.sink.Append(e.ctx, event); err != nil {
		e.fail(EffectAudit, err)
	}
}

func (e *sideEffects) publish(actor *store.Actor) {
	claims := identity.RoleClaims{
		Role:           string(actor.Role),
		OrganizationID: actor.OrganizationID,
		LastRoleUpdate: actor.UpdatedAt,
	}
	if err := e.s.claims.PublishRoleClaims(e.ctx, actor.ExternalID, claims); err != nil {
		e.fail(EffectClaims, err)
	}
}

func (e *sideEffects) invalidate(actorID int64) {
	if e.s.cache == nil {
		return
	}
	if err := e.s.cache.Invalidate(e.ctx, actorID); err != nil {
		e.fail(EffectCache, err)
	}
}

// requester loads the acting actor. Inactive actors cannot act.
func (s *Service) requester(ctx context.Context, requestedBy int64) (*store.Actor, error) {
	actor, err := s.store.GetActor(ctx, requestedBy)
	if err != nil {
		if errors.Is(err, rbac.ErrActorNotFound) {
			return nil, fmt.Errorf("requester: %w", rbac.ErrActorNotFound)
		}
		return nil, err
	}
	if !actor.IsActive {
		return nil, fmt.Errorf("requester is inactive: %w", rbac.ErrActorNotFound)
	}
	return actor, nil
}
