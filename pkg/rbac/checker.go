package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Grant sources recorded on a Decision
const (
	GrantedBySuperAdmin   = "super_admin"
	GrantedByOrganization = "organization"
	GrantedByProject      = "project"
)

// OrgMembership is an actor's current organization assignment
type OrgMembership struct {
	ActorID        int64
	OrganizationID int64
	Role           OrgRole
	Active         bool
}

// Assignments is the read side of persistence the engine depends on.
// OrganizationRole returns ErrActorNotFound for unknown actors and
// ProjectRole returns ErrMemberNotFound when there is no membership row.
type Assignments interface {
	OrganizationRole(ctx context.Context, actorID int64) (OrgMembership, error)
	ProjectRole(ctx context.Context, projectID, actorID int64) (ProjectRole, error)
}

// Scope narrows a decision to an organization and optionally a project.
// A zero OrganizationID means the actor's own organization.
type Scope struct {
	OrganizationID int64
	ProjectID      *int64
}

// Decision is the outcome of a permission check
type Decision struct {
	Allowed     bool          `json:"allowed"`
	Reason      string        `json:"reason,omitempty"`
	GrantedBy   string        `json:"granted_by,omitempty"`
	ActorRole   OrgRole       `json:"actor_role,omitempty"`
	ProjectRole ProjectRole   `json:"project_role,omitempty"`
	Required    PermissionSet `json:"required"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// DeniedError converts a denied decision into a *PermissionDeniedError
func (d Decision) DeniedError() error {
	if d.Allowed {
		return nil
	}
	return &PermissionDeniedError{
		Required:  d.Required,
		ActorRole: d.ActorRole,
		Reason:    d.Reason,
	}
}

// DecisionRecorder receives one observation per decision
type DecisionRecorder interface {
	RecordDecision(grantedBy string, allowed bool, duration time.Duration)
}

// Engine decides whether an actor holds a set of permissions. It keeps no
// mutable state and reads current assignments on every call.
type Engine struct {
	assignments Assignments
	recorder    DecisionRecorder
	tracer      trace.Tracer
	now         func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithDecisionRecorder attaches a metrics recorder
func WithDecisionRecorder(r DecisionRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates a decision engine over the given assignments source
func NewEngine(assignments Assignments, opts ...EngineOption) *Engine {
	e := &Engine{
		assignments: assignments,
		tracer:      otel.Tracer("github.com/platinummonkey/tenantguard/pkg/rbac"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide computes allow/deny for actorID holding every permission in required.
// Organization authority and project membership are alternative grant paths:
// either one covering the whole required set allows the request. Unknown or
// inactive actors are denied. A non-nil error means the decision could not be
// made and callers must treat it as a denial.
func (e *Engine) Decide(ctx context.Context, actorID int64, required PermissionSet, scope Scope) (Decision, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "rbac.Decide", trace.WithAttributes(
		attribute.Int64("actor.id", actorID),
		attribute.String("permissions.required", required.String()),
		attribute.Int64("scope.organization_id", scope.OrganizationID),
	))
	defer span.End()

	decision, err := e.decide(ctx, actorID, required, scope)
	decision.CheckedAt = start
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Bool("decision.allowed", decision.Allowed),
		attribute.String("decision.granted_by", decision.GrantedBy),
	)
	if e.recorder != nil {
		e.recorder.RecordDecision(decision.GrantedBy, decision.Allowed, e.now().Sub(start))
	}
	return decision, err
}

func (e *Engine) decide(ctx context.Context, actorID int64, required PermissionSet, scope Scope) (Decision, error) {
	decision := Decision{Required: required}

	membership, err := e.assignments.OrganizationRole(ctx, actorID)
	if errors.Is(err, ErrActorNotFound) {
		decision.Reason = "actor not found"
		return decision, nil
	}
	if err != nil {
		decision.Reason = "role lookup failed"
		return decision, fmt.Errorf("failed to resolve organization role: %w", err)
	}
	if !membership.Active {
		decision.Reason = "actor is inactive"
		return decision, nil
	}
	decision.ActorRole = membership.Role

	if membership.Role == OrgRoleSuperAdmin {
		decision.Allowed = true
		decision.GrantedBy = GrantedBySuperAdmin
		return decision, nil
	}

	if scope.OrganizationID != 0 && scope.OrganizationID != membership.OrganizationID {
		decision.Reason = "actor is outside the organization"
		return decision, nil
	}

	if OrgPermissions(membership.Role).ContainsAll(required) {
		decision.Allowed = true
		decision.GrantedBy = GrantedByOrganization
		return decision, nil
	}

	if scope.ProjectID == nil {
		decision.Reason = fmt.Sprintf("role %s lacks required permissions", membership.Role)
		return decision, nil
	}

	projectRole, err := e.assignments.ProjectRole(ctx, *scope.ProjectID, actorID)
	if errors.Is(err, ErrMemberNotFound) {
		decision.Reason = fmt.Sprintf("role %s lacks required permissions and actor is not a project member", membership.Role)
		return decision, nil
	}
	if err != nil {
		decision.Reason = "project role lookup failed"
		return decision, fmt.Errorf("failed to resolve project role: %w", err)
	}
	decision.ProjectRole = projectRole

	if ProjectPermissions(projectRole).ContainsAll(required) {
		decision.Allowed = true
		decision.GrantedBy = GrantedByProject
		return decision, nil
	}

	decision.Reason = fmt.Sprintf("neither role %s nor project role %s grants required permissions", membership.Role, projectRole)
	return decision, nil
}

// EffectivePermissions returns the union of what the actor's organization
// role and project role grant. It is intended for display; enforcement goes
// through Decide.
func (e *Engine) EffectivePermissions(ctx context.Context, actorID int64, projectID *int64) (PermissionSet, error) {
	membership, err := e.assignments.OrganizationRole(ctx, actorID)
	if err != nil {
		return PermissionSet{}, err
	}
	orgSet := OrgPermissions(membership.Role)
	if orgSet.IsAll() || projectID == nil {
		return orgSet, nil
	}

	projectRole, err := e.assignments.ProjectRole(ctx, *projectID, actorID)
	if errors.Is(err, ErrMemberNotFound) {
		return orgSet, nil
	}
	if err != nil {
		return PermissionSet{}, err
	}

	merged := append(orgSet.Slice(), ProjectPermissions(projectRole).Slice()...)
	return NewPermissionSet(merged...), nil
}
