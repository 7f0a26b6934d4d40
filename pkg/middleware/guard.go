package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/identity"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// Path markers. The segment after OrganizationMarker selects the
// organization and the segment after ProjectsMarker selects the project.
const (
	OrganizationMarker = store.OrganizationSegment
	ProjectsMarker     = store.ProjectsSegment
)

// Stage names in pipeline order
const (
	StageAuthenticate        = "authenticate"
	StageResolveOrganization = "resolve_organization"
	StageResolveProject      = "resolve_project"
	StageAuthorize           = "authorize"
)

// RequestContext is the trusted scope of a request after the guard ran.
// Handlers read tenant scope from here and never from the request itself.
type RequestContext struct {
	Actor        *store.Actor
	Organization *store.Organization
	Project      *store.Project // nil when the route has no project segment
	Decision     rbac.Decision
}

// FromContext returns the RequestContext stored by the guard
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextkeys.RequestContextKey).(*RequestContext)
	return rc, ok && rc != nil
}

// Stage is one step of the guard pipeline. It may fill in rc and returns an
// error to stop the pipeline.
type Stage struct {
	Name string
	Run  func(r *http.Request, rc *RequestContext) error
}

// ActorLookup finds provisioned actors by identity provider subject
type ActorLookup interface {
	GetActorByExternalID(ctx context.Context, externalID string) (*store.Actor, error)
}

// OrganizationLookup resolves organization selectors
type OrganizationLookup interface {
	GetOrganization(ctx context.Context, id int64) (*store.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*store.Organization, error)
}

// ProjectLookup resolves project selectors
type ProjectLookup interface {
	GetProject(ctx context.Context, id int64) (*store.Project, error)
	GetProjectBySlug(ctx context.Context, organizationID int64, slug string) (*store.Project, error)
}

// Decider is the decision engine contract the guard needs
type Decider interface {
	Decide(ctx context.Context, actorID int64, required rbac.PermissionSet, scope rbac.Scope) (rbac.Decision, error)
}

// Authenticate turns the bearer token into a live, active actor
func Authenticate(authenticator identity.Authenticator, actors ActorLookup) Stage {
	return Stage{
		Name: StageAuthenticate,
		Run: func(r *http.Request, rc *RequestContext) error {
			token, err := identity.BearerToken(r)
			if err != nil {
				return err
			}

			id, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				return err
			}

			actor, err := actors.GetActorByExternalID(r.Context(), id.Subject)
			if errors.Is(err, rbac.ErrActorNotFound) {
				return fmt.Errorf("%w: subject is not provisioned", rbac.ErrUnauthenticated)
			}
			if err != nil {
				return fmt.Errorf("failed to look up actor: %w", err)
			}
			if !actor.IsActive {
				return fmt.Errorf("%w: actor is inactive", rbac.ErrUnauthenticated)
			}

			rc.Actor = actor
			return nil
		},
	}
}

// OrganizationStrategy selects where the organization scope comes from
type OrganizationStrategy int

const (
	// FromPath reads the segment after OrganizationMarker, a numeric ID or a slug
	FromPath OrganizationStrategy = iota
	// FromActor uses the authenticated actor's own organization
	FromActor
)

func (s OrganizationStrategy) String() string {
	if s == FromActor {
		return "actor"
	}
	return "path"
}

// ResolveOrganization fills rc.Organization. An unresolvable selector and an
// organization the actor does not belong to are indistinguishable, unless the
// actor is SUPER_ADMIN.
func ResolveOrganization(strategy OrganizationStrategy, orgs OrganizationLookup) Stage {
	return Stage{
		Name: StageResolveOrganization,
		Run: func(r *http.Request, rc *RequestContext) error {
			var (
				org *store.Organization
				err error
			)
			switch strategy {
			case FromActor:
				org, err = orgs.GetOrganization(r.Context(), rc.Actor.OrganizationID)
			default:
				selector, at := selectorAfter(pathSegments(r.URL.Path), 0, OrganizationMarker)
				if at < 0 {
					return rbac.ErrTenantNotFound
				}
				if id, perr := strconv.ParseInt(selector, 10, 64); perr == nil {
					org, err = orgs.GetOrganization(r.Context(), id)
				} else {
					org, err = orgs.GetOrganizationBySlug(r.Context(), selector)
				}
			}
			if err != nil {
				if errors.Is(err, rbac.ErrTenantNotFound) {
					return rbac.ErrTenantNotFound
				}
				return fmt.Errorf("failed to resolve organization: %w", err)
			}

			if org.ID != rc.Actor.OrganizationID && rc.Actor.Role != rbac.OrgRoleSuperAdmin {
				return rbac.ErrTenantNotFound
			}

			rc.Organization = org
			return nil
		},
	}
}

// ResolveProject fills rc.Project when the path has a project segment after
// the organization selector. The project is looked up within
// rc.Organization; a project of any other organization does not exist from
// this request's point of view.
func ResolveProject(projects ProjectLookup) Stage {
	return Stage{
		Name: StageResolveProject,
		Run: func(r *http.Request, rc *RequestContext) error {
			segments := pathSegments(r.URL.Path)
			from := 0
			if _, at := selectorAfter(segments, 0, OrganizationMarker); at >= 0 {
				from = at + 1
			}
			selector, at := selectorAfter(segments, from, ProjectsMarker)
			if at < 0 {
				return nil
			}

			var (
				project *store.Project
				err     error
			)
			if id, perr := strconv.ParseInt(selector, 10, 64); perr == nil {
				project, err = projects.GetProject(r.Context(), id)
				if err == nil && project.OrganizationID != rc.Organization.ID {
					return rbac.ErrProjectNotFound
				}
			} else {
				project, err = projects.GetProjectBySlug(r.Context(), rc.Organization.ID, selector)
			}
			if err != nil {
				if errors.Is(err, rbac.ErrProjectNotFound) {
					return rbac.ErrProjectNotFound
				}
				return fmt.Errorf("failed to resolve project: %w", err)
			}

			rc.Project = project
			return nil
		},
	}
}

// Authorize asks the decision engine with live role reads
func Authorize(engine Decider, required ...rbac.Permission) Stage {
	perms := rbac.NewPermissionSet(required...)
	return Stage{
		Name: StageAuthorize,
		Run: func(r *http.Request, rc *RequestContext) error {
			scope := rbac.Scope{OrganizationID: rc.Organization.ID}
			if rc.Project != nil {
				projectID := rc.Project.ID
				scope.ProjectID = &projectID
			}

			decision, err := engine.Decide(r.Context(), rc.Actor.ID, perms, scope)
			if err != nil {
				return fmt.Errorf("authorization decision failed: %w", err)
			}
			rc.Decision = decision
			return decision.DeniedError()
		},
	}
}

func pathSegments(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// selectorAfter returns the segment following the first marker found at or
// after segments[from], with its index. The index is -1 when there is none.
func selectorAfter(segments []string, from int, marker string) (string, int) {
	for i := from; i < len(segments)-1; i++ {
		if segments[i] == marker && segments[i+1] != "" {
			return segments[i+1], i + 1
		}
	}
	return "", -1
}

// GuardStore is the persistence the guard resolves against
type GuardStore interface {
	ActorLookup
	OrganizationLookup
	ProjectLookup
}

// Guard runs the authenticate, resolve organization, resolve project and
// authorize stages in that order
type Guard struct {
	stages []Stage
	engine Decider
	logger *observability.Logger
}

// GuardOption configures a Guard
type GuardOption func(*guardConfig)

type guardConfig struct {
	strategy OrganizationStrategy
	logger   *observability.Logger
}

// WithOrganizationStrategy overrides the default FromPath strategy
func WithOrganizationStrategy(s OrganizationStrategy) GuardOption {
	return func(c *guardConfig) { c.strategy = s }
}

// WithGuardLogger sets the logger used for failed requests
func WithGuardLogger(l *observability.Logger) GuardOption {
	return func(c *guardConfig) { c.logger = l }
}

// NewGuard builds the pipeline
func NewGuard(authenticator identity.Authenticator, st GuardStore, engine Decider, opts ...GuardOption) *Guard {
	cfg := guardConfig{strategy: FromPath, logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Guard{
		stages: []Stage{
			Authenticate(authenticator, st),
			ResolveOrganization(cfg.strategy, st),
			ResolveProject(st),
		},
		engine: engine,
		logger: cfg.logger,
	}
}

// Stages returns the stage names in execution order
func (g *Guard) Stages() []string {
	names := make([]string, 0, len(g.stages)+1)
	for _, s := range g.stages {
		names = append(names, s.Name)
	}
	return append(names, StageAuthorize)
}

// Run executes every stage for r and returns the resulting context or the
// first stage error
func (g *Guard) Run(r *http.Request, required ...rbac.Permission) (*RequestContext, error) {
	rc := &RequestContext{}
	stages := append(append([]Stage{}, g.stages...), Authorize(g.engine, required...))
	for _, stage := range stages {
		if err := stage.Run(r, rc); err != nil {
			return rc, err
		}
		if stage.Name == StageAuthenticate && rc.Actor != nil {
			r = r.WithContext(contextkeys.WithActorID(r.Context(), rc.Actor.ID))
		}
	}
	return rc, nil
}

// Require returns middleware admitting only requests whose actor holds every
// permission in required within the resolved scope
func (g *Guard) Require(required ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, err := g.Run(r, required...)
			if err != nil {
				g.reject(w, r, rc, err)
				return
			}

			ctx := contextkeys.WithActorID(r.Context(), rc.Actor.ID)
			ctx = contextkeys.WithRequestContext(ctx, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, rc *RequestContext, err error) {
	ctx := r.Context()
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); !ok {
		ctx = observability.WithLogger(ctx, g.logger)
	}
	if rc != nil && rc.Actor != nil {
		ctx = contextkeys.WithActorID(ctx, rc.Actor.ID)
	}
	logger := observability.FromContext(ctx).WithError(err).WithField("path", r.URL.Path)

	status := httputil.WriteError(w, r, err)
	if status >= http.StatusInternalServerError {
		logger.Error("guard failed")
	} else {
		logger.WithField("status", status).Debug("guard rejected request")
	}
}
