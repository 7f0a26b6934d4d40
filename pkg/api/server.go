package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/members"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/rolecache"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// Engine is the decision engine surface the API exposes
type Engine interface {
	middleware.Decider
	EffectivePermissions(ctx context.Context, actorID int64, projectID *int64) (rbac.PermissionSet, error)
}

// MembershipService performs role mutations
type MembershipService interface {
	ChangeOrganizationRole(ctx context.Context, targetActorID int64, newRole rbac.OrgRole, requestedBy, organizationID int64) (*members.OrgRoleChange, error)
	BulkAssignRoles(ctx context.Context, assignments []members.Assignment, organizationID, requestedBy int64) []members.BulkResult
	CreateProject(ctx context.Context, organizationID int64, name, slug string, createdBy int64) (*store.Project, *store.ProjectMember, error)
	AddProjectMember(ctx context.Context, targetActorID, projectID int64, role rbac.ProjectRole, requestedBy int64) (*members.ProjectRoleChange, error)
	ChangeProjectRole(ctx context.Context, targetActorID, projectID int64, newRole rbac.ProjectRole, requestedBy int64) (*members.ProjectRoleChange, error)
	RemoveProjectMember(ctx context.Context, targetActorID, projectID int64, requestedBy int64) (*members.ProjectRoleChange, error)
}

// MemberLister reads project rosters
type MemberLister interface {
	ListProjectMembers(ctx context.Context, projectID int64) ([]*store.ProjectMember, error)
}

// Deps are the collaborators of a Server. Limiter is optional.
type Deps struct {
	Guard   *middleware.Guard
	Engine  Engine
	Members MembershipService
	Roster  MemberLister
	Roles   *rolecache.Cache
	Audit   audit.Reader
	Limiter middleware.Limiter
	Logger  *observability.Logger
}

// Server serves the admin API
type Server struct {
	guard   *middleware.Guard
	engine  Engine
	members MembershipService
	roster  MemberLister
	roles   *rolecache.Cache
	audit   audit.Reader
	limiter middleware.Limiter
	logger  *observability.Logger
}

// NewServer creates the API server
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Server{
		guard:   deps.Guard,
		engine:  deps.Engine,
		members: deps.Members,
		roster:  deps.Roster,
		roles:   deps.Roles,
		audit:   deps.Audit,
		limiter: deps.Limiter,
		logger:  logger,
	}
}

// RegisterRoutes mounts every route under /api/v1/organization/{org}. Each
// route runs behind the guard with the permissions it needs.
func (s *Server) RegisterRoutes(router *mux.Router) {
	org := router.PathPrefix("/api/v1/organization/{org}").Subrouter()

	// Authorization queries
	org.Handle("/check", s.guarded(s.Check)).Methods(http.MethodPost)
	org.Handle("/projects/{project}/check", s.guarded(s.Check)).Methods(http.MethodPost)
	org.Handle("/me/roles", s.guarded(s.MyRoles)).Methods(http.MethodGet)

	// Organization roles
	org.Handle("/members/roles:bulk", s.mutation(s.BulkAssignRoles, rbac.PermManageUsers)).Methods(http.MethodPost)
	org.Handle("/members/{actor}/role", s.mutation(s.ChangeOrganizationRole, rbac.PermManageUsers)).Methods(http.MethodPut)

	// Projects
	org.Handle("/projects", s.mutation(s.CreateProject, rbac.PermCreateProject)).Methods(http.MethodPost)
	org.Handle("/projects/{project}/members", s.guarded(s.ListProjectMembers, rbac.PermViewContent)).Methods(http.MethodGet)
	org.Handle("/projects/{project}/members/{actor}", s.mutation(s.AddProjectMember, rbac.PermManageProjectMembers)).Methods(http.MethodPost)
	org.Handle("/projects/{project}/members/{actor}", s.mutation(s.ChangeProjectRole, rbac.PermManageProjectMembers)).Methods(http.MethodPut)
	org.Handle("/projects/{project}/members/{actor}", s.mutation(s.RemoveProjectMember, rbac.PermManageProjectMembers)).Methods(http.MethodDelete)

	// Audit
	org.Handle("/audit/role-changes", s.guarded(s.ListRoleChanges, rbac.PermManageUsers)).Methods(http.MethodGet)
}

func (s *Server) guarded(h http.HandlerFunc, required ...rbac.Permission) http.Handler {
	return s.guard.Require(required...)(h)
}

// mutation is guarded and, when a limiter is configured, rate limited per actor
func (s *Server) mutation(h http.HandlerFunc, required ...rbac.Permission) http.Handler {
	var next http.Handler = h
	if s.limiter != nil {
		next = middleware.RateLimit(s.limiter, s.logger)(next)
	}
	return s.guard.Require(required...)(next)
}

// scope returns the guard's request context. Handlers are only mounted
// behind the guard, so a missing context is a wiring bug.
func scope(r *http.Request) *middleware.RequestContext {
	rc, ok := middleware.FromContext(r.Context())
	if !ok {
		panic("api: handler mounted without guard")
	}
	return rc
}

// fail writes err and logs server-side failures
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httputil.WriteError(w, r, err)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
}
