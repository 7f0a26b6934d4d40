package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// Check answers whether the caller holds the requested permissions in the
// organization, or in the project when the route names one. A denial is a
// normal 200 response with Allowed false.
func (s *Server) Check(w http.ResponseWriter, r *http.Request) {
	rc := scope(r)

	var req CheckRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.Permissions) == 0 {
		s.fail(w, r, fmt.Errorf("%w: at least one permission is required", rbac.ErrInvalidInput))
		return
	}

	perms := make([]rbac.Permission, 0, len(req.Permissions))
	for _, name := range req.Permissions {
		p, err := rbac.ParsePermission(name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		perms = append(perms, p)
	}

	scopeReq := rbac.Scope{OrganizationID: rc.Organization.ID}
	var projectID *int64
	if rc.Project != nil {
		id := rc.Project.ID
		projectID = &id
		scopeReq.ProjectID = projectID
	}

	decision, err := s.engine.Decide(r.Context(), rc.Actor.ID, rbac.NewPermissionSet(perms...), scopeReq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	effective, err := s.engine.EffectivePermissions(r.Context(), rc.Actor.ID, projectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	httputil.WriteSuccess(w, CheckResponse{Decision: decision, EffectivePermissions: effective})
}

// MyRoles returns the caller's cached role snapshot for display. The
// snapshot may lag a role change by up to the cache TTL; nothing enforces
// against it.
func (s *Server) MyRoles(w http.ResponseWriter, r *http.Request) {
	rc := scope(r)

	snapshot, err := s.roles.ReadThrough(r.Context(), rc.Actor.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int(s.roles.TTL().Seconds())))
	httputil.WriteSuccess(w, snapshot)
}
