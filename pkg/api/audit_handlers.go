package api

import (
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// ListRoleChanges queries the organization's role change trail. Optional
// query parameters: project_id, actor_id, since (RFC 3339) and limit.
func (s *Server) ListRoleChanges(w http.ResponseWriter, r *http.Request) {
	rc := scope(r)

	filter := audit.Filter{OrganizationID: rc.Organization.ID}
	var err error
	if filter.ProjectID, err = httputil.ParseQueryInt64Ptr(r, "project_id"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.TargetActorID, err = httputil.ParseQueryInt64Ptr(r, "actor_id"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.Since, err = httputil.ParseQueryTime(r, "since"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", audit.DefaultListLimit); err != nil {
		s.fail(w, r, err)
		return
	}

	events, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.RoleChangeEvent{}
	}
	httputil.WriteSuccess(w, RoleChangesResponse{Events: events})
}
