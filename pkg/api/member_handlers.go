package api

import (
	"fmt"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/members"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// ChangeOrganizationRole sets the organization role of the actor in the path
func (s *Server) ChangeOrganizationRole(w http.ResponseWriter, r *http.Request) {
	rc := scope(r)

	target, err := httputil.ParsePathInt64(r, "actor")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req RoleRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := rbac.ParseOrgRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	change, err := s.members.ChangeOrganizationRole(r.Context(), target, role, rc.Actor.ID, rc.Organization.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, change)
}

// BulkAssignRoles applies several organization role changes. Items fail
// independently; the response is 200 whenever the request itself was valid.
func (s *Server) BulkAssignRoles(w http.ResponseWriter, r *http.Request) {
	rc := scope(r)

	var req BulkRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	switch n := len(req.Assignments); {
	case n == 0:
		s.fail(w, r, fmt.Errorf("%w: at least one assignment is required", rbac.ErrInvalidInput))
		return
	case n > MaxBulkAssignments:
		s.fail(w, r, fmt.Errorf("%w: at most %d assignments per request", rbac.ErrInvalidInput, MaxBulkAssignments))
		return
	}

	results := make([]BulkItemResult, len(req.Assignments))
	assignments := make([]members.Assignment, 0, len(req.Assignments))
	index := make([]int, 0, len(req.Assignments))
	for i, a := range req.Assignments {
		results[i] = BulkItemResult{ActorID: a.ActorID, Role: a.Role}
		role, err := rbac.ParseOrgRole(a.Role)
		if err != nil {
			results[i].fail(err)
			continue
		}
		assignments = append(assignments, members.Assignment{ActorID: a.ActorID, Role: role})
		index = append(index, i)
	}

	for j, res := range s.members.BulkAssignRoles(r.Context(), assignments, rc.Organization.ID, rc.Actor.ID) {
		item := &results[index[j]]
		if res.Err != nil {
			item.fail(res.Err)
			continue
		}
		item.Status = http.StatusOK
		item.Change = res.Change
	}

	resp := BulkResponse{Results: results}
	for _, item := range results {
		if item.Status == http.StatusOK {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	httputil.WriteSuccess(w, resp)
}

func (b *BulkItemResult) fail(err error) {
	b.Status = httputil.StatusFor(err)
	b.Code = httputil.ErrorCode(err)
	b.Error = httputil.PublicMessage(err, b.Status)
}
