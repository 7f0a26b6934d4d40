package api

import (
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/members"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// CreateProject creates a project in the organization; the caller becomes
// its OWNER
func (s *Server) CreateProject(w http.ResponseWriter, r *http.Request) {
	rc := scope(r)

	var req CreateProjectRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	project, owner, err := s.members.CreateProject(r.Context(), rc.Organization.ID, req.Name, req.Slug, rc.Actor.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, CreateProjectResponse{Project: project, Owner: owner})
}

// ListProjectMembers returns the roster of the project in the path
func (s *Server) ListProjectMembers(w http.ResponseWriter, r *http.Request) {
	rc := scope(r)

	roster, err := s.roster.ListProjectMembers(r.Context(), rc.Project.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, MembersResponse{ProjectID: rc.Project.ID, Members: roster})
}

// AddProjectMember adds the actor in the path to the project
func (s *Server) AddProjectMember(w http.ResponseWriter, r *http.Request) {
	s.projectRoleMutation(w, r, http.StatusCreated, func(t projectTarget, role rbac.ProjectRole) (*members.ProjectRoleChange, error) {
		return s.members.AddProjectMember(r.Context(), t.actorID, t.projectID, role, t.requestedBy)
	})
}

// ChangeProjectRole changes the project role of the actor in the path
func (s *Server) ChangeProjectRole(w http.ResponseWriter, r *http.Request) {
	s.projectRoleMutation(w, r, http.StatusOK, func(t projectTarget, role rbac.ProjectRole) (*members.ProjectRoleChange, error) {
		return s.members.ChangeProjectRole(r.Context(), t.actorID, t.projectID, role, t.requestedBy)
	})
}

// RemoveProjectMember removes the actor in the path from the project
func (s *Server) RemoveProjectMember(w http.ResponseWriter, r *http.Request) {
	t, err := s.projectTarget(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	change, err := s.members.RemoveProjectMember(r.Context(), t.actorID, t.projectID, t.requestedBy)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, change)
}

type projectTarget struct {
	projectID   int64
	actorID     int64
	requestedBy int64
}

func (s *Server) projectTarget(r *http.Request) (projectTarget, error) {
	rc := scope(r)
	actorID, err := httputil.ParsePathInt64(r, "actor")
	if err != nil {
		return projectTarget{}, err
	}
	return projectTarget{projectID: rc.Project.ID, actorID: actorID, requestedBy: rc.Actor.ID}, nil
}

func (s *Server) projectRoleMutation(w http.ResponseWriter, r *http.Request, status int, apply func(projectTarget, rbac.ProjectRole) (*members.ProjectRoleChange, error)) {
	t, err := s.projectTarget(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req RoleRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := rbac.ParseProjectRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	change, err := apply(t, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, status, change)
}
