package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// projectScope is what every project mutation resolves before writing
type projectScope struct {
	project   *store.Project
	requester *store.Actor
	authority rbac.ProjectAuthority
}

// resolveProject loads the project and the requester's authority over it. A
// requester from another organization sees rbac.ErrProjectNotFound unless it
// is SUPER_ADMIN.
func (s *Service) resolveProject(ctx context.Context, projectID, requestedBy int64) (*projectScope, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	requester, err := s.requester(ctx, requestedBy)
	if err != nil {
		return nil, err
	}
	if requester.OrganizationID != project.OrganizationID && requester.Role != rbac.OrgRoleSuperAdmin {
		return nil, rbac.ErrProjectNotFound
	}

	authority := rbac.ProjectAuthority{OrgRole: requester.Role}
	own, err := s.store.GetProjectMember(ctx, project.ID, requester.ID)
	switch {
	case err == nil:
		authority.ProjectRole = own.Role
		authority.HasProjectRole = true
	case !errors.Is(err, rbac.ErrMemberNotFound):
		return nil, err
	}

	return &projectScope{project: project, requester: requester, authority: authority}, nil
}

func (s *Service) projectEvent(scope *projectScope, action audit.Action, target int64, oldRole, newRole string) *audit.RoleChangeEvent {
	projectID := scope.project.ID
	return &audit.RoleChangeEvent{
		Scope:          audit.ScopeProject,
		Action:         action,
		OrganizationID: scope.project.OrganizationID,
		ProjectID:      &projectID,
		TargetActorID:  target,
		OldRole:        oldRole,
		NewRole:        newRole,
		PerformedBy:    scope.requester.ID,
	}
}

func (s *Service) finishProjectChange(ctx context.Context, res *store.MembershipResult, event *audit.RoleChangeEvent, message string) *ProjectRoleChange {
	effects := s.after(ctx, event)
	effects.audit(event)
	effects.invalidate(event.TargetActorID)
	effects.logger.WithFields(map[string]interface{}{
		"project_id": *event.ProjectID,
		"old_role":   event.OldRole,
		"new_role":   event.NewRole,
	}).Info(message)

	return &ProjectRoleChange{
		Member:   res.Current,
		Previous: res.Previous,
		Event:    event,
		Warnings: effects.warnings,
	}
}

// AddProjectMember grants role in projectID to targetActorID. The target must
// belong to the project's organization. Actors cannot add themselves.
func (s *Service) AddProjectMember(ctx context.Context, targetActorID, projectID int64, role rbac.ProjectRole, requestedBy int64) (result *ProjectRoleChange, err error) {
	defer func() { s.record("add_project_member", err) }()

	scope, err := s.resolveProject(ctx, projectID, requestedBy)
	if err != nil {
		return nil, err
	}

	target, err := s.store.GetActor(ctx, targetActorID)
	if err != nil {
		return nil, err
	}
	if target.OrganizationID != scope.project.OrganizationID {
		return nil, rbac.ErrActorNotFound
	}

	if _, err := s.store.GetProjectMember(ctx, projectID, targetActorID); err == nil {
		return nil, rbac.ErrDuplicateMember
	} else if !errors.Is(err, rbac.ErrMemberNotFound) {
		return nil, err
	}

	if err := rbac.CheckSelfModification(requestedBy, targetActorID); err != nil {
		return nil, err
	}
	if err := rbac.CheckProjectTransition(scope.authority, nil, &role); err != nil {
		return nil, err
	}

	res, err := s.store.ApplyMembershipChange(ctx, store.MembershipChange{
		Op:              store.MembershipAdd,
		ProjectID:       projectID,
		ActorID:         targetActorID,
		Role:            role,
		ExpectedVersion: scope.project.MemberVersion,
	}, nil)
	if err != nil {
		return nil, err
	}

	event := s.projectEvent(scope, audit.ActionAssign, targetActorID, "", string(role))
	return s.finishProjectChange(ctx, res, event, "project member added"), nil
}

// ChangeProjectRole sets targetActorID's role in projectID to newRole
func (s *Service) ChangeProjectRole(ctx context.Context, targetActorID, projectID int64, newRole rbac.ProjectRole, requestedBy int64) (result *ProjectRoleChange, err error) {
	defer func() { s.record("change_project_role", err) }()

	return s.rewriteMembership(ctx, store.MembershipUpdate, targetActorID, projectID, &newRole, requestedBy)
}

// RemoveProjectMember removes targetActorID from projectID
func (s *Service) RemoveProjectMember(ctx context.Context, targetActorID, projectID int64, requestedBy int64) (result *ProjectRoleChange, err error) {
	defer func() { s.record("remove_project_member", err) }()

	return s.rewriteMembership(ctx, store.MembershipRemove, targetActorID, projectID, nil, requestedBy)
}

// rewriteMembership changes or removes an existing membership. newRole is nil
// for a removal.
func (s *Service) rewriteMembership(ctx context.Context, op store.MembershipOp, targetActorID, projectID int64, newRole *rbac.ProjectRole, requestedBy int64) (*ProjectRoleChange, error) {
	scope, err := s.resolveProject(ctx, projectID, requestedBy)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetProjectMember(ctx, projectID, targetActorID)
	if err != nil {
		return nil, err
	}

	if err := rbac.CheckSelfModification(requestedBy, targetActorID); err != nil {
		return nil, err
	}
	if err := rbac.CheckProjectTransition(scope.authority, &current.Role, newRole); err != nil {
		return nil, err
	}

	change := store.MembershipChange{
		Op:              op,
		ProjectID:       projectID,
		ActorID:         targetActorID,
		ExpectedVersion: scope.project.MemberVersion,
	}
	if newRole != nil {
		change.Role = *newRole
	}

	res, err := s.store.ApplyMembershipChange(ctx, change, func(persisted *store.ProjectMember, ownerCount int) error {
		if err := rbac.CheckProjectTransition(scope.authority, &persisted.Role, newRole); err != nil {
			return err
		}
		return rbac.CheckLastOwner(persisted.Role, newRole, ownerCount)
	})
	if err != nil {
		return nil, err
	}

	action, next, message := audit.ActionChange, "", "project role changed"
	if newRole != nil {
		next = string(*newRole)
	} else {
		action, message = audit.ActionRemove, "project member removed"
	}

	event := s.projectEvent(scope, action, targetActorID, string(res.Previous.Role), next)
	return s.finishProjectChange(ctx, res, event, message), nil
}

// CreateProject creates a project in organizationID and makes createdBy its
// first OWNER in the same transaction.
func (s *Service) CreateProject(ctx context.Context, organizationID int64, name, slug string, createdBy int64) (project *store.Project, owner *store.ProjectMember, err error) {
	defer func() { s.record("create_project", err) }()

	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" {
		return nil, nil, fmt.Errorf("%w: project name is required", rbac.ErrInvalidInput)
	}
	if err := store.ValidateSlug("project", slug); err != nil {
		return nil, nil, err
	}

	requester, err := s.requester(ctx, createdBy)
	if err != nil {
		return nil, nil, err
	}
	if requester.OrganizationID != organizationID {
		if requester.Role != rbac.OrgRoleSuperAdmin {
			return nil, nil, rbac.ErrTenantNotFound
		}
		// the creator becomes OWNER and memberships never cross organizations
		return nil, nil, fmt.Errorf("%w: project owner must belong to the organization", rbac.ErrInvalidTransition)
	}

	project = &store.Project{OrganizationID: organizationID, Name: name, Slug: slug}
	owner, err = s.store.CreateProject(ctx, project, createdBy)
	if err != nil {
		return nil, nil, err
	}

	scope := &projectScope{project: project, requester: requester}
	event := s.projectEvent(scope, audit.ActionAssign, createdBy, "", string(rbac.ProjectRoleOwner))
	s.finishProjectChange(ctx, &store.MembershipResult{Current: owner}, event, "project created")

	return project, owner, nil
}
