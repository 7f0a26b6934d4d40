package rbac

import "fmt"

// CanAssign reports whether an actor holding actorRole may grant targetRole
// at organization scope. SUPER_ADMIN may grant anything, ORG_ADMIN may grant
// roles strictly below itself, and no other role may grant organization roles.
func CanAssign(actorRole, targetRole OrgRole) bool {
	switch actorRole {
	case OrgRoleSuperAdmin:
		return true
	case OrgRoleOrgAdmin:
		return targetRole.Rank() < OrgRoleOrgAdmin.Rank()
	default:
		return false
	}
}

// ProjectAuthority is what an actor brings to a project role change: its
// organization role and, if it has one, its own membership role in the project.
type ProjectAuthority struct {
	OrgRole        OrgRole
	ProjectRole    ProjectRole
	HasProjectRole bool
}

// CanAssignProjectRole reports whether authority may grant targetRole in a
// project. Organization ORG_ADMIN and SUPER_ADMIN supersede membership.
func CanAssignProjectRole(authority ProjectAuthority, targetRole ProjectRole) bool {
	if authority.OrgRole == OrgRoleSuperAdmin || authority.OrgRole == OrgRoleOrgAdmin {
		return true
	}
	if !authority.HasProjectRole {
		return false
	}
	switch authority.ProjectRole {
	case ProjectRoleOwner:
		return true
	case ProjectRoleAdmin:
		return targetRole == ProjectRoleMember || targetRole == ProjectRoleViewer
	default:
		return false
	}
}

// CheckOrgTransition validates an organization role change from currentRole
// to newRole requested by an actor holding actorRole. The actor must be able
// to grant both roles, so peers and superiors cannot be demoted.
func CheckOrgTransition(actorRole, currentRole, newRole OrgRole) error {
	if !newRole.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTransition, string(newRole))
	}
	if !CanAssign(actorRole, newRole) {
		return fmt.Errorf("%w: %s may not assign %s", ErrInvalidTransition, actorRole, newRole)
	}
	if currentRole != "" && !CanAssign(actorRole, currentRole) {
		return fmt.Errorf("%w: %s may not modify a %s", ErrInvalidTransition, actorRole, currentRole)
	}
	return nil
}

// CheckProjectTransition validates a project role change. currentRole is nil
// when the subject has no membership yet; newRole is nil for a removal.
func CheckProjectTransition(authority ProjectAuthority, currentRole, newRole *ProjectRole) error {
	if newRole != nil {
		if !newRole.Valid() {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidTransition, string(*newRole))
		}
		if !CanAssignProjectRole(authority, *newRole) {
			return fmt.Errorf("%w: requester may not assign %s", ErrInvalidTransition, *newRole)
		}
	}
	if currentRole != nil && !CanAssignProjectRole(authority, *currentRole) {
		return fmt.Errorf("%w: requester may not modify a %s", ErrInvalidTransition, *currentRole)
	}
	return nil
}

// CheckSelfModification rejects any role mutation an actor aims at itself
func CheckSelfModification(requestedBy, target int64) error {
	if requestedBy == target {
		return ErrSelfModification
	}
	return nil
}

// CheckLastOwner rejects a change or removal that would leave the project
// without an OWNER. ownerCount is the number of OWNER rows currently persisted.
func CheckLastOwner(currentRole ProjectRole, newRole *ProjectRole, ownerCount int) error {
	if currentRole != ProjectRoleOwner {
		return nil
	}
	if newRole != nil && *newRole == ProjectRoleOwner {
		return nil
	}
	if ownerCount <= 1 {
		return ErrLastOwner
	}
	return nil
}
