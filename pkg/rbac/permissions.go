package rbac

import "fmt"

// Role permission tables. These are the only place a role is mapped to what
// it may do; nothing else in the module hard-codes a permission decision.
var (
	orgAdminPermissions = func() PermissionSet {
		perms := make([]Permission, 0, len(catalog))
		for _, p := range catalog {
			if p != PermManageSystem {
				perms = append(perms, p)
			}
		}
		return NewPermissionSet(perms...)
	}()

	managerPermissions = NewPermissionSet(
		PermCreateProject,
		PermViewContent,
		PermViewAnalytics,
		PermExportData,
	)

	userPermissions = NewPermissionSet(
		PermViewContent,
	)

	orgViewerPermissions = NewPermissionSet(
		PermViewContent,
	)

	ownerPermissions = NewPermissionSet(
		PermManageProject,
		PermDeleteProject,
		PermManageProjectMembers,
		PermCreateContent,
		PermEditContent,
		PermDeleteContent,
		PermPublishContent,
		PermViewContent,
		PermViewAnalytics,
		PermExportData,
	)

	projectAdminPermissions = NewPermissionSet(
		PermManageProject,
		PermManageProjectMembers,
		PermCreateContent,
		PermEditContent,
		PermDeleteContent,
		PermPublishContent,
		PermViewContent,
		PermViewAnalytics,
	)

	memberPermissions = NewPermissionSet(
		PermCreateContent,
		PermEditContent,
		PermViewContent,
	)

	projectViewerPermissions = NewPermissionSet(
		PermViewContent,
	)
)

// OrgPermissions returns the permissions granted by an organization role.
// SUPER_ADMIN yields the all-permissions sentinel. It panics on an undefined
// role; untrusted input must go through ParseOrgRole first.
func OrgPermissions(role OrgRole) PermissionSet {
	switch role {
	case OrgRoleSuperAdmin:
		return AllPermissionSet()
	case OrgRoleOrgAdmin:
		return orgAdminPermissions
	case OrgRoleManager:
		return managerPermissions
	case OrgRoleUser:
		return userPermissions
	case OrgRoleViewer:
		return orgViewerPermissions
	}
	panic(fmt.Sprintf("rbac: undefined organization role %q", string(role)))
}

// ProjectPermissions returns the permissions granted by a project role.
// It panics on an undefined role.
func ProjectPermissions(role ProjectRole) PermissionSet {
	switch role {
	case ProjectRoleOwner:
		return ownerPermissions
	case ProjectRoleAdmin:
		return projectAdminPermissions
	case ProjectRoleMember:
		return memberPermissions
	case ProjectRoleViewer:
		return projectViewerPermissions
	}
	panic(fmt.Sprintf("rbac: undefined project role %q", string(role)))
}
