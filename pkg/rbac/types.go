package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Permission is a named capability drawn from a closed catalog
type Permission string

const (
	// Organization-scope permissions
	PermManageOrganization Permission = "manage-organization"
	PermManageUsers        Permission = "manage-users"
	PermCreateProject      Permission = "create-project"
	PermViewAnalytics      Permission = "view-analytics"
	PermExportData         Permission = "export-data"
	PermManageSystem       Permission = "manage-system"

	// Project-scope permissions
	PermManageProject        Permission = "manage-project"
	PermDeleteProject        Permission = "delete-project"
	PermManageProjectMembers Permission = "manage-project-members"

	// Content permissions
	PermCreateContent  Permission = "create-content"
	PermEditContent    Permission = "edit-content"
	PermDeleteContent  Permission = "delete-content"
	PermViewContent    Permission = "view-content"
	PermPublishContent Permission = "publish-content"
)

// catalog lists every defined permission in declaration order.
var catalog = []Permission{
	PermManageOrganization,
	PermManageUsers,
	PermCreateProject,
	PermManageProject,
	PermDeleteProject,
	PermCreateContent,
	PermEditContent,
	PermDeleteContent,
	PermViewContent,
	PermPublishContent,
	PermManageProjectMembers,
	PermViewAnalytics,
	PermExportData,
	PermManageSystem,
}

// AllPermissions returns a copy of the full permission catalog
func AllPermissions() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// Valid reports whether p is part of the catalog
func (p Permission) Valid() bool {
	for _, c := range catalog {
		if c == p {
			return true
		}
	}
	return false
}

// String returns the permission name
func (p Permission) String() string {
	return string(p)
}

// ParsePermission validates an untrusted permission name
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(strings.ToLower(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
	}
	return p, nil
}

// PermissionSet is an immutable set of permissions. The zero value is empty.
// A set built with AllPermissionSet contains every permission, including
// permissions added to the catalog later.
type PermissionSet struct {
	all   bool
	perms map[Permission]struct{}
}

// NewPermissionSet builds a set from the given permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	m := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		m[p] = struct{}{}
	}
	return PermissionSet{perms: m}
}

// AllPermissionSet returns the sentinel set that satisfies every check
func AllPermissionSet() PermissionSet {
	return PermissionSet{all: true}
}

// IsAll reports whether s is the all-permissions sentinel
func (s PermissionSet) IsAll() bool {
	return s.all
}

// Contains reports whether p is in the set
func (s PermissionSet) Contains(p Permission) bool {
	if s.all {
		return true
	}
	_, ok := s.perms[p]
	return ok
}

// ContainsAll reports whether every permission of other is in s
func (s PermissionSet) ContainsAll(other PermissionSet) bool {
	if s.all {
		return true
	}
	if other.all {
		return false
	}
	for p := range other.perms {
		if _, ok := s.perms[p]; !ok {
			return false
		}
	}
	return true
}

// Len returns the number of permissions in the set
func (s PermissionSet) Len() int {
	if s.all {
		return len(catalog)
	}
	return len(s.perms)
}

// Slice returns the permissions sorted by name
func (s PermissionSet) Slice() []Permission {
	if s.all {
		out := AllPermissions()
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
	out := make([]Permission, 0, len(s.perms))
	for p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders the set as a comma separated list
func (s PermissionSet) String() string {
	if s.all {
		return "*"
	}
	names := make([]string, 0, len(s.perms))
	for _, p := range s.Slice() {
		names = append(names, string(p))
	}
	return strings.Join(names, ",")
}

// MarshalJSON encodes the set as a sorted array of names
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// OrgRole is an organization-scoped role, ordered by privilege
type OrgRole string

const (
	OrgRoleSuperAdmin OrgRole = "SUPER_ADMIN"
	OrgRoleOrgAdmin   OrgRole = "ORG_ADMIN"
	OrgRoleManager    OrgRole = "MANAGER"
	OrgRoleUser       OrgRole = "USER"
	OrgRoleViewer     OrgRole = "VIEWER"
)

// OrgRoles lists organization roles from highest to lowest privilege
func OrgRoles() []OrgRole {
	return []OrgRole{OrgRoleSuperAdmin, OrgRoleOrgAdmin, OrgRoleManager, OrgRoleUser, OrgRoleViewer}
}

// Valid reports whether r is a defined organization role
func (r OrgRole) Valid() bool {
	switch r {
	case OrgRoleSuperAdmin, OrgRoleOrgAdmin, OrgRoleManager, OrgRoleUser, OrgRoleViewer:
		return true
	}
	return false
}

// Rank returns the privilege rank of r; higher is more privileged.
// It panics on an undefined role.
func (r OrgRole) Rank() int {
	switch r {
	case OrgRoleSuperAdmin:
		return 5
	case OrgRoleOrgAdmin:
		return 4
	case OrgRoleManager:
		return 3
	case OrgRoleUser:
		return 2
	case OrgRoleViewer:
		return 1
	}
	panic(fmt.Sprintf("rbac: undefined organization role %q", string(r)))
}

// AtLeast reports whether r is at least as privileged as other
func (r OrgRole) AtLeast(other OrgRole) bool {
	return r.Rank() >= other.Rank()
}

// ParseOrgRole validates an untrusted organization role name
func ParseOrgRole(s string) (OrgRole, error) {
	r := OrgRole(strings.TrimSpace(strings.ToUpper(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown organization role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// ProjectRole is a project membership role, ordered by privilege
type ProjectRole string

const (
	ProjectRoleOwner  ProjectRole = "OWNER"
	ProjectRoleAdmin  ProjectRole = "ADMIN"
	ProjectRoleMember ProjectRole = "MEMBER"
	ProjectRoleViewer ProjectRole = "VIEWER"
)

// ProjectRoles lists project roles from highest to lowest privilege
func ProjectRoles() []ProjectRole {
	return []ProjectRole{ProjectRoleOwner, ProjectRoleAdmin, ProjectRoleMember, ProjectRoleViewer}
}

// Valid reports whether r is a defined project role
func (r ProjectRole) Valid() bool {
	switch r {
	case ProjectRoleOwner, ProjectRoleAdmin, ProjectRoleMember, ProjectRoleViewer:
		return true
	}
	return false
}

// Rank returns the privilege rank of r; higher is more privileged.
// It panics on an undefined role.
func (r ProjectRole) Rank() int {
	switch r {
	case ProjectRoleOwner:
		return 4
	case ProjectRoleAdmin:
		return 3
	case ProjectRoleMember:
		return 2
	case ProjectRoleViewer:
		return 1
	}
	panic(fmt.Sprintf("rbac: undefined project role %q", string(r)))
}

// AtLeast reports whether r is at least as privileged as other
func (r ProjectRole) AtLeast(other ProjectRole) bool {
	return r.Rank() >= other.Rank()
}

// ParseProjectRole validates an untrusted project role name
func ParseProjectRole(s string) (ProjectRole, error) {
	r := ProjectRole(strings.TrimSpace(strings.ToUpper(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown project role %q", ErrInvalidInput, s)
	}
	return r, nil
}
