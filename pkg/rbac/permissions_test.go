package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrgPermissions_Deterministic(t *testing.T) {
	for _, role := range OrgRoles() {
		first := OrgPermissions(role)
		for i := 0; i < 10; i++ {
			again := OrgPermissions(role)
			for _, p := range AllPermissions() {
				assert.Equal(t, first.Contains(p), again.Contains(p), "role %s permission %s", role, p)
			}
		}
	}
}

func TestProjectPermissions_Deterministic(t *testing.T) {
	for _, role := range ProjectRoles() {
		first := ProjectPermissions(role)
		again := ProjectPermissions(role)
		assert.Equal(t, first.Slice(), again.Slice())
	}
}

func TestOrgPermissions_SuperAdminIsSentinel(t *testing.T) {
	set := OrgPermissions(OrgRoleSuperAdmin)
	assert.True(t, set.IsAll())
	for _, p := range AllPermissions() {
		assert.True(t, set.Contains(p))
	}
	// permissions outside today's catalog are covered as well
	assert.True(t, set.Contains(Permission("some-future-permission")))
}

func TestOrgPermissions_Tables(t *testing.T) {
	t.Run("org admin has everything but manage-system", func(t *testing.T) {
		set := OrgPermissions(OrgRoleOrgAdmin)
		assert.False(t, set.Contains(PermManageSystem))
		assert.Equal(t, len(AllPermissions())-1, set.Len())
	})

	t.Run("roles are nested by rank", func(t *testing.T) {
		roles := OrgRoles()
		for i := 0; i < len(roles)-1; i++ {
			higher := OrgPermissions(roles[i])
			lower := OrgPermissions(roles[i+1])
			assert.True(t, higher.ContainsAll(lower), "%s should cover %s", roles[i], roles[i+1])
		}
	})

	t.Run("project roles are nested by rank", func(t *testing.T) {
		roles := ProjectRoles()
		for i := 0; i < len(roles)-1; i++ {
			assert.True(t, ProjectPermissions(roles[i]).ContainsAll(ProjectPermissions(roles[i+1])))
		}
	})

	t.Run("member cannot manage project", func(t *testing.T) {
		assert.False(t, ProjectPermissions(ProjectRoleMember).Contains(PermManageProject))
		assert.True(t, ProjectPermissions(ProjectRoleOwner).Contains(PermManageProject))
	})
}

func TestPermissions_PanicOnUndefinedRole(t *testing.T) {
	assert.Panics(t, func() { OrgPermissions(OrgRole("ROOT")) })
	assert.Panics(t, func() { ProjectPermissions(ProjectRole("GUEST")) })
	assert.Panics(t, func() { OrgRole("ROOT").Rank() })
}

func TestPermissionSet(t *testing.T) {
	set := NewPermissionSet(PermEditContent, PermViewContent)

	assert.True(t, set.Contains(PermViewContent))
	assert.False(t, set.Contains(PermDeleteContent))
	assert.True(t, set.ContainsAll(NewPermissionSet(PermViewContent)))
	assert.True(t, set.ContainsAll(NewPermissionSet()))
	assert.False(t, set.ContainsAll(NewPermissionSet(PermViewContent, PermDeleteContent)))
	assert.False(t, set.ContainsAll(AllPermissionSet()))
	assert.Equal(t, "edit-content,view-content", set.String())

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["edit-content","view-content"]`, string(data))

	var zero PermissionSet
	assert.Equal(t, 0, zero.Len())
	assert.False(t, zero.Contains(PermViewContent))
}

func TestParse(t *testing.T) {
	role, err := ParseOrgRole(" org_admin ")
	require.NoError(t, err)
	assert.Equal(t, OrgRoleOrgAdmin, role)

	_, err = ParseOrgRole("owner")
	assert.ErrorIs(t, err, ErrInvalidInput)

	projectRole, err := ParseProjectRole("owner")
	require.NoError(t, err)
	assert.Equal(t, ProjectRoleOwner, projectRole)

	perm, err := ParsePermission("Manage-Project")
	require.NoError(t, err)
	assert.Equal(t, PermManageProject, perm)

	_, err = ParsePermission("fly")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
