package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
	"github.com/platinummonkey/tenantguard/pkg/store/storetest"
)

func TestSQLStore_Organizations(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()

	acme := storetest.Organization(t, s, "acme")
	assert.NotZero(t, acme.ID)

	got, err := s.GetOrganization(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)

	got, err = s.GetOrganizationBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, got.ID)

	_, err = s.GetOrganization(ctx, 999)
	assert.ErrorIs(t, err, rbac.ErrTenantNotFound)

	_, err = s.GetOrganizationBySlug(ctx, "globex")
	assert.ErrorIs(t, err, rbac.ErrTenantNotFound)

	err = s.CreateOrganization(ctx, &store.Organization{Name: "dup", Slug: "acme"})
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)
}

func TestSQLStore_Actors(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	acme := storetest.Organization(t, s, "acme")

	alice := storetest.Actor(t, s, acme.ID, "alice", rbac.OrgRoleOrgAdmin)
	assert.Equal(t, int64(1), alice.RoleVersion)

	t.Run("lookup", func(t *testing.T) {
		got, err := s.GetActor(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.OrgRoleOrgAdmin, got.Role)
		assert.True(t, got.IsActive)
		assert.Equal(t, acme.ID, got.OrganizationID)

		got, err = s.GetActorByExternalID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		_, err = s.GetActor(ctx, 12345)
		assert.ErrorIs(t, err, rbac.ErrActorNotFound)
		_, err = s.GetActorByExternalID(ctx, "nobody")
		assert.ErrorIs(t, err, rbac.ErrActorNotFound)
	})

	t.Run("organization role", func(t *testing.T) {
		m, err := s.OrganizationRole(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.OrgMembership{ActorID: alice.ID, OrganizationID: acme.ID, Role: rbac.OrgRoleOrgAdmin, Active: true}, m)

		_, err = s.OrganizationRole(ctx, 12345)
		assert.ErrorIs(t, err, rbac.ErrActorNotFound)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		err := s.CreateActor(ctx, &store.Actor{ExternalID: "x", OrganizationID: acme.ID, Role: "ROOT"})
		assert.ErrorIs(t, err, rbac.ErrInvalidInput)

		err = s.CreateActor(ctx, &store.Actor{ExternalID: "alice", OrganizationID: acme.ID, Role: rbac.OrgRoleUser})
		assert.ErrorIs(t, err, rbac.ErrInvalidInput)
	})

	t.Run("update role with version check", func(t *testing.T) {
		bob := storetest.Actor(t, s, acme.ID, "bob", rbac.OrgRoleUser)

		updated, err := s.UpdateActorRole(ctx, bob.ID, rbac.OrgRoleManager, bob.RoleVersion)
		require.NoError(t, err)
		assert.Equal(t, rbac.OrgRoleManager, updated.Role)
		assert.Equal(t, bob.RoleVersion+1, updated.RoleVersion)

		_, err = s.UpdateActorRole(ctx, bob.ID, rbac.OrgRoleViewer, bob.RoleVersion)
		assert.ErrorIs(t, err, rbac.ErrConflictingMutation)

		got, err := s.GetActor(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.OrgRoleManager, got.Role)

		_, err = s.UpdateActorRole(ctx, bob.ID, "ROOT", got.RoleVersion)
		assert.ErrorIs(t, err, rbac.ErrInvalidInput)
	})
}

func TestSQLStore_Projects(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	acme := storetest.Organization(t, s, "acme")
	globex := storetest.Organization(t, s, "globex")
	bob := storetest.Actor(t, s, acme.ID, "bob", rbac.OrgRoleManager)

	p := &store.Project{OrganizationID: acme.ID, Name: "Docs", Slug: "p1"}
	owner, err := s.CreateProject(ctx, p, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.ProjectRoleOwner, owner.Role)
	assert.Equal(t, store.ProjectStatusActive, p.Status)
	assert.Equal(t, int64(1), p.MemberVersion)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Docs", got.Name)

	got, err = s.GetProjectBySlug(ctx, acme.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.GetProjectBySlug(ctx, globex.ID, "p1")
	assert.ErrorIs(t, err, rbac.ErrProjectNotFound)

	_, err = s.GetProject(ctx, 999)
	assert.ErrorIs(t, err, rbac.ErrProjectNotFound)

	role, err := s.ProjectRole(ctx, p.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.ProjectRoleOwner, role)

	owners, err := s.CountProjectOwners(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, owners)

	_, err = s.CreateProject(ctx, &store.Project{OrganizationID: acme.ID, Name: "Again", Slug: "p1"}, bob.ID)
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)

	// the failed create must not leave a project behind
	_, err = s.GetProjectBySlug(ctx, acme.ID, "p1")
	require.NoError(t, err)
	memberships, err := s.ListActorMemberships(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, memberships, 1)
}

func TestSQLStore_ApplyMembershipChange(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	acme := storetest.Organization(t, s, "acme")
	bob := storetest.Actor(t, s, acme.ID, "bob", rbac.OrgRoleManager)
	carol := storetest.Actor(t, s, acme.ID, "carol", rbac.OrgRoleUser)
	p := storetest.Project(t, s, acme.ID, "p1", bob.ID)

	version := func() int64 {
		got, err := s.GetProject(ctx, p.ID)
		require.NoError(t, err)
		return got.MemberVersion
	}

	t.Run("add", func(t *testing.T) {
		res, err := s.ApplyMembershipChange(ctx, store.MembershipChange{
			Op: store.MembershipAdd, ProjectID: p.ID, ActorID: carol.ID, Role: rbac.ProjectRoleMember, ExpectedVersion: version(),
		}, nil)
		require.NoError(t, err)
		assert.Nil(t, res.Previous)
		require.NotNil(t, res.Current)
		assert.Equal(t, rbac.ProjectRoleMember, res.Current.Role)
		assert.Equal(t, version(), res.Version)
	})

	t.Run("duplicate add", func(t *testing.T) {
		_, err := s.ApplyMembershipChange(ctx, store.MembershipChange{
			Op: store.MembershipAdd, ProjectID: p.ID, ActorID: carol.ID, Role: rbac.ProjectRoleViewer, ExpectedVersion: version(),
		}, nil)
		assert.ErrorIs(t, err, rbac.ErrDuplicateMember)
	})

	t.Run("stale version", func(t *testing.T) {
		_, err := s.ApplyMembershipChange(ctx, store.MembershipChange{
			Op: store.MembershipUpdate, ProjectID: p.ID, ActorID: carol.ID, Role: rbac.ProjectRoleViewer, ExpectedVersion: version() - 1,
		}, nil)
		assert.ErrorIs(t, err, rbac.ErrConflictingMutation)
	})

	t.Run("verifier sees persisted state and can abort", func(t *testing.T) {
		var seenRole rbac.ProjectRole
		var seenOwners int
		before := version()
		_, err := s.ApplyMembershipChange(ctx, store.MembershipChange{
			Op: store.MembershipUpdate, ProjectID: p.ID, ActorID: bob.ID, Role: rbac.ProjectRoleViewer, ExpectedVersion: before,
		}, func(current *store.ProjectMember, owners int) error {
			seenRole = current.Role
			seenOwners = owners
			return rbac.CheckLastOwner(current.Role, &[]rbac.ProjectRole{rbac.ProjectRoleViewer}[0], owners)
		})
		assert.ErrorIs(t, err, rbac.ErrLastOwner)
		assert.Equal(t, rbac.ProjectRoleOwner, seenRole)
		assert.Equal(t, 1, seenOwners)

		// rollback keeps both the role and the version
		role, err := s.ProjectRole(ctx, p.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.ProjectRoleOwner, role)
		assert.Equal(t, before, version())
	})

	t.Run("concurrent writers with the same observed version", func(t *testing.T) {
		observed := version()
		change := store.MembershipChange{
			Op: store.MembershipUpdate, ProjectID: p.ID, ActorID: carol.ID, Role: rbac.ProjectRoleViewer, ExpectedVersion: observed,
		}
		_, err := s.ApplyMembershipChange(ctx, change, nil)
		require.NoError(t, err)

		change.Role = rbac.ProjectRoleAdmin
		_, err = s.ApplyMembershipChange(ctx, change, nil)
		assert.ErrorIs(t, err, rbac.ErrConflictingMutation)

		role, err := s.ProjectRole(ctx, p.ID, carol.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.ProjectRoleViewer, role)
	})

	t.Run("remove", func(t *testing.T) {
		res, err := s.ApplyMembershipChange(ctx, store.MembershipChange{
			Op: store.MembershipRemove, ProjectID: p.ID, ActorID: carol.ID, ExpectedVersion: version(),
		}, nil)
		require.NoError(t, err)
		assert.Nil(t, res.Current)
		assert.Equal(t, rbac.ProjectRoleViewer, res.Previous.Role)

		_, err = s.ProjectRole(ctx, p.ID, carol.ID)
		assert.ErrorIs(t, err, rbac.ErrMemberNotFound)

		_, err = s.ApplyMembershipChange(ctx, store.MembershipChange{
			Op: store.MembershipRemove, ProjectID: p.ID, ActorID: carol.ID, ExpectedVersion: version(),
		}, nil)
		assert.ErrorIs(t, err, rbac.ErrMemberNotFound)
	})

	t.Run("invalid operation", func(t *testing.T) {
		_, err := s.ApplyMembershipChange(ctx, store.MembershipChange{Op: "promote", ProjectID: p.ID}, nil)
		assert.ErrorIs(t, err, rbac.ErrInvalidInput)

		_, err = s.ApplyMembershipChange(ctx, store.MembershipChange{Op: store.MembershipAdd, ProjectID: p.ID, Role: "GUEST"}, nil)
		assert.ErrorIs(t, err, rbac.ErrInvalidInput)
	})

	t.Run("list", func(t *testing.T) {
		storetest.Member(t, s, p.ID, carol.ID, rbac.ProjectRoleAdmin)
		members, err := s.ListProjectMembers(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, bob.ID, members[0].ActorID)
		assert.Equal(t, carol.ID, members[1].ActorID)
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	s := storetest.NewSQLite(t)
	require.NoError(t, store.Migrate(context.Background(), s.DB(), store.DialectSQLite))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, len(store.GetMigrations()), n)
}

func TestParseDialect(t *testing.T) {
	d, err := store.ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, store.DialectPostgres, d)

	d, err = store.ParseDialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, store.DialectSQLite, d)

	_, err = store.ParseDialect("mysql")
	assert.Error(t, err)
}
