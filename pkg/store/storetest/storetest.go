// Package storetest provides SQLite-backed stores and fixtures for tests in
// other packages.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// NewSQLite returns a migrated in-memory SQLite store closed at test cleanup
func NewSQLite(t testing.TB) *store.SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err, "failed to open test database")
	// a second connection would see a different in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, store.Migrate(context.Background(), db, store.DialectSQLite))
	return store.NewSQLStore(db, store.DialectSQLite)
}

// Organization creates an organization named after its slug
func Organization(t testing.TB, s store.Store, slug string) *store.Organization {
	t.Helper()

	org := &store.Organization{Name: slug, Slug: slug}
	require.NoError(t, s.CreateOrganization(context.Background(), org))
	return org
}

// Actor creates an active actor whose external ID is name
func Actor(t testing.TB, s store.Store, orgID int64, name string, role rbac.OrgRole) *store.Actor {
	t.Helper()

	actor := &store.Actor{
		ExternalID:     name,
		Email:          name + "@example.com",
		DisplayName:    name,
		OrganizationID: orgID,
		Role:           role,
		IsActive:       true,
	}
	require.NoError(t, s.CreateActor(context.Background(), actor))
	return actor
}

// Project creates a project owned by ownerID
func Project(t testing.TB, s store.Store, orgID int64, slug string, ownerID int64) *store.Project {
	t.Helper()

	p := &store.Project{OrganizationID: orgID, Name: slug, Slug: slug}
	_, err := s.CreateProject(context.Background(), p, ownerID)
	require.NoError(t, err)
	return p
}

// Member adds actorID to a project with role, bypassing authorization
func Member(t testing.TB, s store.Store, projectID, actorID int64, role rbac.ProjectRole) *store.ProjectMember {
	t.Helper()

	ctx := context.Background()
	p, err := s.GetProject(ctx, projectID)
	require.NoError(t, err)

	res, err := s.ApplyMembershipChange(ctx, store.MembershipChange{
		Op:              store.MembershipAdd,
		ProjectID:       projectID,
		ActorID:         actorID,
		Role:            role,
		ExpectedVersion: p.MemberVersion,
	}, nil)
	require.NoError(t, err)
	return res.Current
}
