//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
	"github.com/platinummonkey/tenantguard/pkg/store/storetest"
)

// setupPostgresStore starts a PostgreSQL container and returns a migrated store
func setupPostgresStore(t *testing.T) *store.SQLStore {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("tenantguard_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := store.Open(store.ConnectionConfig{
		Dialect:  store.DialectPostgres,
		URL:      connStr,
		MaxConns: 10,
		MinConns: 2,
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, store.Migrate(ctx, db, store.DialectPostgres))
	return store.NewSQLStore(db, store.DialectPostgres)
}

func TestPostgres_ConcurrentDemotionOfLastOwners(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	acme := storetest.Organization(t, s, "acme")
	bob := storetest.Actor(t, s, acme.ID, "bob", rbac.OrgRoleManager)
	dave := storetest.Actor(t, s, acme.ID, "dave", rbac.OrgRoleManager)
	p := storetest.Project(t, s, acme.ID, "p1", bob.ID)
	storetest.Member(t, s, p.ID, dave.ID, rbac.ProjectRoleOwner)

	current, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)

	viewer := rbac.ProjectRoleViewer
	verify := func(m *store.ProjectMember, owners int) error {
		return rbac.CheckLastOwner(m.Role, &viewer, owners)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actorID := range []int64{bob.ID, dave.ID} {
		wg.Add(1)
		go func(i int, actorID int64) {
			defer wg.Done()
			_, errs[i] = s.ApplyMembershipChange(ctx, store.MembershipChange{
				Op:              store.MembershipUpdate,
				ProjectID:       p.ID,
				ActorID:         actorID,
				Role:            rbac.ProjectRoleViewer,
				ExpectedVersion: current.MemberVersion,
			}, verify)
		}(i, actorID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, rbac.ErrConflictingMutation)
	}
	assert.Equal(t, 1, succeeded)

	owners, err := s.CountProjectOwners(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, owners)
}

func TestPostgres_DuplicateMemberMapsToSentinel(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	acme := storetest.Organization(t, s, "acme")
	bob := storetest.Actor(t, s, acme.ID, "bob", rbac.OrgRoleManager)
	p := storetest.Project(t, s, acme.ID, "p1", bob.ID)

	err := s.CreateOrganization(ctx, &store.Organization{Name: "again", Slug: "acme"})
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)

	current, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	_, err = s.ApplyMembershipChange(ctx, store.MembershipChange{
		Op: store.MembershipAdd, ProjectID: p.ID, ActorID: bob.ID, Role: rbac.ProjectRoleViewer, ExpectedVersion: current.MemberVersion,
	}, nil)
	assert.ErrorIs(t, err, rbac.ErrDuplicateMember)
}
