package members

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/identity"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
	"github.com/platinummonkey/tenantguard/pkg/store/storetest"
)

type published struct {
	externalID string
	claims     identity.RoleClaims
}

type fakeClaims struct {
	mu    sync.Mutex
	calls []published
	err   error
}

func (f *fakeClaims) PublishRoleClaims(_ context.Context, externalID string, claims identity.RoleClaims) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, published{externalID: externalID, claims: claims})
	return f.err
}

type fakeInvalidator struct {
	mu      sync.Mutex
	actors  []int64
	failErr error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, actorID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors = append(f.actors, actorID)
	return f.failErr
}

type fakeMetrics struct {
	mu          sync.Mutex
	mutations   map[string]int
	sideEffects map[string]int
	bulk        int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{mutations: map[string]int{}, sideEffects: map[string]int{}}
}

func (f *fakeMetrics) RecordMutation(operation, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations[operation+"/"+outcome]++
}

func (f *fakeMetrics) RecordSideEffectFailure(effect string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sideEffects[effect]++
}

func (f *fakeMetrics) RecordBulkAssignment(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk++
}

type failingSink struct{}

func (failingSink) Append(context.Context, *audit.RoleChangeEvent) error {
	return errors.New("audit store unavailable")
}

// hookStore runs a hook before delegating selected writes, simulating a
// concurrent writer that lands between the precondition reads and the write
type hookStore struct {
	store.Store
	beforeUpdateActorRole func(actorID int64)
	beforeApplyMembership func(change store.MembershipChange)
}

func (h *hookStore) UpdateActorRole(ctx context.Context, actorID int64, role rbac.OrgRole, expectedVersion int64) (*store.Actor, error) {
	if h.beforeUpdateActorRole != nil {
		h.beforeUpdateActorRole(actorID)
	}
	return h.Store.UpdateActorRole(ctx, actorID, role, expectedVersion)
}

func (h *hookStore) ApplyMembershipChange(ctx context.Context, change store.MembershipChange, verify store.MembershipVerifier) (*store.MembershipResult, error) {
	if h.beforeApplyMembership != nil {
		h.beforeApplyMembership(change)
	}
	return h.Store.ApplyMembershipChange(ctx, change, verify)
}

// acme is the shared fixture: alice ORG_ADMIN, bob MANAGER, carol USER,
// dave USER, vera VIEWER in acme; root SUPER_ADMIN and eve USER in globex
type acme struct {
	store  *store.SQLStore
	org    *store.Organization
	other  *store.Organization
	alice  *store.Actor
	bob    *store.Actor
	carol  *store.Actor
	dave   *store.Actor
	vera   *store.Actor
	root   *store.Actor
	eve    *store.Actor
	sink   *audit.MemorySink
	claims *fakeClaims
	cache  *fakeInvalidator
	stats  *fakeMetrics
}

func newAcme(t *testing.T) *acme {
	t.Helper()
	s := storetest.NewSQLite(t)
	a := &acme{
		store:  s,
		org:    storetest.Organization(t, s, "acme"),
		other:  storetest.Organization(t, s, "globex"),
		sink:   audit.NewMemorySink(),
		claims: &fakeClaims{},
		cache:  &fakeInvalidator{},
		stats:  newFakeMetrics(),
	}
	a.alice = storetest.Actor(t, s, a.org.ID, "alice", rbac.OrgRoleOrgAdmin)
	a.bob = storetest.Actor(t, s, a.org.ID, "bob", rbac.OrgRoleManager)
	a.carol = storetest.Actor(t, s, a.org.ID, "carol", rbac.OrgRoleUser)
	a.dave = storetest.Actor(t, s, a.org.ID, "dave", rbac.OrgRoleUser)
	a.vera = storetest.Actor(t, s, a.org.ID, "vera", rbac.OrgRoleViewer)
	a.root = storetest.Actor(t, s, a.other.ID, "root", rbac.OrgRoleSuperAdmin)
	a.eve = storetest.Actor(t, s, a.other.ID, "eve", rbac.OrgRoleUser)
	return a
}

func (a *acme) service(st store.Store, opts ...Option) *Service {
	base := []Option{
		WithAuditSink(a.sink),
		WithClaimsPublisher(a.claims),
		WithCacheInvalidator(a.cache),
		WithMetrics(a.stats),
	}
	return NewService(st, append(base, opts...)...)
}

func (a *acme) reloadRole(t *testing.T, actorID int64) rbac.OrgRole {
	t.Helper()
	actor, err := a.store.GetActor(context.Background(), actorID)
	require.NoError(t, err)
	return actor.Role
}
