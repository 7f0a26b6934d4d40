package rolecache

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// StoreLoader builds snapshots from the store
func StoreLoader(st store.Store) Loader {
	return func(ctx context.Context, actorID int64) (*Snapshot, error) {
		actor, err := st.GetActor(ctx, actorID)
		if err != nil {
			return nil, err
		}

		memberships, err := st.ListActorMemberships(ctx, actorID)
		if err != nil {
			return nil, err
		}

		projects := make([]ProjectRoleEntry, 0, len(memberships))
		for _, m := range memberships {
			projects = append(projects, ProjectRoleEntry{ProjectID: m.ProjectID, Role: m.Role})
		}

		return &Snapshot{
			ActorID:        actor.ID,
			OrganizationID: actor.OrganizationID,
			Role:           actor.Role,
			Permissions:    rbac.OrgPermissions(actor.Role).Slice(),
			Projects:       projects,
			LoadedAt:       time.Now().UTC(),
		}, nil
	}
}
