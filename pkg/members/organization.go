package members

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// ChangeOrganizationRole sets targetActorID's organization role to newRole.
//
// Preconditions, first failure wins: the target exists in organizationID; the
// requester is not the target; the requester exists, is active and belongs to
// the organization unless it is SUPER_ADMIN; the requester may assign both the
// target's current role and newRole.
func (s *Service) ChangeOrganizationRole(ctx context.Context, targetActorID int64, newRole rbac.OrgRole, requestedBy, organizationID int64) (result *OrgRoleChange, err error) {
	defer func() { s.record("change_org_role", err) }()

	target, err := s.store.GetActor(ctx, targetActorID)
	if err != nil {
		return nil, err
	}
	if target.OrganizationID != organizationID {
		return nil, rbac.ErrActorNotFound
	}

	if err := rbac.CheckSelfModification(requestedBy, targetActorID); err != nil {
		return nil, err
	}

	requester, err := s.requester(ctx, requestedBy)
	if err != nil {
		return nil, err
	}
	if requester.OrganizationID != organizationID && requester.Role != rbac.OrgRoleSuperAdmin {
		return nil, fmt.Errorf("requester: %w", rbac.ErrActorNotFound)
	}
	if err := rbac.CheckOrgTransition(requester.Role, target.Role, newRole); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateActorRole(ctx, target.ID, newRole, target.RoleVersion)
	if err != nil {
		return nil, err
	}

	event := &audit.RoleChangeEvent{
		Scope:          audit.ScopeOrganization,
		Action:         audit.ActionChange,
		OrganizationID: organizationID,
		TargetActorID:  target.ID,
		OldRole:        string(target.Role),
		NewRole:        string(updated.Role),
		PerformedBy:    requestedBy,
	}

	effects := s.after(ctx, event)
	effects.audit(event)
	effects.publish(updated)
	effects.invalidate(updated.ID)

	effects.logger.WithFields(map[string]interface{}{
		"old_role": event.OldRole,
		"new_role": event.NewRole,
	}).Info("organization role changed")

	return &OrgRoleChange{Actor: updated, Event: event, Warnings: effects.warnings}, nil
}

// Assignment is one item of a bulk request
type Assignment struct {
	ActorID int64        `json:"actor_id"`
	Role    rbac.OrgRole `json:"role"`
}

// BulkResult is the outcome of one Assignment. Exactly one of Change and Err
// is set.
type BulkResult struct {
	Assignment Assignment
	Change     *OrgRoleChange
	Err        error
}

// BulkAssignRoles applies each assignment as an independent
// ChangeOrganizationRole. Failures do not affect other items. Results are in
// input order. A later assignment for an actor already present in the batch
// fails with rbac.ErrInvalidInput.
func (s *Service) BulkAssignRoles(ctx context.Context, assignments []Assignment, organizationID, requestedBy int64) []BulkResult {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordBulkAssignment(time.Since(start))
		}
	}()

	results := make([]BulkResult, len(assignments))
	seen := make(map[int64]int, len(assignments))

	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)

	for i, a := range assignments {
		results[i].Assignment = a

		if first, dup := seen[a.ActorID]; dup {
			results[i].Err = fmt.Errorf("%w: actor %d already assigned at index %d", rbac.ErrInvalidInput, a.ActorID, first)
			continue
		}
		seen[a.ActorID] = i

		i, a := i, a
		g.Go(func() error {
			defer func() {
				if perr := observability.MustRecover(recover()); perr != nil {
					s.logger.WithError(perr).WithField("actor_id", a.ActorID).Error("bulk assignment panicked")
					results[i].Err = perr
				}
			}()

			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Change, results[i].Err = s.ChangeOrganizationRole(ctx, a.ActorID, a.Role, requestedBy, organizationID)
			return nil
		})
	}

	// items never return errors; failures live in results
	_ = g.Wait()
	return results
}
