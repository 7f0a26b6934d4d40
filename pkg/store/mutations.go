package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// withTx runs fn inside a transaction, rolling back on any error
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err, nil))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err, nil))
	}
	return nil
}

// UpdateActorRole sets an actor's organization role if its RoleVersion still
// equals expectedVersion. A concurrent change yields rbac.ErrConflictingMutation.
func (s *SQLStore) UpdateActorRole(ctx context.Context, actorID int64, role rbac.OrgRole, expectedVersion int64) (*Actor, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown organization role %q", rbac.ErrInvalidInput, string(role))
	}

	var updated *Actor
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users
			SET role = $1, role_version = role_version + 1, updated_at = $2
			WHERE id = $3 AND role_version = $4
		`, string(role), s.now(), actorID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update actor role: %w", classify(err, nil))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return rbac.ErrConflictingMutation
		}

		updated, err = scanActor(tx.QueryRowContext(ctx,
			`SELECT `+actorColumns+` FROM users WHERE id = $1`, actorID))
		if err != nil {
			return fmt.Errorf("failed to reload actor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateProject inserts a project and its first OWNER in one transaction
func (s *SQLStore) CreateProject(ctx context.Context, project *Project, ownerID int64) (*ProjectMember, error) {
	if project.Name == "" || project.OrganizationID == 0 {
		return nil, fmt.Errorf("%w: project name and organization are required", rbac.ErrInvalidInput)
	}
	if err := ValidateSlug("project", project.Slug); err != nil {
		return nil, err
	}
	if project.Status == "" {
		project.Status = ProjectStatusActive
	}

	now := s.now()
	owner := &ProjectMember{ActorID: ownerID, Role: rbac.ProjectRoleOwner, JoinedAt: now}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO projects (organization_id, name, slug, status, member_version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $6)
			RETURNING id
		`, project.OrganizationID, project.Name, project.Slug, string(project.Status), now, now).Scan(&project.ID)
		if err != nil {
			return fmt.Errorf("failed to create project: %w", classify(err, rbac.ErrInvalidInput))
		}

		owner.ProjectID = project.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO project_members (project_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, project.ID, ownerID, string(rbac.ProjectRoleOwner), now).Scan(&owner.ID)
		if err != nil {
			return fmt.Errorf("failed to add project owner: %w", classify(err, rbac.ErrDuplicateMember))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	project.MemberVersion = 1
	project.CreatedAt = now
	project.UpdatedAt = now
	return owner, nil
}

// ApplyMembershipChange writes a project membership change. Inside one
// transaction it bumps the project's member version (compare-and-swap against
// change.ExpectedVersion), re-reads the persisted row and OWNER count, hands
// them to verify and then performs the write.
func (s *SQLStore) ApplyMembershipChange(ctx context.Context, change MembershipChange, verify MembershipVerifier) (*MembershipResult, error) {
	switch change.Op {
	case MembershipAdd, MembershipUpdate:
		if !change.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown project role %q", rbac.ErrInvalidInput, string(change.Role))
		}
	case MembershipRemove:
	default:
		return nil, fmt.Errorf("%w: unknown membership operation %q", rbac.ErrInvalidInput, string(change.Op))
	}

	result := &MembershipResult{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		res, err := tx.ExecContext(ctx, `
			UPDATE projects
			SET member_version = member_version + 1, updated_at = $1
			WHERE id = $2 AND member_version = $3
		`, now, change.ProjectID, change.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("failed to lock project roster: %w", classify(err, nil))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return rbac.ErrConflictingMutation
		}

		current, err := scanMember(tx.QueryRowContext(ctx,
			`SELECT `+memberColumns+` FROM project_members WHERE project_id = $1 AND user_id = $2`,
			change.ProjectID, change.ActorID))
		if errors.Is(err, sql.ErrNoRows) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("failed to read project member: %w", classify(err, nil))
		}

		switch {
		case change.Op == MembershipAdd && current != nil:
			return rbac.ErrDuplicateMember
		case change.Op != MembershipAdd && current == nil:
			return rbac.ErrMemberNotFound
		}

		owners, err := countOwners(ctx, tx, change.ProjectID)
		if err != nil {
			return err
		}
		if verify != nil {
			if err := verify(current, owners); err != nil {
				return err
			}
		}

		switch change.Op {
		case MembershipAdd:
			added := &ProjectMember{ProjectID: change.ProjectID, ActorID: change.ActorID, Role: change.Role, JoinedAt: now}
			err = tx.QueryRowContext(ctx, `
				INSERT INTO project_members (project_id, user_id, role, joined_at)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, change.ProjectID, change.ActorID, string(change.Role), now).Scan(&added.ID)
			if err != nil {
				return fmt.Errorf("failed to add project member: %w", classify(err, rbac.ErrDuplicateMember))
			}
			result.Current = added

		case MembershipUpdate:
			if _, err := tx.ExecContext(ctx,
				`UPDATE project_members SET role = $1 WHERE id = $2`, string(change.Role), current.ID,
			); err != nil {
				return fmt.Errorf("failed to change project role: %w", classify(err, nil))
			}
			changed := *current
			changed.Role = change.Role
			result.Current = &changed

		case MembershipRemove:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM project_members WHERE id = $1`, current.ID,
			); err != nil {
				return fmt.Errorf("failed to remove project member: %w", classify(err, nil))
			}
		}

		result.Previous = current
		result.Version = change.ExpectedVersion + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
