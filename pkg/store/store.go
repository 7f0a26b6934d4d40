package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// Store is the persistence boundary for tenants, actors and role assignments.
// It satisfies rbac.Assignments so the decision engine reads through it.
type Store interface {
	rbac.Assignments

	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)

	CreateActor(ctx context.Context, actor *Actor) error
	GetActor(ctx context.Context, id int64) (*Actor, error)
	GetActorByExternalID(ctx context.Context, externalID string) (*Actor, error)
	UpdateActorRole(ctx context.Context, actorID int64, role rbac.OrgRole, expectedVersion int64) (*Actor, error)

	CreateProject(ctx context.Context, project *Project, ownerID int64) (*ProjectMember, error)
	GetProject(ctx context.Context, id int64) (*Project, error)
	GetProjectBySlug(ctx context.Context, organizationID int64, slug string) (*Project, error)

	GetProjectMember(ctx context.Context, projectID, actorID int64) (*ProjectMember, error)
	ListProjectMembers(ctx context.Context, projectID int64) ([]*ProjectMember, error)
	ListActorMemberships(ctx context.Context, actorID int64) ([]*ProjectMember, error)
	CountProjectOwners(ctx context.Context, projectID int64) (int, error)
	ApplyMembershipChange(ctx context.Context, change MembershipChange, verify MembershipVerifier) (*MembershipResult, error)

	Ping(ctx context.Context) error
}

// SQLStore implements Store over database/sql for PostgreSQL and SQLite
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// OrganizationRole implements rbac.Assignments
func (s *SQLStore) OrganizationRole(ctx context.Context, actorID int64) (rbac.OrgMembership, error) {
	var (
		orgID  int64
		role   string
		active bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT organization_id, role, is_active FROM users WHERE id = $1`, actorID,
	).Scan(&orgID, &role, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.OrgMembership{}, rbac.ErrActorNotFound
	}
	if err != nil {
		return rbac.OrgMembership{}, fmt.Errorf("failed to get organization role: %w", err)
	}

	parsed, err := rbac.ParseOrgRole(role)
	if err != nil {
		return rbac.OrgMembership{}, fmt.Errorf("stored role for actor %d: %v", actorID, err)
	}

	return rbac.OrgMembership{
		ActorID:        actorID,
		OrganizationID: orgID,
		Role:           parsed,
		Active:         active,
	}, nil
}

// ProjectRole implements rbac.Assignments
func (s *SQLStore) ProjectRole(ctx context.Context, projectID, actorID int64) (rbac.ProjectRole, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, actorID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", rbac.ErrMemberNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get project role: %w", err)
	}

	parsed, err := rbac.ParseProjectRole(role)
	if err != nil {
		return "", fmt.Errorf("stored role for actor %d in project %d: %v", actorID, projectID, err)
	}
	return parsed, nil
}

// CreateOrganization inserts a new organization
func (s *SQLStore) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.Name == "" {
		return fmt.Errorf("%w: organization name is required", rbac.ErrInvalidInput)
	}
	if err := ValidateSlug("organization", org.Slug); err != nil {
		return err
	}

	now := s.now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, org.Name, org.Slug, now, now).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", classify(err, rbac.ErrInvalidInput))
	}

	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

const organizationColumns = `id, name, slug, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (*Organization, error) {
	var org Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	return &org, nil
}

// GetOrganization retrieves an organization by ID
func (s *SQLStore) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	org, err := scanOrganization(s.db.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *SQLStore) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	org, err := scanOrganization(s.db.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by slug: %w", err)
	}
	return org, nil
}

// CreateActor provisions an actor in an organization
func (s *SQLStore) CreateActor(ctx context.Context, actor *Actor) error {
	if actor.ExternalID == "" || actor.OrganizationID == 0 {
		return fmt.Errorf("%w: external id and organization are required", rbac.ErrInvalidInput)
	}
	if !actor.Role.Valid() {
		return fmt.Errorf("%w: unknown organization role %q", rbac.ErrInvalidInput, string(actor.Role))
	}

	now := s.now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (external_id, email, display_name, organization_id, role, role_version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8)
		RETURNING id
	`, actor.ExternalID, actor.Email, actor.DisplayName, actor.OrganizationID,
		string(actor.Role), actor.IsActive, now, now,
	).Scan(&actor.ID)
	if err != nil {
		return fmt.Errorf("failed to create actor: %w", classify(err, rbac.ErrInvalidInput))
	}

	actor.RoleVersion = 1
	actor.CreatedAt = now
	actor.UpdatedAt = now
	return nil
}

const actorColumns = `id, external_id, email, display_name, organization_id, role, role_version, is_active, created_at, updated_at`

func scanActor(row interface{ Scan(...any) error }) (*Actor, error) {
	var (
		actor Actor
		role  string
	)
	err := row.Scan(
		&actor.ID,
		&actor.ExternalID,
		&actor.Email,
		&actor.DisplayName,
		&actor.OrganizationID,
		&role,
		&actor.RoleVersion,
		&actor.IsActive,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := rbac.ParseOrgRole(role)
	if err != nil {
		return nil, fmt.Errorf("stored role for actor %d: %v", actor.ID, err)
	}
	actor.Role = parsed
	return &actor, nil
}

// GetActor retrieves an actor by ID
func (s *SQLStore) GetActor(ctx context.Context, id int64) (*Actor, error) {
	actor, err := scanActor(s.db.QueryRowContext(ctx,
		`SELECT `+actorColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrActorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	return actor, nil
}

// GetActorByExternalID retrieves an actor by identity-provider subject
func (s *SQLStore) GetActorByExternalID(ctx context.Context, externalID string) (*Actor, error) {
	actor, err := scanActor(s.db.QueryRowContext(ctx,
		`SELECT `+actorColumns+` FROM users WHERE external_id = $1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrActorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor by external id: %w", err)
	}
	return actor, nil
}

const projectColumns = `id, organization_id, name, slug, status, member_version, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var (
		p      Project
		status string
	)
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Slug, &status, &p.MemberVersion, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = ProjectStatus(status)
	return &p, nil
}

// GetProject retrieves a project by ID regardless of organization. Callers
// resolving untrusted input must compare OrganizationID themselves.
func (s *SQLStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetProjectBySlug retrieves a project by slug within an organization
func (s *SQLStore) GetProjectBySlug(ctx context.Context, organizationID int64, slug string) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE organization_id = $1 AND slug = $2`, organizationID, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project by slug: %w", err)
	}
	return p, nil
}

const memberColumns = `id, project_id, user_id, role, joined_at`

func scanMember(row interface{ Scan(...any) error }) (*ProjectMember, error) {
	var (
		m    ProjectMember
		role string
	)
	if err := row.Scan(&m.ID, &m.ProjectID, &m.ActorID, &role, &m.JoinedAt); err != nil {
		return nil, err
	}
	parsed, err := rbac.ParseProjectRole(role)
	if err != nil {
		return nil, fmt.Errorf("stored role for member %d: %v", m.ID, err)
	}
	m.Role = parsed
	return &m, nil
}

// GetProjectMember retrieves a single membership row
func (s *SQLStore) GetProjectMember(ctx context.Context, projectID, actorID int64) (*ProjectMember, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, actorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project member: %w", err)
	}
	return m, nil
}

// ListProjectMembers returns the roster of a project in join order
func (s *SQLStore) ListProjectMembers(ctx context.Context, projectID int64) ([]*ProjectMember, error) {
	return s.listMembers(ctx,
		`SELECT `+memberColumns+` FROM project_members WHERE project_id = $1 ORDER BY id`, projectID)
}

// ListActorMemberships returns every project membership of an actor
func (s *SQLStore) ListActorMemberships(ctx context.Context, actorID int64) ([]*ProjectMember, error) {
	return s.listMembers(ctx,
		`SELECT `+memberColumns+` FROM project_members WHERE user_id = $1 ORDER BY project_id`, actorID)
}

func (s *SQLStore) listMembers(ctx context.Context, query string, arg int64) ([]*ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	defer rows.Close()

	var members []*ProjectMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate project members: %w", err)
	}
	return members, nil
}

// CountProjectOwners returns the number of OWNER rows for a project
func (s *SQLStore) CountProjectOwners(ctx context.Context, projectID int64) (int, error) {
	return countOwners(ctx, s.db, projectID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countOwners(ctx context.Context, q queryRower, projectID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_members WHERE project_id = $1 AND role = $2`,
		projectID, string(rbac.ProjectRoleOwner),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count project owners: %w", err)
	}
	return n, nil
}
