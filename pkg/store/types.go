package store

import (
	"time"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// Actor is an externally authenticated user. Every actor belongs to exactly
// one organization.
type Actor struct {
	ID             int64        `json:"id"`
	ExternalID     string       `json:"external_id"`
	Email          string       `json:"email"`
	DisplayName    string       `json:"display_name,omitempty"`
	OrganizationID int64        `json:"organization_id"`
	Role           rbac.OrgRole `json:"role"`
	RoleVersion    int64        `json:"role_version"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Organization is the top-level tenant boundary
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
)

// Project is a unit of work inside an organization with its own roster
type Project struct {
	ID             int64         `json:"id"`
	OrganizationID int64         `json:"organization_id"`
	Name           string        `json:"name"`
	Slug           string        `json:"slug"`
	Status         ProjectStatus `json:"status"`
	MemberVersion  int64         `json:"member_version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ProjectMember assigns a project role to an actor
type ProjectMember struct {
	ID        int64            `json:"id"`
	ProjectID int64            `json:"project_id"`
	ActorID   int64            `json:"actor_id"`
	Role      rbac.ProjectRole `json:"role"`
	JoinedAt  time.Time        `json:"joined_at"`
}

// MembershipOp is the kind of project membership write
type MembershipOp string

const (
	MembershipAdd    MembershipOp = "add"
	MembershipUpdate MembershipOp = "change"
	MembershipRemove MembershipOp = "remove"
)

// MembershipChange describes one project membership write. ExpectedVersion is
// the project's MemberVersion observed when the caller checked its
// preconditions; the write fails with rbac.ErrConflictingMutation if the
// roster changed since.
type MembershipChange struct {
	Op              MembershipOp
	ProjectID       int64
	ActorID         int64
	Role            rbac.ProjectRole // ignored for MembershipRemove
	ExpectedVersion int64
}

// MembershipVerifier runs inside the write transaction with the persisted
// membership row (nil on add) and the persisted OWNER count. Returning an
// error aborts the write.
type MembershipVerifier func(current *ProjectMember, ownerCount int) error

// MembershipResult is the outcome of an applied MembershipChange
type MembershipResult struct {
	Previous *ProjectMember
	Current  *ProjectMember // nil after a removal
	Version  int64
}
