package api

import (
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/members"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// MaxBulkAssignments caps one bulk request
const MaxBulkAssignments = 100

// CheckRequest asks whether the caller holds permissions
type CheckRequest struct {
	Permissions []string `json:"permissions"`
}

// CheckResponse is the decision plus what the caller holds in scope
type CheckResponse struct {
	Decision             rbac.Decision      `json:"decision"`
	EffectivePermissions rbac.PermissionSet `json:"effective_permissions"`
}

// RoleRequest carries a role name for assignment endpoints
type RoleRequest struct {
	Role string `json:"role"`
}

// BulkAssignment is one item of BulkRequest
type BulkAssignment struct {
	ActorID int64  `json:"actor_id"`
	Role    string `json:"role"`
}

// BulkRequest assigns organization roles to several actors
type BulkRequest struct {
	Assignments []BulkAssignment `json:"assignments"`
}

// BulkItemResult reports one assignment. Status is the HTTP status the item
// would have had as a single request.
type BulkItemResult struct {
	ActorID int64                  `json:"actor_id"`
	Role    string                 `json:"role"`
	Status  int                    `json:"status"`
	Code    string                 `json:"code,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Change  *members.OrgRoleChange `json:"change,omitempty"`
}

// BulkResponse holds per-item results in request order
type BulkResponse struct {
	Results   []BulkItemResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

// CreateProjectRequest creates a project owned by the caller
type CreateProjectRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// CreateProjectResponse is the new project and its first owner
type CreateProjectResponse struct {
	Project *store.Project       `json:"project"`
	Owner   *store.ProjectMember `json:"owner"`
}

// MembersResponse lists a project roster
type MembersResponse struct {
	ProjectID int64                  `json:"project_id"`
	Members   []*store.ProjectMember `json:"members"`
}

// RoleChangesResponse lists audit events, newest first
type RoleChangesResponse struct {
	Events []*audit.RoleChangeEvent `json:"events"`
}
