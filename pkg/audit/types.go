package audit

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Scope is the domain a role change applies to
type Scope string

const (
	ScopeOrganization Scope = "organization"
	ScopeProject      Scope = "project"
)

// Action is the kind of role change
type Action string

const (
	ActionAssign Action = "assign"
	ActionChange Action = "change"
	ActionRemove Action = "remove"
)

// RoleChangeEvent is an append-only record of one role mutation. OldRole is
// empty on assignment and NewRole is empty on removal.
type RoleChangeEvent struct {
	ID             string    `json:"id"`
	Scope          Scope     `json:"scope"`
	Action         Action    `json:"action"`
	OrganizationID int64     `json:"organization_id"`
	ProjectID      *int64    `json:"project_id,omitempty"`
	TargetActorID  int64     `json:"target_actor_id"`
	OldRole        string    `json:"old_role,omitempty"`
	NewRole        string    `json:"new_role,omitempty"`
	PerformedBy    int64     `json:"performed_by"`
	RequestID      string    `json:"request_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEventID returns a lexically sortable event identifier
func NewEventID() string {
	return ulid.Make().String()
}

// Filter selects role change events. OrganizationID is required; the other
// fields narrow the result when set.
type Filter struct {
	OrganizationID int64
	ProjectID      *int64
	TargetActorID  *int64
	Since          *time.Time
	Limit          int
}

// DefaultListLimit caps List when Filter.Limit is zero
const DefaultListLimit = 100

// MaxListLimit is the largest accepted Filter.Limit
const MaxListLimit = 1000

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

func (f Filter) matches(e *RoleChangeEvent) bool {
	if e.OrganizationID != f.OrganizationID {
		return false
	}
	if f.ProjectID != nil && (e.ProjectID == nil || *e.ProjectID != *f.ProjectID) {
		return false
	}
	if f.TargetActorID != nil && e.TargetActorID != *f.TargetActorID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	return true
}
