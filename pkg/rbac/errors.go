package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means the request carried no valid actor identity
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTenantNotFound means the organization selector did not resolve for this actor
	ErrTenantNotFound = errors.New("organization not found")

	// ErrProjectNotFound means the project selector did not resolve within the organization
	ErrProjectNotFound = errors.New("project not found")

	// ErrActorNotFound means the actor does not exist or is outside the organization
	ErrActorNotFound = errors.New("actor not found")

	// ErrMemberNotFound means the actor has no membership row for the project
	ErrMemberNotFound = errors.New("project member not found")

	// ErrPermissionDenied is matched by every *PermissionDeniedError
	ErrPermissionDenied = errors.New("permission denied")

	ErrInvalidTransition   = errors.New("invalid role transition")
	ErrSelfModification    = errors.New("actors may not modify their own role")
	ErrLastOwner           = errors.New("project must retain at least one owner")
	ErrDuplicateMember     = errors.New("actor is already a project member")
	ErrConflictingMutation = errors.New("conflicting concurrent role mutation")
	ErrInvalidInput        = errors.New("invalid input")
)

// PermissionDeniedError is returned when the decision engine denies a request.
// It carries only the requester's own role, never another actor's.
type PermissionDeniedError struct {
	Required  PermissionSet
	ActorRole OrgRole
	Reason    string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: requires [%s]: %s", e.Required.String(), e.Reason)
}

// Is lets errors.Is(err, ErrPermissionDenied) match
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// IsPermissionDenied checks if an error is a permission denial
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
