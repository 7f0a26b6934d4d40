package httputil

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// StatusFor maps an error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, rbac.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, rbac.ErrTenantNotFound),
		errors.Is(err, rbac.ErrProjectNotFound),
		errors.Is(err, rbac.ErrActorNotFound),
		errors.Is(err, rbac.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, rbac.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, rbac.ErrInvalidTransition),
		errors.Is(err, rbac.ErrSelfModification):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rbac.ErrLastOwner),
		errors.Is(err, rbac.ErrDuplicateMember),
		errors.Is(err, rbac.ErrConflictingMutation):
		return http.StatusConflict
	case errors.Is(err, rbac.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode is a stable machine-readable name for an error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, rbac.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, rbac.ErrTenantNotFound):
		return "organization_not_found"
	case errors.Is(err, rbac.ErrProjectNotFound):
		return "project_not_found"
	case errors.Is(err, rbac.ErrActorNotFound):
		return "actor_not_found"
	case errors.Is(err, rbac.ErrMemberNotFound):
		return "member_not_found"
	case errors.Is(err, rbac.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, rbac.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, rbac.ErrSelfModification):
		return "self_modification"
	case errors.Is(err, rbac.ErrLastOwner):
		return "last_owner"
	case errors.Is(err, rbac.ErrDuplicateMember):
		return "duplicate_member"
	case errors.Is(err, rbac.ErrConflictingMutation):
		return "conflicting_mutation"
	case errors.Is(err, rbac.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

// PublicMessage hides internals. Not-found errors carry only the sentinel
// text so that lookups never reveal which tenant a resource lives in.
func PublicMessage(err error, status int) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal server error"
	case http.StatusUnauthorized:
		return rbac.ErrUnauthenticated.Error()
	case http.StatusNotFound:
		for _, sentinel := range []error{rbac.ErrTenantNotFound, rbac.ErrProjectNotFound, rbac.ErrActorNotFound, rbac.ErrMemberNotFound} {
			if errors.Is(err, sentinel) {
				return sentinel.Error()
			}
		}
	}
	return err.Error()
}
