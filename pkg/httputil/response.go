package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// DeniedResponse is the 403 body. It names the requester's own role only.
type DeniedResponse struct {
	ErrorResponse
	RequiredPermissions rbac.PermissionSet `json:"required_permissions"`
	ActorRole           rbac.OrgRole       `json:"actor_role,omitempty"`
	Reason              string             `json:"reason,omitempty"`
}

// WriteError translates err with StatusFor and writes the JSON body. A
// *rbac.PermissionDeniedError produces a DeniedResponse.
func WriteError(w http.ResponseWriter, r *http.Request, err error) int {
	status := StatusFor(err)
	base := ErrorResponse{
		Error:     PublicMessage(err, status),
		Code:      ErrorCode(err),
		RequestID: requestID(r),
	}

	var denied *rbac.PermissionDeniedError
	if errors.As(err, &denied) {
		WriteJSON(w, status, DeniedResponse{
			ErrorResponse:       base,
			RequiredPermissions: denied.Required,
			ActorRole:           denied.ActorRole,
			Reason:              denied.Reason,
		})
		return status
	}

	WriteJSON(w, status, base)
	return status
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: http.StatusText(status)})
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}
