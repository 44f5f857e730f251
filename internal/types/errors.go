package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recoverable failure classes the workflow surfaces
// to the technician. Callers match with errors.Is and convert to alerts; none
// of these may crash the workflow surface.
var (
	// ErrLocationDenied: positioning permission refused. The in-progress
	// action must abort; it never proceeds without a fix.
	ErrLocationDenied = errors.New("location permission denied")

	// ErrLocationUnavailable: permission granted but no fix obtainable
	// (positioning switched off, no signal).
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrCaptureCancelled: the technician dismissed the capture UI. Not a
	// failure; the item simply stays uncaptured.
	ErrCaptureCancelled = errors.New("capture cancelled")

	// ErrSessionExpired: the technician bearer token is past its expiry.
	ErrSessionExpired = errors.New("session token expired")
)

// ValidationError is a locally-detected unmet precondition (missing photo,
// missing signature, wrong state). It blocks the action before any server
// call is attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a user-facing precondition failure.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a locally-blocked precondition.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// APIError is an application-level rejection from the field-service backend
// (envelope success=false). Distinct from a transport failure; both are
// retryable by re-issuing the same action.
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend rejected %s: %s", e.Endpoint, e.Message)
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
