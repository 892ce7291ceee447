package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrNotFound        = "NOT_FOUND"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Coordination-specific error codes.
const (
	// ErrActionMismatch: the resume named an action that is not the
	// incident's live pending action. Indicates a stale client.
	ErrActionMismatch = "ACTION_MISMATCH"
	// ErrIncidentTerminal: the incident already reached completed or error;
	// no further pause is accepted.
	ErrIncidentTerminal = "INCIDENT_TERMINAL"
)

// ErrorEnvelope is the standard error response envelope returned by the
// coordination API. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf returns the envelope code carried by err, or INTERNAL_ERROR when err
// is not an ErrorEnvelope.
func CodeOf(err error) string {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ErrInternalError
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewActionMismatchError returns an ACTION_MISMATCH error naming both the
// requested and the live action.
func NewActionMismatchError(requested, live string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrActionMismatch,
		Message: fmt.Sprintf("Action %q does not match the pending action %q", requested, live),
	}
}

// NewIncidentTerminalError returns an INCIDENT_TERMINAL error.
func NewIncidentTerminalError(incidentID string, step Step) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrIncidentTerminal,
		Message: fmt.Sprintf("Incident %q is already %s and accepts no further actions", incidentID, step),
	}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}
