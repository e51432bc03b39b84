package workflow

import "fmt"

// ValidationError reports a missing or malformed input, such as an
// absent change description or rejection reason. Maps to HTTP 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// NotFoundError reports a missing entity or snapshot. Maps to HTTP 404.
type NotFoundError struct {
	Kind string
	ID   uint
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// NewNotFoundError builds a NotFoundError for the given kind and id.
func NewNotFoundError(kind string, id uint) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// AuthorizationError reports that the actor lacks the role or
// assignment required for the attempted transition. Maps to HTTP 403.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// NewAuthorizationError builds an AuthorizationError with the given message.
func NewAuthorizationError(msg string) *AuthorizationError {
	return &AuthorizationError{Message: msg}
}

// InvalidStateTransitionError reports that the entity's current status
// does not permit the requested action. The current status is included
// for diagnostics. Maps to HTTP 400.
type InvalidStateTransitionError struct {
	Action  string
	Current Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while status is %s", e.Action, e.Current)
}

// NewInvalidStateTransitionError builds an InvalidStateTransitionError.
func NewInvalidStateTransitionError(action string, current Status) *InvalidStateTransitionError {
	return &InvalidStateTransitionError{Action: action, Current: current}
}

// ConflictError reports that the entity was modified concurrently
// between load and update: the conditional workflow-state write matched
// no row. The caller should reload and retry. Maps to HTTP 409.
type ConflictError struct {
	Kind string
	ID   uint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently, reload and retry", e.Kind, e.ID)
}

// NewConflictError builds a ConflictError for the given kind and id.
func NewConflictError(kind string, id uint) *ConflictError {
	return &ConflictError{Kind: kind, ID: id}
}
