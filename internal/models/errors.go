package models

import "fmt"

// ValidationError reports malformed or inconsistent input: bad split sums,
// non-positive amounts, same-user settlements. Never partially applied.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist or is
// already deleted.
type NotFoundError struct {
	Kind string // "expense", "split", "settlement"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound builds a NotFoundError for the given entity kind and ID.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports a mutation that lost to concurrent or prior state:
// a split already claimed by another settlement, a terminal settlement
// being transitioned, an expense with settled splits being edited.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflictf builds a ConflictError with a formatted message.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// InternalConsistencyError reports a violated accounting invariant, such as
// a balance vector that does not sum to zero. It indicates a bug elsewhere,
// not bad input, and must propagate rather than be swallowed.
type InternalConsistencyError struct {
	Msg string
}

func (e *InternalConsistencyError) Error() string { return e.Msg }

// Inconsistencyf builds an InternalConsistencyError with a formatted message.
func Inconsistencyf(format string, args ...any) error {
	return &InternalConsistencyError{Msg: fmt.Sprintf(format, args...)}
}
