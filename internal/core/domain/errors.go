package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrPersistence          = errors.New("persistence failed")
	ErrStoreUnavailable     = errors.New("store unavailable")
)

// Kind names are part of the HTTP error envelope and must stay stable.
const (
	KindValidation           = "ValidationFailed"
	KindNotFound             = "NotFoundError"
	KindInsufficientCapacity = "InsufficientCapacity"
	KindPersistence          = "PersistenceFailed"
	KindStoreUnavailable     = "StoreUnavailable"
	KindInternal             = "Internal"
)

type ValidationError struct {
	Field  string
	Reason string
	// Cause is set when the failure comes from another kind, e.g. an unknown lesson id.
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

type CapacityError struct {
	LessonID  string
	Requested int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("lesson %s cannot accommodate %d more", e.LessonID, e.Requested)
}

func (e *CapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// KindOf maps an error onto its taxonomy name. Validation wins over any cause it wraps.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInsufficientCapacity):
		return KindInsufficientCapacity
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
