package bookings

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSlotHeld          = errors.New("slot is held by a booked booking")
	ErrEmailTaken        = errors.New("email already registered")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

func notFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// PersistenceError means the snapshot write failed. The in-memory state was not
// changed, so the caller may retry.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist snapshot: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
