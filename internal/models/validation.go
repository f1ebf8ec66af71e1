package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRow is matched by every ValidationError so callers can use errors.Is.
	ErrInvalidRow = errors.New("invalid row")
	// ErrNotFound is returned by stores for an entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCheckIn is returned when the person already has a record
	// for the same date and session.
	ErrDuplicateCheckIn = errors.New("already checked in for this session")
)

// ValidationError reports a backend row that cannot be mapped into a domain entity.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRow
}

func invalid(entity, field, reason string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: reason}
}
