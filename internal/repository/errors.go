package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousMatch is returned when a lookup meant to be unique matches several rows.
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrInvalidAttribute is returned for a patch key that is not a task field.
	ErrInvalidAttribute = errors.New("invalid attribute")
	// ErrInvalidValue is returned for a patch value of the wrong type.
	ErrInvalidValue = errors.New("invalid value")
	// ErrDuplicateName is returned when an active task with the same name exists in the scope.
	ErrDuplicateName = errors.New("duplicate task name")
	// ErrDuplicateAssignment is returned when an assignee is already on a task's rotation.
	ErrDuplicateAssignment = errors.New("duplicate assignment")
)
