package storage

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write would violate a uniqueness constraint,
	// such as a second user or subscriber with the same email.
	ErrConflict = errors.New("record already exists")
)
