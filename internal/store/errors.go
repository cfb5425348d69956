package store

import "errors"

// ErrNotFound is returned when a record does not exist. Ownership-scoped
// lookups return it equally for missing records and records owned by a
// different user, so callers cannot distinguish the two cases.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint.
var ErrConflict = errors.New("already exists")
