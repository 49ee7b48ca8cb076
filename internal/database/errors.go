package database

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the
// local store. Callers translate it, they never retry it.
var ErrNotFound = errors.New("not found")

// ErrNoFields is returned when a partial update carries nothing to apply.
var ErrNoFields = errors.New("no fields to update")
