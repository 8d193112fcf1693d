// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrBadValue indicates the caller supplied a disallowed value.
var ErrBadValue = errors.New("bad value")

// ErrInvalidState indicates the operation is not permitted in the entity's
// current state.
var ErrInvalidState = errors.New("invalid state")

// ErrInternal indicates an invariant violation, such as an unexpected state
// enum value or malformed stored attribute data.
var ErrInternal = errors.New("internal error")
