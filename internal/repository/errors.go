// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// purchase workflow and the handlers to distinguish failure scenarios
// without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals that an operation cannot proceed because of
// conflicting state, such as a duplicate key.
var ErrConflict = errors.New("conflict")

// ErrUnavailable is returned by ReserveSlot when the offer is inactive or
// has no free capacity.
var ErrUnavailable = errors.New("offer not available or no slots left")

// ErrExhausted is returned by DecrementSlot when the conditional decrement
// matched no row because slots_available is already zero.
var ErrExhausted = errors.New("offer slots exhausted")
