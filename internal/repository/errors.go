// Package repository defines the persistence contract of the booking engine
// and its MySQL implementation.  The sentinel values below let higher layers
// tell a missing row from a lost lock race from an unreachable database.
package repository

import "github.com/cockroachdb/errors"

// ErrNotFound is returned when the requested row does not exist.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert collides with a unique key, such
// as materializing a slot that already exists for the same occurrence.
var ErrDuplicate = errors.New("duplicate")

// ErrConflict is returned when a transaction keeps losing lock races
// (deadlock or lock wait timeout) after all retries.  Handlers translate it
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrUnavailable marks infrastructure failures: the store could not be
// reached or returned an unexpected error.  It is never a business outcome.
var ErrUnavailable = errors.New("store unavailable")

// infra wraps err with context and marks it as an infrastructure failure.
func infra(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrUnavailable)
}
