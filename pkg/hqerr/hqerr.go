// Package hqerr defines the error kinds callers distinguish with errors.Is.
package hqerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", ErrX) at the
// point of failure so callers can classify with errors.Is without string
// matching.
var (
	// ErrInvalidRequest marks malformed client input: backlog > 100, an
	// unknown dependency id, a duplicate task id. No state is mutated.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAllocatorFailure marks a QueueHandler call (schedule_allocation,
	// get_allocation_status, remove_allocation) that returned an error.
	ErrAllocatorFailure = errors.New("allocator failure")

	// ErrWorkerTransportFailure marks loss of a worker connection.
	ErrWorkerTransportFailure = errors.New("worker transport failure")

	// ErrTaskFailure marks a user task that exited non-zero or exceeded
	// its crash limit.
	ErrTaskFailure = errors.New("task failure")

	// ErrInternal marks an invariant violation: state the reactor or
	// scheduler believes cannot occur. Violations are logged; nothing
	// aborts on them.
	ErrInternal = errors.New("internal invariant violation")
)

// Is reports whether err was produced via Wrap(kind, ...) for kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// Wrap annotates err with kind so errors.Is(result, kind) succeeds.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Internal builds an ErrInternal violation, the sanity-check failure form
// used throughout pkg/graph and pkg/reactor.
func Internal(format string, args ...any) error {
	return Wrap(ErrInternal, format, args...)
}
