package scheduler

import "errors"

var (
	// ErrDuplicatePending rejects a schedule request for a target that
	// already has a live record.
	ErrDuplicatePending = errors.New("a deletion is already pending for this target")
	// ErrInvalidState rejects an operation not valid for the record's
	// current state (e.g. cancel during execution).
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrNotPending rejects a confirmation for a record that is not awaiting
	// one.
	ErrNotPending = errors.New("record is not awaiting confirmation")
	// ErrNotFound is returned for operations on unknown record IDs.
	ErrNotFound = errors.New("scheduled deletion not found")
)
