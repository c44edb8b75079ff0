package object

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a referenced id is absent from the store. A
// missing object is fatal for any traversal that reaches it.
var ErrNotFound = errors.New("object not found")

// ErrRefConflict is the sentinel matched by errors.Is for any failed ref
// compare-and-swap.
var ErrRefConflict = errors.New("ref compare-and-swap conflict")

// NotFoundError wraps ErrNotFound with the missing id.
type NotFoundError struct {
	Hash Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.Hash)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CorruptError reports an object that is present but cannot be decoded:
// bad envelope, truncated frame, or content that no longer matches its id.
type CorruptError struct {
	Hash   Hash
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("object %s corrupt: %s: %v", e.Hash, e.Reason, e.Err)
	}
	return fmt.Sprintf("object %s corrupt: %s", e.Hash, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// RefConflictError reports a compare-and-swap failure on a named ref,
// carrying the expected and observed values. It matches ErrRefConflict.
type RefConflictError struct {
	Ref   string
	Want  Hash
	Found Hash
}

func (e *RefConflictError) Error() string {
	return fmt.Sprintf(
		"ref %q: %v (expected %q, found %q)",
		e.Ref, ErrRefConflict, e.Want, e.Found,
	)
}

func (e *RefConflictError) Is(target error) bool { return target == ErrRefConflict }
