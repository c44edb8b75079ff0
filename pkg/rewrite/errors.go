package rewrite

import (
	"errors"
	"fmt"

	"github.com/repotrim/repotrim/pkg/object"
)

// ErrInvalidPolicy is matched by errors.Is for any policy rejected before
// traversal begins.
var ErrInvalidPolicy = errors.New("invalid size policy")

// ErrBackupExists is matched by errors.Is when a rewrite would overwrite a
// backup ref left by an earlier pass. The earlier backups must be expired
// (repotrim gc) or deliberately overwritten with Force first.
var ErrBackupExists = errors.New("backup ref already exists")

// PolicyError describes why a policy was rejected.
type PolicyError struct {
	Field  string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidPolicy, e.Field, e.Reason)
}

func (e *PolicyError) Is(target error) bool { return target == ErrInvalidPolicy }

// BackupExistsError names the backup ref that blocked a rewrite.
type BackupExistsError struct {
	Ref string
}

func (e *BackupExistsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrBackupExists, e.Ref)
}

func (e *BackupExistsError) Is(target error) bool { return target == ErrBackupExists }

// TableConflictError reports a second, different mapping recorded for an id
// the translation table already maps. Commit, tag and blob derivation is
// pure per id, so a conflict there is a fault in the walk, not in the
// store.
type TableConflictError struct {
	Kind     string
	Old      object.Hash
	Existing object.Hash
	New      object.Hash
}

func (e *TableConflictError) Error() string {
	return fmt.Sprintf("translation table: %s %s already maps to %s, refusing %s",
		e.Kind, e.Old, e.Existing, e.New)
}
