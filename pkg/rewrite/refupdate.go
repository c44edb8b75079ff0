package rewrite

import (
	"sort"
	"strings"

	"github.com/repotrim/repotrim/pkg/object"
)

// BackupNamespace holds pre-rewrite tips until garbage collection expires
// them. Refs under it are never walked and never updated by a rewrite.
const BackupNamespace = "refs/backup/"

// BackupRefName maps a ref to its backup slot:
// "refs/heads/main" -> "refs/backup/heads/main".
func BackupRefName(name string) string {
	return BackupNamespace + strings.TrimPrefix(name, "refs/")
}

// IsBackupRef reports whether a ref lives in the backup namespace.
func IsBackupRef(name string) bool {
	return strings.HasPrefix(name, BackupNamespace)
}

// liveRefs filters out the backup namespace from a ref listing.
func liveRefs(refs map[string]object.Hash) map[string]object.Hash {
	out := make(map[string]object.Hash, len(refs))
	for name, h := range refs {
		if IsBackupRef(name) {
			continue
		}
		out[name] = h
	}
	return out
}

// planRefUpdates builds the single transaction that publishes a rewrite.
// For every live ref whose tip translated to a new id, the batch carries a
// must-not-exist write of the old tip into the backup namespace immediately
// before the compare-and-swap move of the ref itself. Untouched refs appear
// nowhere in the batch.
//
// A backup slot already occupied by an earlier pass aborts the plan with a
// *BackupExistsError; with overwrite set the stale backup is replaced via
// compare-and-swap instead.
func planRefUpdates(live, all map[string]object.Hash, table *Table, overwrite bool) (updates []object.RefUpdate, moved []string, err error) {
	names := make([]string, 0, len(live))
	for name := range live {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		old := live[name]
		new := old
		if m, ok := table.LookupCommit(old); ok {
			new = m
		} else if m, ok := table.LookupTag(old); ok {
			new = m
		}
		if new == old {
			continue
		}

		backup := BackupRefName(name)
		prev, taken := all[backup]
		if taken && !overwrite {
			return nil, nil, &BackupExistsError{Ref: backup}
		}
		if !taken {
			prev = ""
		}
		updates = append(updates,
			object.RefUpdate{Name: backup, Old: prev, New: old, Reason: "rewrite: backup"},
			object.RefUpdate{Name: name, Old: old, New: new, Reason: "rewrite: strip oversized blobs"},
		)
		moved = append(moved, name)
	}
	return updates, moved, nil
}
