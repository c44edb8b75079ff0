package rewrite

import (
	"sort"
	"sync"

	"github.com/repotrim/repotrim/pkg/object"
)

// Table is the old-id -> new-id translation built during one pass. Writes
// are monotonic: the first mapping for an id is authoritative. Commits,
// blobs and tags derive purely per id, so a later write of a different
// value for one of those is a *TableConflictError. Trees are looser: a
// path-scoped policy can rewrite the same tree two different ways under two
// mount prefixes, so tree writes keep the first mapping and ignore
// divergent successors.
//
// Commits are recorded for every visited commit, identity entries included,
// since later commits translate their parents through the table. Blobs,
// trees and tags are recorded only when their id changed.
type Table struct {
	mu      sync.RWMutex
	blobs   map[object.Hash]object.Hash
	trees   map[object.Hash]object.Hash
	commits map[object.Hash]object.Hash
	tags    map[object.Hash]object.Hash
}

// NewTable creates an empty translation table.
func NewTable() *Table {
	return &Table{
		blobs:   make(map[object.Hash]object.Hash),
		trees:   make(map[object.Hash]object.Hash),
		commits: make(map[object.Hash]object.Hash),
		tags:    make(map[object.Hash]object.Hash),
	}
}

func (t *Table) put(kind string, m map[object.Hash]object.Hash, old, new object.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := m[old]; ok {
		if cur != new {
			return &TableConflictError{Kind: kind, Old: old, Existing: cur, New: new}
		}
		return nil
	}
	m[old] = new
	return nil
}

// PutBlob records a stripped blob's replacement id.
func (t *Table) PutBlob(old, new object.Hash) error {
	return t.put("blob", t.blobs, old, new)
}

// PutTree records a rewritten tree. The first mapping for a tree wins:
// under a path-scoped policy the same tree mounted at two prefixes can
// legitimately rewrite to two different trees, and the table keeps one of
// them for reporting.
func (t *Table) PutTree(old, new object.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.trees[old]; !ok {
		t.trees[old] = new
	}
}

// PutCommit records a visited commit, identity entries included.
func (t *Table) PutCommit(old, new object.Hash) error {
	return t.put("commit", t.commits, old, new)
}

// PutTag records a rewritten tag.
func (t *Table) PutTag(old, new object.Hash) error {
	return t.put("tag", t.tags, old, new)
}

// ResolveCommit translates a commit id, falling back to identity for ids
// the pass never touched.
func (t *Table) ResolveCommit(old object.Hash) object.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if new, ok := t.commits[old]; ok {
		return new
	}
	return old
}

// ResolveTag translates a tag id with identity fallback.
func (t *Table) ResolveTag(old object.Hash) object.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if new, ok := t.tags[old]; ok {
		return new
	}
	return old
}

// LookupCommit reports the exact mapping for a commit id, if any.
func (t *Table) LookupCommit(old object.Hash) (object.Hash, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	new, ok := t.commits[old]
	return new, ok
}

// LookupTree reports the exact mapping for a tree id, if any.
func (t *Table) LookupTree(old object.Hash) (object.Hash, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	new, ok := t.trees[old]
	return new, ok
}

// LookupTag reports the exact mapping for a tag id, if any.
func (t *Table) LookupTag(old object.Hash) (object.Hash, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	new, ok := t.tags[old]
	return new, ok
}

// LookupBlob reports the replacement for a stripped blob id, if any.
func (t *Table) LookupBlob(old object.Hash) (object.Hash, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	new, ok := t.blobs[old]
	return new, ok
}

// StrippedBlobs returns a copy of the stripped-blob mapping.
func (t *Table) StrippedBlobs() map[object.Hash]object.Hash {
	return t.snapshot(t.blobs)
}

// Commits returns a copy of the commit mapping, identity entries included.
func (t *Table) Commits() map[object.Hash]object.Hash {
	return t.snapshot(t.commits)
}

// Trees returns a copy of the changed-tree mapping.
func (t *Table) Trees() map[object.Hash]object.Hash {
	return t.snapshot(t.trees)
}

// Tags returns a copy of the changed-tag mapping.
func (t *Table) Tags() map[object.Hash]object.Hash {
	return t.snapshot(t.tags)
}

func (t *Table) snapshot(m map[object.Hash]object.Hash) map[object.Hash]object.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[object.Hash]object.Hash, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ChangedCommits returns the sorted old ids of commits whose id changed.
func (t *Table) ChangedCommits() []object.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]object.Hash, 0, len(t.commits))
	for old, new := range t.commits {
		if old != new {
			out = append(out, old)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Counts summarizes the table for reporting.
func (t *Table) Counts() (commits, changedCommits, trees, blobs, tags int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for old, new := range t.commits {
		if old != new {
			changedCommits++
		}
	}
	return len(t.commits), changedCommits, len(t.trees), len(t.blobs), len(t.tags)
}
