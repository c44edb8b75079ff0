package rewrite

import (
	"errors"
	"strings"
	"testing"

	"github.com/repotrim/repotrim/pkg/object"
)

func h64(c byte) object.Hash {
	return object.Hash(strings.Repeat(string(c), 64))
}

func TestTableFirstWriterWins(t *testing.T) {
	tb := NewTable()

	if err := tb.PutCommit(h64('a'), h64('b')); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	// Same mapping again is a no-op.
	if err := tb.PutCommit(h64('a'), h64('b')); err != nil {
		t.Errorf("idempotent PutCommit: %v", err)
	}
	// A different value for a mapped id is a bug in the caller.
	err := tb.PutCommit(h64('a'), h64('c'))
	var conflict *TableConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("conflicting PutCommit: got %v, want TableConflictError", err)
	}
	if conflict.Kind != "commit" || conflict.Existing != h64('b') || conflict.New != h64('c') {
		t.Errorf("conflict detail: %+v", conflict)
	}
	if got := tb.ResolveCommit(h64('a')); got != h64('b') {
		t.Errorf("ResolveCommit after conflict attempt: got %s, want %s", got, h64('b'))
	}
}

func TestTableTreeDivergenceKeepsFirst(t *testing.T) {
	tb := NewTable()
	tb.PutTree(h64('1'), h64('2'))
	// The same tree rewritten differently under a second mount prefix must
	// not abort the pass.
	tb.PutTree(h64('1'), h64('3'))

	if got, ok := tb.LookupTree(h64('1')); !ok || got != h64('2') {
		t.Errorf("LookupTree: got %s/%v, want first mapping %s", got, ok, h64('2'))
	}
	_, _, trees, _, _ := tb.Counts()
	if trees != 1 {
		t.Errorf("tree count: got %d, want 1", trees)
	}
}

func TestTableTagMappings(t *testing.T) {
	tb := NewTable()
	if err := tb.PutTag(h64('a'), h64('b')); err != nil {
		t.Fatalf("PutTag: %v", err)
	}
	got, ok := tb.LookupTag(h64('a'))
	if !ok || got != h64('b') {
		t.Errorf("LookupTag: got %s/%v, want %s", got, ok, h64('b'))
	}
	if _, ok := tb.LookupTag(h64('c')); ok {
		t.Error("LookupTag should miss for unmapped id")
	}
	if got := tb.ResolveTag(h64('a')); got != h64('b') {
		t.Errorf("ResolveTag: got %s, want %s", got, h64('b'))
	}
}

func TestTableResolveIdentityFallback(t *testing.T) {
	tb := NewTable()
	if got := tb.ResolveCommit(h64('9')); got != h64('9') {
		t.Errorf("unmapped commit should resolve to itself, got %s", got)
	}
	if got := tb.ResolveTag(h64('8')); got != h64('8') {
		t.Errorf("unmapped tag should resolve to itself, got %s", got)
	}
	if _, ok := tb.LookupCommit(h64('9')); ok {
		t.Error("LookupCommit should miss for unmapped id")
	}
}

func TestTableCountsAndChangedCommits(t *testing.T) {
	tb := NewTable()
	if err := tb.PutCommit(h64('a'), h64('a')); err != nil {
		t.Fatalf("PutCommit identity: %v", err)
	}
	if err := tb.PutCommit(h64('c'), h64('d')); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	if err := tb.PutCommit(h64('b'), h64('e')); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	tb.PutTree(h64('1'), h64('2'))
	if err := tb.PutBlob(h64('3'), h64('4')); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	commits, changed, trees, blobs, tags := tb.Counts()
	if commits != 3 || changed != 2 || trees != 1 || blobs != 1 || tags != 0 {
		t.Errorf("Counts: got %d/%d/%d/%d/%d", commits, changed, trees, blobs, tags)
	}

	got := tb.ChangedCommits()
	if len(got) != 2 || got[0] != h64('b') || got[1] != h64('c') {
		t.Errorf("ChangedCommits: got %v, want sorted [b..., c...]", got)
	}
}

func TestTableSnapshotsAreCopies(t *testing.T) {
	tb := NewTable()
	if err := tb.PutBlob(h64('a'), h64('b')); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	snap := tb.StrippedBlobs()
	snap[h64('x')] = h64('y')
	if _, ok := tb.LookupBlob(h64('x')); ok {
		t.Error("mutating a snapshot leaked into the table")
	}
}
