package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/repotrim/repotrim/pkg/gc"
	"github.com/repotrim/repotrim/pkg/idmap"
	"github.com/repotrim/repotrim/pkg/object"
	"github.com/repotrim/repotrim/pkg/rewrite"
)

// runCLI executes the root command with the given arguments and captures
// both output streams.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

type storeFixture struct {
	dir   string
	store *object.FSStore
	small object.Hash
	big   object.Hash
	head  object.Hash
}

func storePutBlob(t *testing.T, s object.Store, data []byte) object.Hash {
	t.Helper()
	h, err := s.Put(&object.Blob{Data: data})
	if err != nil {
		t.Fatalf("Put blob: %v", err)
	}
	return h
}

func storePutTree(t *testing.T, s object.Store, entries ...object.TreeEntry) object.Hash {
	t.Helper()
	h, err := s.Put(&object.Tree{Entries: entries})
	if err != nil {
		t.Fatalf("Put tree: %v", err)
	}
	return h
}

func storePutCommit(t *testing.T, s object.Store, tree object.Hash, parents []object.Hash, when int64, msg string) object.Hash {
	t.Helper()
	h, err := s.Put(&object.Commit{
		TreeHash:   tree,
		Parents:    parents,
		Author:     "Ann Example <ann@example.com>",
		AuthorTime: when,
		AuthorTZ:   "+0000",
		Committer:  "Ann Example <ann@example.com>",
		CommitTime: when,
		CommitTZ:   "+0000",
		Message:    msg,
	})
	if err != nil {
		t.Fatalf("Put commit: %v", err)
	}
	return h
}

// seedStore builds a three-commit history on disk: the second commit
// introduces a 150-byte blob and the third shrinks it to 50 bytes, so a
// 100-byte threshold strips exactly one blob.
func seedStore(t *testing.T) *storeFixture {
	t.Helper()
	dir := t.TempDir()
	s := object.NewFSStore(dir)

	small := storePutBlob(t, s, bytes.Repeat([]byte("a"), 10))
	big := storePutBlob(t, s, bytes.Repeat([]byte("b"), 150))
	shrunk := storePutBlob(t, s, bytes.Repeat([]byte("c"), 50))

	fileA := object.TreeEntry{Name: "a.txt", Mode: object.ModeFile, Hash: small}
	tree1 := storePutTree(t, s, fileA)
	tree2 := storePutTree(t, s, fileA, object.TreeEntry{Name: "big.bin", Mode: object.ModeFile, Hash: big})
	tree3 := storePutTree(t, s, fileA, object.TreeEntry{Name: "big.bin", Mode: object.ModeFile, Hash: shrunk})

	c1 := storePutCommit(t, s, tree1, nil, 100, "one\n")
	c2 := storePutCommit(t, s, tree2, []object.Hash{c1}, 200, "two\n")
	c3 := storePutCommit(t, s, tree3, []object.Hash{c2}, 300, "three\n")

	if err := s.UpdateRef("refs/heads/main", "", c3); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	return &storeFixture{dir: dir, store: s, small: small, big: big, head: c3}
}

func countObjects(t *testing.T, s *object.FSStore) int {
	t.Helper()
	n := 0
	err := s.ForEachObject(func(object.Hash) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachObject: %v", err)
	}
	return n
}

func TestVersionCmd(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := out, "repotrim 0.1.0-dev\n"; got != want {
		t.Fatalf("version output = %q, want %q", got, want)
	}
}

func TestUnknownCommandFails(t *testing.T) {
	_, _, err := runCLI(t, "frobnicate")
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if got := exitCode(err); got != 1 {
		t.Fatalf("exitCode = %d, want 1", got)
	}
}

func TestStoreAndGitFlagsAreExclusive(t *testing.T) {
	_, _, err := runCLI(t, "--store", t.TempDir(), "--git", t.TempDir(), "refs")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("err = %v, want mutually exclusive", err)
	}
}

func TestMissingStoreIsUnavailable(t *testing.T) {
	_, _, err := runCLI(t, "--store", "/does/not/exist", "refs")
	if !errors.Is(err, errStoreUnavailable) {
		t.Fatalf("err = %v, want errStoreUnavailable", err)
	}
	if got := exitCode(err); got != 4 {
		t.Fatalf("exitCode = %d, want 4", got)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"invalid policy", rewrite.ErrInvalidPolicy, 2},
		{"policy detail", &rewrite.PolicyError{Field: "max_blob_size", Reason: "missing"}, 2},
		{"ref conflict", object.ErrRefConflict, 3},
		{"ref conflict detail", &object.RefConflictError{Ref: "refs/heads/main"}, 3},
		{"backup exists", rewrite.ErrBackupExists, 3},
		{"not found", object.ErrNotFound, 4},
		{"corrupt", fmt.Errorf("load: %w", &object.CorruptError{Hash: "ab", Reason: "short"}), 4},
		{"store unavailable", fmt.Errorf("%w: gone", errStoreUnavailable), 4},
		{"gc unconfirmed", gc.ErrConfirmationRequired, 5},
		{"gc unsupported", gc.ErrSweepUnsupported, 5},
		{"rewrite in flight", idmap.ErrRewriteInFlight, 5},
		{"other", errors.New("boom"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("%s: exitCode = %d, want %d", tc.name, got, tc.want)
		}
	}
}
