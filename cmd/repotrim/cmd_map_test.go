package main

import (
	"strings"
	"testing"

	"github.com/repotrim/repotrim/pkg/object"
)

func TestMapCmdUnknownID(t *testing.T) {
	fix := seedStore(t)

	_, _, err := runCLI(t, "--store", fix.dir, "map", string(fix.head))
	if err == nil || !strings.Contains(err.Error(), "no mapping") {
		t.Fatalf("err = %v, want no mapping", err)
	}
}

func TestMapCmdIdentityCommitHasNoEntry(t *testing.T) {
	fix := seedStore(t)
	if _, _, err := runCLI(t, "--store", fix.dir, "rewrite", "--max-blob-size", "100"); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// Walk from the new head down to the root commit, which predates the
	// oversized blob and so was kept as-is.
	refs, err := fix.store.Refs()
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	head, err := object.GetCommit(fix.store, refs["refs/heads/main"])
	if err != nil {
		t.Fatalf("GetCommit head: %v", err)
	}
	second, err := object.GetCommit(fix.store, head.Parents[0])
	if err != nil {
		t.Fatalf("GetCommit parent: %v", err)
	}
	root := second.Parents[0]

	_, _, err = runCLI(t, "--store", fix.dir, "map", string(root))
	if err == nil || !strings.Contains(err.Error(), "no mapping") {
		t.Fatalf("err = %v, want no mapping for an unchanged commit", err)
	}
}
