package main

import (
	"strings"
	"testing"
)

func TestReflogCmdShowsRewriteMove(t *testing.T) {
	fix := seedStore(t)
	if _, _, err := runCLI(t, "--store", fix.dir, "rewrite", "--max-blob-size", "100"); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	out, _, err := runCLI(t, "--store", fix.dir, "reflog", "refs/heads/main")
	if err != nil {
		t.Fatalf("reflog: %v", err)
	}
	if !strings.Contains(out, "rewrite: strip oversized blobs") {
		t.Fatalf("output missing the rewrite reason:\n%s", out)
	}
	if !strings.Contains(out, fix.head.Short()) {
		t.Fatalf("output missing the old tip %s:\n%s", fix.head.Short(), out)
	}
}

func TestReflogCmdMissingRef(t *testing.T) {
	fix := seedStore(t)

	out, _, err := runCLI(t, "--store", fix.dir, "reflog", "refs/heads/nope")
	if err != nil {
		t.Fatalf("reflog: %v", err)
	}
	if !strings.Contains(out, "no reflog") {
		t.Fatalf("output = %q, want no reflog", out)
	}
}
