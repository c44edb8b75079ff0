package gitstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/repotrim/repotrim/pkg/object"
	"github.com/repotrim/repotrim/pkg/rewrite"
)

func TestRefsSkipSymbolic(t *testing.T) {
	mem := memory.NewStorage()
	s := New(mem)

	tip, err := s.Put(&object.Blob{Data: []byte("t")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.UpdateRef("refs/heads/main", "", tip); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	err = mem.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/main"))
	if err != nil {
		t.Fatalf("SetReference: %v", err)
	}

	refs, err := s.Refs()
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("refs: got %v, want just refs/heads/main", refs)
	}
	if refs["refs/heads/main"] != tip {
		t.Errorf("refs/heads/main: got %s, want %s", refs["refs/heads/main"], tip)
	}
}

func TestUpdateRefsCompareAndSwap(t *testing.T) {
	s := tempStore(t)
	a := object.Hash(strings.Repeat("a", 40))
	b := object.Hash(strings.Repeat("b", 40))

	if err := s.UpdateRef("refs/heads/main", "", a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateRef("refs/heads/main", a, b); err != nil {
		t.Fatalf("advance: %v", err)
	}

	err := s.UpdateRef("refs/heads/main", a, b)
	var conflict *object.RefConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("stale CAS: got %v, want RefConflictError", err)
	}
	if conflict.Ref != "refs/heads/main" || conflict.Found != b {
		t.Errorf("conflict detail: got %+v", conflict)
	}

	if err := s.DeleteRef("refs/heads/main", b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	refs, err := s.Refs()
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("refs after delete: got %v, want none", refs)
	}
}

func TestUpdateRefsCreateRequiresAbsent(t *testing.T) {
	s := tempStore(t)
	a := object.Hash(strings.Repeat("a", 40))
	b := object.Hash(strings.Repeat("b", 40))

	if err := s.UpdateRef("refs/heads/main", "", a); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.UpdateRef("refs/heads/main", "", b)
	if !errors.Is(err, object.ErrRefConflict) {
		t.Errorf("create over existing: got %v, want ref conflict", err)
	}
}

func TestUpdateRefsConflictAbortsBatch(t *testing.T) {
	s := tempStore(t)
	a := object.Hash(strings.Repeat("a", 40))
	b := object.Hash(strings.Repeat("b", 40))
	stale := object.Hash(strings.Repeat("c", 40))

	if err := s.UpdateRef("refs/heads/main", "", a); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.UpdateRefs([]object.RefUpdate{
		{Name: "refs/backup/heads/main", Old: "", New: a},
		{Name: "refs/heads/main", Old: stale, New: b},
	})
	if !errors.Is(err, object.ErrRefConflict) {
		t.Fatalf("batch with stale CAS: got %v, want ref conflict", err)
	}

	refs, err := s.Refs()
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	if _, ok := refs["refs/backup/heads/main"]; ok {
		t.Error("backup ref written despite aborted batch")
	}
	if refs["refs/heads/main"] != a {
		t.Errorf("refs/heads/main: got %s, want untouched %s", refs["refs/heads/main"], a)
	}
}

// failingRefStorer fails the write of one specific ref, to exercise the
// mid-batch rollback path.
type failingRefStorer struct {
	*memory.Storage
	failOn plumbing.ReferenceName
}

func (f *failingRefStorer) CheckAndSetReference(new, old *plumbing.Reference) error {
	if new != nil && new.Name() == f.failOn {
		return errors.New("disk full")
	}
	return f.Storage.CheckAndSetReference(new, old)
}

func TestUpdateRefsRollsBackOnWriteFailure(t *testing.T) {
	mem := memory.NewStorage()
	s := New(&failingRefStorer{Storage: mem, failOn: "refs/heads/main"})
	a := object.Hash(strings.Repeat("a", 40))
	b := object.Hash(strings.Repeat("b", 40))

	if err := New(mem).UpdateRef("refs/heads/main", "", a); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := s.UpdateRefs([]object.RefUpdate{
		{Name: "refs/backup/heads/main", Old: "", New: a},
		{Name: "refs/heads/main", Old: a, New: b},
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("batch: got %v, want injected write failure", err)
	}

	refs, rerr := New(mem).Refs()
	if rerr != nil {
		t.Fatalf("Refs: %v", rerr)
	}
	if _, ok := refs["refs/backup/heads/main"]; ok {
		t.Error("backup ref survived rollback")
	}
	if refs["refs/heads/main"] != a {
		t.Errorf("refs/heads/main: got %s, want untouched %s", refs["refs/heads/main"], a)
	}
}

// The adapter end to end: strip an oversized blob out of a git history and
// verify the moved refs, the backup, and the tombstone content.
func TestRewriteGitHistory(t *testing.T) {
	s := tempStore(t)

	small, err := s.Put(&object.Blob{Data: bytes.Repeat([]byte{'a'}, 10)})
	if err != nil {
		t.Fatalf("Put small: %v", err)
	}
	big, err := s.Put(&object.Blob{Data: bytes.Repeat([]byte{'b'}, 150)})
	if err != nil {
		t.Fatalf("Put big: %v", err)
	}

	tree1, err := s.Put(&object.Tree{Entries: []object.TreeEntry{
		{Name: "a.txt", Mode: object.ModeFile, Hash: small},
	}})
	if err != nil {
		t.Fatalf("Put tree1: %v", err)
	}
	tree2, err := s.Put(&object.Tree{Entries: []object.TreeEntry{
		{Name: "a.txt", Mode: object.ModeFile, Hash: small},
		{Name: "big.bin", Mode: object.ModeFile, Hash: big},
	}})
	if err != nil {
		t.Fatalf("Put tree2: %v", err)
	}

	c1, err := s.Put(&object.Commit{
		TreeHash: tree1,
		Author:   "Ann <a@e>", AuthorTime: 100, AuthorTZ: "+0000",
		Committer: "Ann <a@e>", CommitTime: 100, CommitTZ: "+0000",
		Message: "add a\n",
	})
	if err != nil {
		t.Fatalf("Put c1: %v", err)
	}
	c2, err := s.Put(&object.Commit{
		TreeHash: tree2,
		Parents:  []object.Hash{c1},
		Author:   "Ann <a@e>", AuthorTime: 200, AuthorTZ: "+0000",
		Committer: "Ann <a@e>", CommitTime: 200, CommitTZ: "+0000",
		Message: "add big\n",
	})
	if err != nil {
		t.Fatalf("Put c2: %v", err)
	}
	if err := s.UpdateRef("refs/heads/main", "", c2); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	res, err := rewrite.Run(context.Background(), s, rewrite.Options{
		Policy: &rewrite.SizePolicy{MaxBlobSize: 100},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Code != rewrite.Success {
		t.Fatalf("code: got %v, want %v", res.Code, rewrite.Success)
	}
	if res.StrippedBlobs != 1 || res.RewrittenCommits != 1 {
		t.Errorf("counts: stripped=%d rewritten=%d, want 1/1", res.StrippedBlobs, res.RewrittenCommits)
	}
	if got := res.Table.ResolveCommit(c1); got != c1 {
		t.Errorf("untouched root commit moved: %s -> %s", c1, got)
	}

	refs, err := s.Refs()
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	if refs["refs/backup/heads/main"] != c2 {
		t.Errorf("backup: got %s, want %s", refs["refs/backup/heads/main"], c2)
	}
	newHead := refs["refs/heads/main"]
	if newHead == c2 || newHead.IsZero() {
		t.Fatalf("main did not move: %s", newHead)
	}
	if len(newHead) != 40 {
		t.Errorf("rewritten id width: got %d, want 40", len(newHead))
	}

	head, err := object.GetCommit(s, newHead)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	tree, err := object.GetTree(s, head.TreeHash)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	var tombstone object.Hash
	for _, e := range tree.Entries {
		if e.Name == "big.bin" {
			tombstone = e.Hash
		}
	}
	if tombstone.IsZero() || tombstone == big {
		t.Fatalf("big.bin not replaced: %s", tombstone)
	}
	blob, err := object.GetBlob(s, tombstone)
	if err != nil {
		t.Fatalf("GetBlob tombstone: %v", err)
	}
	if !bytes.Contains(blob.Data, []byte(big)) {
		t.Errorf("tombstone %q does not name the stripped blob", blob.Data)
	}
}
