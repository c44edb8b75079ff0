package gitstore

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/repotrim/repotrim/pkg/object"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return New(memory.NewStorage())
}

func TestPutBlobMatchesGitNames(t *testing.T) {
	s := tempStore(t)

	// Well-known git object names.
	h, err := s.Put(&object.Blob{})
	if err != nil {
		t.Fatalf("Put empty blob: %v", err)
	}
	if want := object.Hash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"); h != want {
		t.Errorf("empty blob id: got %s, want %s", h, want)
	}

	h, err = s.Put(&object.Tree{})
	if err != nil {
		t.Fatalf("Put empty tree: %v", err)
	}
	if want := object.Hash("4b825dc642cb6eb9a060e54bf8d69288fbee4904"); h != want {
		t.Errorf("empty tree id: got %s, want %s", h, want)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	s := tempStore(t)
	data := []byte("some file content\n")

	h, err := s.Put(&object.Blob{Data: data})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(h) != 40 {
		t.Fatalf("hash width: got %d, want 40", len(h))
	}

	got, err := object.GetBlob(s, h)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if !bytes.Equal(got.Data, data) {
		t.Errorf("blob content: got %q, want %q", got.Data, data)
	}

	size, err := s.BlobSize(h)
	if err != nil {
		t.Fatalf("BlobSize: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("BlobSize: got %d, want %d", size, len(data))
	}
}

func TestTreeRoundTrip(t *testing.T) {
	s := tempStore(t)
	blob, err := s.Put(&object.Blob{Data: []byte("x")})
	if err != nil {
		t.Fatalf("Put blob: %v", err)
	}
	sub, err := s.Put(&object.Tree{Entries: []object.TreeEntry{
		{Name: "inner.txt", Mode: object.ModeFile, Hash: blob},
	}})
	if err != nil {
		t.Fatalf("Put subtree: %v", err)
	}

	tree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "dir", Mode: object.ModeDir, Hash: sub, IsDir: true},
		{Name: "link", Mode: object.ModeSymlink, Hash: blob},
		{Name: "run.sh", Mode: object.ModeExecutable, Hash: blob},
		{Name: "vendor", Mode: object.ModeGitlink, Hash: object.Hash(strings.Repeat("9", 40))},
		{Name: "x.txt", Mode: object.ModeFile, Hash: blob},
	}}
	h, err := s.Put(tree)
	if err != nil {
		t.Fatalf("Put tree: %v", err)
	}

	got, err := object.GetTree(s, h)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(got.Entries) != len(tree.Entries) {
		t.Fatalf("entries: got %d, want %d", len(got.Entries), len(tree.Entries))
	}
	for i, e := range got.Entries {
		want := tree.Entries[i]
		if e.Name != want.Name || e.Mode != want.Mode || e.Hash != want.Hash {
			t.Errorf("entry %d: got %+v, want %+v", i, e, want)
		}
	}
	if !got.Entries[0].IsDir {
		t.Error("dir entry lost IsDir")
	}
}

func TestCommitRoundTrip(t *testing.T) {
	s := tempStore(t)
	tree, err := s.Put(&object.Tree{})
	if err != nil {
		t.Fatalf("Put tree: %v", err)
	}

	c := &object.Commit{
		TreeHash:   tree,
		Author:     "Ann Example <ann@example.com>",
		AuthorTime: 1700000000,
		AuthorTZ:   "+0230",
		Committer:  "Bob Example <bob@example.com>",
		CommitTime: 1700000100,
		CommitTZ:   "-0700",
		Signature:  "-----BEGIN PGP SIGNATURE-----\nabc\n-----END PGP SIGNATURE-----\n",
		Message:    "initial\n\nbody line\n",
	}
	h, err := s.Put(c)
	if err != nil {
		t.Fatalf("Put commit: %v", err)
	}

	got, err := object.GetCommit(s, h)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if got.TreeHash != tree {
		t.Errorf("tree: got %s, want %s", got.TreeHash, tree)
	}
	if got.Author != c.Author || got.AuthorTime != c.AuthorTime || got.AuthorTZ != c.AuthorTZ {
		t.Errorf("author: got %s %d %s, want %s %d %s",
			got.Author, got.AuthorTime, got.AuthorTZ, c.Author, c.AuthorTime, c.AuthorTZ)
	}
	if got.Committer != c.Committer || got.CommitTime != c.CommitTime || got.CommitTZ != c.CommitTZ {
		t.Errorf("committer round-trip mismatch: %+v", got)
	}
	if got.Signature != c.Signature {
		t.Errorf("signature: got %q, want %q", got.Signature, c.Signature)
	}
	if got.Message != c.Message {
		t.Errorf("message: got %q, want %q", got.Message, c.Message)
	}
}

func TestTagRoundTrip(t *testing.T) {
	s := tempStore(t)
	tree, err := s.Put(&object.Tree{})
	if err != nil {
		t.Fatalf("Put tree: %v", err)
	}
	commit, err := s.Put(&object.Commit{
		TreeHash:  tree,
		Author:    "Ann <a@e>",
		Committer: "Ann <a@e>",
		AuthorTZ:  "+0000", CommitTZ: "+0000",
		Message: "m\n",
	})
	if err != nil {
		t.Fatalf("Put commit: %v", err)
	}

	tag := &object.Tag{
		TargetHash: commit,
		TargetKind: object.KindCommit,
		Name:       "v1.0.0",
		Tagger:     "Rel Eng <rel@example.com>",
		TagTime:    1700000200,
		TagTZ:      "+0100",
		Message:    "release\n",
	}
	h, err := s.Put(tag)
	if err != nil {
		t.Fatalf("Put tag: %v", err)
	}

	got, err := object.GetTag(s, h)
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if got.TargetHash != commit || got.TargetKind != object.KindCommit {
		t.Errorf("target: got %s/%s, want %s/commit", got.TargetHash, got.TargetKind, commit)
	}
	if got.Name != tag.Name || got.Tagger != tag.Tagger || got.TagTZ != tag.TagTZ {
		t.Errorf("tag fields: got %+v, want %+v", got, tag)
	}
}

func TestHashOfWritesNothing(t *testing.T) {
	s := tempStore(t)
	b := &object.Blob{Data: []byte("phantom")}

	h, err := s.HashOf(b)
	if err != nil {
		t.Fatalf("HashOf: %v", err)
	}
	if s.Has(h) {
		t.Error("HashOf stored the object")
	}

	put, err := s.Put(b)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if put != h {
		t.Errorf("Put id %s differs from HashOf id %s", put, h)
	}
	if !s.Has(h) {
		t.Error("Put did not store the object")
	}
}

func TestGetMissingObject(t *testing.T) {
	s := tempStore(t)
	_, err := s.Get(object.Hash(strings.Repeat("a", 40)))
	if !errors.Is(err, object.ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestGetRejectsMalformedHash(t *testing.T) {
	s := tempStore(t)
	for _, bad := range []object.Hash{"", "zz", object.Hash(strings.Repeat("a", 39))} {
		if _, err := s.Get(bad); err == nil {
			t.Errorf("Get(%q): want error for malformed id", bad)
		}
	}
}

func TestBlobSizeKindMismatch(t *testing.T) {
	s := tempStore(t)
	tree, err := s.Put(&object.Tree{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err = s.BlobSize(tree)
	if err == nil || !strings.Contains(err.Error(), "kind mismatch") {
		t.Errorf("BlobSize on tree: got %v, want kind mismatch error", err)
	}
}

func TestSplitIdent(t *testing.T) {
	cases := []struct {
		in          string
		name, email string
	}{
		{"Ann Example <ann@example.com>", "Ann Example", "ann@example.com"},
		{"no-email", "no-email", ""},
		{"odd <in<ner> <real@example.com>", "odd <in<ner>", "real@example.com"},
	}
	for _, c := range cases {
		name, email := splitIdent(c.in)
		if name != c.name || email != c.email {
			t.Errorf("splitIdent(%q): got %q/%q, want %q/%q", c.in, name, email, c.name, c.email)
		}
	}
}

func TestTZZoneOffsets(t *testing.T) {
	cases := []struct {
		offset string
		secs   int
	}{
		{"+0000", 0},
		{"+0230", 2*3600 + 30*60},
		{"-0700", -7 * 3600},
		{"junk", 0},
	}
	for _, c := range cases {
		_, secs := gitSignature("x <x@x>", 0, c.offset).When.Zone()
		if secs != c.secs {
			t.Errorf("tzZone(%q): got %d seconds, want %d", c.offset, secs, c.secs)
		}
	}
}
