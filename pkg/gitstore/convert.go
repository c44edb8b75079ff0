package gitstore

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	gitobject "github.com/go-git/go-git/v5/plumbing/object"

	"github.com/repotrim/repotrim/pkg/object"
)

// decodeHash parses a 40-character hex id into a plumbing hash. Unlike
// plumbing.NewHash it rejects malformed and short input instead of silently
// producing a zero-padded hash.
func decodeHash(h object.Hash) (plumbing.Hash, error) {
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("object id %q: %w", h, err)
	}
	if len(raw) != len(plumbing.ZeroHash) {
		return plumbing.ZeroHash, fmt.Errorf("object id %q: need %d bytes, have %d",
			h, len(plumbing.ZeroHash), len(raw))
	}
	var ph plumbing.Hash
	copy(ph[:], raw)
	return ph, nil
}

func hashString(ph plumbing.Hash) object.Hash {
	return object.Hash(ph.String())
}

func decodeHashes(hs []object.Hash) ([]plumbing.Hash, error) {
	if len(hs) == 0 {
		return nil, nil
	}
	out := make([]plumbing.Hash, 0, len(hs))
	for _, h := range hs {
		ph, err := decodeHash(h)
		if err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, nil
}

func kindOf(t plumbing.ObjectType) (object.Kind, error) {
	switch t {
	case plumbing.BlobObject:
		return object.KindBlob, nil
	case plumbing.TreeObject:
		return object.KindTree, nil
	case plumbing.CommitObject:
		return object.KindCommit, nil
	case plumbing.TagObject:
		return object.KindTag, nil
	}
	return "", fmt.Errorf("unsupported git object type %s", t)
}

func typeOf(k object.Kind) (plumbing.ObjectType, error) {
	switch k {
	case object.KindBlob:
		return plumbing.BlobObject, nil
	case object.KindTree:
		return plumbing.TreeObject, nil
	case object.KindCommit:
		return plumbing.CommitObject, nil
	case object.KindTag:
		return plumbing.TagObject, nil
	}
	return plumbing.InvalidObject, fmt.Errorf("unsupported object kind %q", k)
}

func modeString(m filemode.FileMode) string {
	switch m {
	case filemode.Dir:
		return object.ModeDir
	case filemode.Regular, filemode.Deprecated:
		return object.ModeFile
	case filemode.Executable:
		return object.ModeExecutable
	case filemode.Symlink:
		return object.ModeSymlink
	case filemode.Submodule:
		return object.ModeGitlink
	}
	return object.ModeFile
}

func entryFileMode(mode string) (filemode.FileMode, error) {
	switch mode {
	case object.ModeDir:
		return filemode.Dir, nil
	case object.ModeFile:
		return filemode.Regular, nil
	case object.ModeExecutable:
		return filemode.Executable, nil
	case object.ModeSymlink:
		return filemode.Symlink, nil
	case object.ModeGitlink:
		return filemode.Submodule, nil
	}
	return filemode.Empty, fmt.Errorf("unsupported tree entry mode %q", mode)
}

// identString flattens a git signature to the "Name <email>" form the core
// model carries.
func identString(s gitobject.Signature) string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

func splitIdent(ident string) (name, email string) {
	if i := strings.LastIndex(ident, " <"); i >= 0 && strings.HasSuffix(ident, ">") {
		return ident[:i], ident[i+2 : len(ident)-1]
	}
	return ident, ""
}

// tzZone converts a numeric offset such as "+0200" into a fixed location so
// re-encoding a signature reproduces the original timestamp bytes.
func tzZone(offset string) *time.Location {
	if len(offset) != 5 {
		return time.UTC
	}
	sign := 1
	switch offset[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return time.UTC
	}
	hh, err := strconv.Atoi(offset[1:3])
	if err != nil {
		return time.UTC
	}
	mm, err := strconv.Atoi(offset[3:5])
	if err != nil {
		return time.UTC
	}
	return time.FixedZone("", sign*(hh*3600+mm*60))
}

func gitSignature(ident string, unix int64, tz string) gitobject.Signature {
	name, email := splitIdent(ident)
	return gitobject.Signature{
		Name:  name,
		Email: email,
		When:  time.Unix(unix, 0).In(tzZone(tz)),
	}
}

// ---------------------------------------------------------------------------
// go-git model -> core model
// ---------------------------------------------------------------------------

func treeFromGit(t *gitobject.Tree) *object.Tree {
	entries := make([]object.TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		entries = append(entries, object.TreeEntry{
			Name:  e.Name,
			Mode:  modeString(e.Mode),
			Hash:  hashString(e.Hash),
			IsDir: e.Mode == filemode.Dir,
		})
	}
	return &object.Tree{Entries: entries}
}

func commitFromGit(c *gitobject.Commit) *object.Commit {
	parents := make([]object.Hash, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, hashString(p))
	}
	return &object.Commit{
		TreeHash:   hashString(c.TreeHash),
		Parents:    parents,
		Author:     identString(c.Author),
		AuthorTime: c.Author.When.Unix(),
		AuthorTZ:   c.Author.When.Format("-0700"),
		Committer:  identString(c.Committer),
		CommitTime: c.Committer.When.Unix(),
		CommitTZ:   c.Committer.When.Format("-0700"),
		Signature:  c.PGPSignature,
		Message:    c.Message,
	}
}

func tagFromGit(t *gitobject.Tag) (*object.Tag, error) {
	kind, err := kindOf(t.TargetType)
	if err != nil {
		return nil, err
	}
	return &object.Tag{
		TargetHash: hashString(t.Target),
		TargetKind: kind,
		Name:       t.Name,
		Tagger:     identString(t.Tagger),
		TagTime:    t.Tagger.When.Unix(),
		TagTZ:      t.Tagger.When.Format("-0700"),
		Message:    t.Message,
	}, nil
}

// ---------------------------------------------------------------------------
// core model -> go-git model
// ---------------------------------------------------------------------------

// gitTree converts a core tree. Entries are written in the order given: the
// rewriter never reorders entries, so trees read from a git repository stay
// in git's canonical order all the way through.
func gitTree(t *object.Tree) (*gitobject.Tree, error) {
	entries := make([]gitobject.TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		mode, err := entryFileMode(e.Mode)
		if err != nil {
			return nil, fmt.Errorf("tree entry %q: %w", e.Name, err)
		}
		ph, err := decodeHash(e.Hash)
		if err != nil {
			return nil, fmt.Errorf("tree entry %q: %w", e.Name, err)
		}
		entries = append(entries, gitobject.TreeEntry{Name: e.Name, Mode: mode, Hash: ph})
	}
	return &gitobject.Tree{Entries: entries}, nil
}

func gitCommit(c *object.Commit) (*gitobject.Commit, error) {
	tree, err := decodeHash(c.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("commit tree: %w", err)
	}
	parents, err := decodeHashes(c.Parents)
	if err != nil {
		return nil, fmt.Errorf("commit parent: %w", err)
	}
	return &gitobject.Commit{
		TreeHash:     tree,
		ParentHashes: parents,
		Author:       gitSignature(c.Author, c.AuthorTime, c.AuthorTZ),
		Committer:    gitSignature(c.Committer, c.CommitTime, c.CommitTZ),
		PGPSignature: c.Signature,
		Message:      c.Message,
	}, nil
}

func gitTag(t *object.Tag) (*gitobject.Tag, error) {
	target, err := decodeHash(t.TargetHash)
	if err != nil {
		return nil, fmt.Errorf("tag target: %w", err)
	}
	targetType, err := typeOf(t.TargetKind)
	if err != nil {
		return nil, err
	}
	return &gitobject.Tag{
		Name:       t.Name,
		Tagger:     gitSignature(t.Tagger, t.TagTime, t.TagTZ),
		Message:    t.Message,
		TargetType: targetType,
		Target:     target,
	}, nil
}
