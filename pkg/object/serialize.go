package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Marshal serializes any object to its canonical byte form.
func Marshal(o Object) ([]byte, error) {
	switch v := o.(type) {
	case *Blob:
		return MarshalBlob(v), nil
	case *Tree:
		return MarshalTree(v), nil
	case *Commit:
		return MarshalCommit(v), nil
	case *Tag:
		return MarshalTag(v), nil
	default:
		return nil, fmt.Errorf("marshal: unsupported object %T", o)
	}
}

// Unmarshal parses an object of the given kind from its serialized form.
func Unmarshal(kind Kind, data []byte) (Object, error) {
	switch kind {
	case KindBlob:
		return UnmarshalBlob(data)
	case KindTree:
		return UnmarshalTree(data)
	case KindCommit:
		return UnmarshalCommit(data)
	case KindTag:
		return UnmarshalTag(data)
	default:
		return nil, fmt.Errorf("unmarshal: unsupported kind %q", kind)
	}
}

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// MarshalTree serializes a Tree. Entries are sorted by Name for deterministic
// output. Each entry is one line:
//
//	mode hash name
//
// where mode is a Git-compatible mode string (40000 marks a subtree). The
// name comes last so names containing spaces survive the round trip.
func MarshalTree(tr *Tree) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s %s\n", treeModeOrDefault(e), e.Hash, e.Name)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a Tree from its serialized form.
func UnmarshalTree(data []byte) (*Tree, error) {
	tr := &Tree{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		isDir, mode, err := parseTreeMode(parts[0])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Name:  parts[2],
			Mode:  mode,
			Hash:  Hash(parts[1]),
			IsDir: isDir,
		})
	}
	return tr, nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.IsDir {
		return ModeDir
	}
	if strings.TrimSpace(e.Mode) == "" {
		return ModeFile
	}
	return e.Mode
}

func parseTreeMode(mode string) (bool, string, error) {
	switch mode {
	case ModeDir:
		return true, ModeDir, nil
	case ModeFile:
		return false, ModeFile, nil
	case ModeExecutable:
		return false, ModeExecutable, nil
	case ModeSymlink:
		return false, ModeSymlink, nil
	case ModeGitlink:
		return false, ModeGitlink, nil
	default:
		return false, "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// MarshalCommit serializes a Commit:
//
//	tree H
//	parent H      (zero or more)
//	author A
//	authortime T
//	authortz Z    (omitted when empty)
//	committer C
//	committime T
//	committz Z    (omitted when empty)
//	signature S   (omitted when empty; single line)
//
//	message
//
// Every identity-bearing field is part of the serialized form, so any change
// to tree, parents or metadata yields a different id.
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "authortime %d\n", c.AuthorTime)
	if c.AuthorTZ != "" {
		fmt.Fprintf(&buf, "authortz %s\n", c.AuthorTZ)
	}
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	fmt.Fprintf(&buf, "committime %d\n", c.CommitTime)
	if c.CommitTZ != "" {
		fmt.Fprintf(&buf, "committz %s\n", c.CommitTZ)
	}
	if strings.TrimSpace(c.Signature) != "" {
		fmt.Fprintf(&buf, "signature %s\n", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a Commit from its serialized form.
func UnmarshalCommit(data []byte) (*Commit, error) {
	header, message, err := splitHeader(data, "commit")
	if err != nil {
		return nil, err
	}

	c := &Commit{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = val
		case "authortime":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad authortime %q: %w", val, err)
			}
			c.AuthorTime = ts
		case "authortz":
			c.AuthorTZ = val
		case "committer":
			c.Committer = val
		case "committime":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad committime %q: %w", val, err)
			}
			c.CommitTime = ts
		case "committz":
			c.CommitTZ = val
		case "signature":
			c.Signature = val
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}

// CommitSigningPayload returns the canonical bytes that are signed for a
// commit. The payload intentionally excludes the signature field itself.
func CommitSigningPayload(c *Commit) []byte {
	if c == nil {
		return nil
	}
	copyCommit := *c
	copyCommit.Signature = ""
	return MarshalCommit(&copyCommit)
}

// ---------------------------------------------------------------------------
// Tag
// ---------------------------------------------------------------------------

// MarshalTag serializes a Tag:
//
//	object H
//	type K
//	tag NAME
//	tagger T
//	tagtime T
//	tagtz Z       (omitted when empty)
//
//	message
func MarshalTag(t *Tag) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.TargetHash)
	fmt.Fprintf(&buf, "type %s\n", t.TargetKind)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", t.Tagger)
	fmt.Fprintf(&buf, "tagtime %d\n", t.TagTime)
	if t.TagTZ != "" {
		fmt.Fprintf(&buf, "tagtz %s\n", t.TagTZ)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses a Tag from its serialized form.
func UnmarshalTag(data []byte) (*Tag, error) {
	header, message, err := splitHeader(data, "tag")
	if err != nil {
		return nil, err
	}

	t := &Tag{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal tag: malformed header line %q", line)
		}
		switch key {
		case "object":
			t.TargetHash = Hash(val)
		case "type":
			t.TargetKind = Kind(val)
		case "tag":
			t.Name = val
		case "tagger":
			t.Tagger = val
		case "tagtime":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal tag: bad tagtime %q: %w", val, err)
			}
			t.TagTime = ts
		case "tagtz":
			t.TagTZ = val
		default:
			return nil, fmt.Errorf("unmarshal tag: unknown header key %q", key)
		}
	}
	return t, nil
}

func splitHeader(data []byte, what string) (header, body string, err error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return "", "", fmt.Errorf("unmarshal %s: missing header/message separator", what)
	}
	return string(data[:idx]), string(data[idx+2:]), nil
}
