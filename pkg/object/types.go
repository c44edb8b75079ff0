package object

// Hash is a lowercase hex-encoded content digest. The native stores produce
// 64-character SHA-256 digests; adapter backends may produce other widths
// (the git adapter yields 40-character SHA-1). Core code treats Hash as
// opaque and never assumes a length.
type Hash string

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool { return h == "" }

// Short returns an abbreviated form for log and report output.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Kind identifies the kind of object stored.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindTree   Kind = "tree"
	KindCommit Kind = "commit"
	KindTag    Kind = "tag"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	ModeDir        = "40000"
	ModeFile       = "100644"
	ModeExecutable = "100755"
	ModeSymlink    = "120000"
	// ModeGitlink marks a submodule entry. Its hash names a commit in some
	// other repository, so it is neither a blob nor a subtree here.
	ModeGitlink = "160000"
)

// Object is any content-addressed object. Implementations are *Blob, *Tree,
// *Commit and *Tag.
type Object interface {
	Kind() Kind
}

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

func (*Blob) Kind() Kind { return KindBlob }

// TreeEntry is one entry in a tree object. IsDir entries reference a subtree,
// all others reference a blob.
type TreeEntry struct {
	Name  string
	Mode  string
	Hash  Hash
	IsDir bool
}

// Tree holds a list of tree entries, sorted by Name when serialized.
type Tree struct {
	Entries []TreeEntry
}

func (*Tree) Kind() Kind { return KindTree }

// Commit is a snapshot referencing one tree and zero or more parent commits.
// Author and Committer carry the conventional "Name <email>" form; the
// timezone fields hold numeric offsets such as "+0200" so a rewrite can
// reproduce the original header byte-for-byte.
type Commit struct {
	TreeHash   Hash
	Parents    []Hash
	Author     string
	AuthorTime int64
	AuthorTZ   string
	Committer  string
	CommitTime int64
	CommitTZ   string
	Signature  string
	Message    string
}

func (*Commit) Kind() Kind { return KindCommit }

// NumParents returns the number of parent commits.
func (c *Commit) NumParents() int { return len(c.Parents) }

// Tag is an annotated tag object pointing at another object.
type Tag struct {
	TargetHash Hash
	TargetKind Kind
	Name       string
	Tagger     string
	TagTime    int64
	TagTZ      string
	Message    string
}

func (*Tag) Kind() Kind { return KindTag }
