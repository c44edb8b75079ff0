package object

import "fmt"

// Store is read/write access to content-addressed objects by id.
//
// Put computes the id from the object's content and deduplicates when the
// object is already present. HashOf returns the id Put would assign without
// mutating anything, which is what dry-run passes derive new graphs from.
type Store interface {
	Get(h Hash) (Object, error)
	Put(o Object) (Hash, error)
	HashOf(o Object) (Hash, error)
	Has(h Hash) bool
	// BlobSize returns the byte length of the blob with the given id,
	// reading as little of the content as the backend allows.
	BlobSize(h Hash) (int64, error)
}

// RefUpdate is one compare-and-swap in a reference transaction. Old == ""
// asserts the ref must not exist; New == "" deletes the ref.
type RefUpdate struct {
	Name string
	Old  Hash
	New  Hash
	// Reason is recorded in the reflog by backends that keep one.
	Reason string
}

// RefStore is access to the mutable named pointers of a repository.
//
// UpdateRefs applies a set of compare-and-swaps as one transaction: every
// precondition is checked before anything is written, and a single mismatch
// aborts the whole batch with a *RefConflictError naming the offending ref.
type RefStore interface {
	Refs() (map[string]Hash, error)
	UpdateRef(name string, old, new Hash) error
	DeleteRef(name string, old Hash) error
	UpdateRefs(updates []RefUpdate) error
}

// Repository combines object and reference access for one store.
type Repository interface {
	Store
	RefStore
}

// Sweeper is the optional capability a store needs for physical garbage
// collection. Backends that delegate reclamation elsewhere (the git adapter
// leaves it to git gc) simply do not implement it.
type Sweeper interface {
	ForEachObject(fn func(Hash) error) error
	DeleteObject(h Hash) error
}

// ---------------------------------------------------------------------------
// Typed accessors
// ---------------------------------------------------------------------------

// GetBlob reads the object at h and asserts it is a blob.
func GetBlob(s Store, h Hash) (*Blob, error) {
	o, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	b, ok := o.(*Blob)
	if !ok {
		return nil, kindMismatch(h, o.Kind(), KindBlob)
	}
	return b, nil
}

// GetTree reads the object at h and asserts it is a tree.
func GetTree(s Store, h Hash) (*Tree, error) {
	o, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	t, ok := o.(*Tree)
	if !ok {
		return nil, kindMismatch(h, o.Kind(), KindTree)
	}
	return t, nil
}

// GetCommit reads the object at h and asserts it is a commit.
func GetCommit(s Store, h Hash) (*Commit, error) {
	o, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	c, ok := o.(*Commit)
	if !ok {
		return nil, kindMismatch(h, o.Kind(), KindCommit)
	}
	return c, nil
}

// GetTag reads the object at h and asserts it is a tag.
func GetTag(s Store, h Hash) (*Tag, error) {
	o, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	t, ok := o.(*Tag)
	if !ok {
		return nil, kindMismatch(h, o.Kind(), KindTag)
	}
	return t, nil
}

func kindMismatch(h Hash, got, want Kind) error {
	return fmt.Errorf("object %s: kind mismatch: got %q, want %q", h, got, want)
}
