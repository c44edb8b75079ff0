// Package gitstore adapts an existing git repository to the core object and
// reference interfaces, so histories can be rewritten in place without an
// import/export step.
//
// Object ids on this backend are git's own 40-character SHA-1 names, produced
// by encoding through go-git. The adapter deliberately does not implement
// sweeping: once a rewrite is confirmed and the backup refs are expired,
// reclaiming pack space is git gc's job.
package gitstore

import (
	"errors"
	"fmt"
	"io"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gitobject "github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/repotrim/repotrim/pkg/object"
)

// Storer is the slice of go-git storage the adapter needs. Both
// *memory.Storage and the filesystem storage behind git.PlainOpen satisfy it.
type Storer interface {
	storer.EncodedObjectStorer
	storer.ReferenceStorer
}

// Store adapts a go-git storer to object.Repository.
type Store struct {
	storer Storer
}

var _ object.Repository = (*Store)(nil)

// New wraps an already-open go-git storer.
func New(s Storer) *Store {
	return &Store{storer: s}
}

// Open opens the git repository at or above path, the way the git CLI finds
// its .git directory from inside a working tree.
func Open(path string) (*Store, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", path, err)
	}
	return New(repo.Storer), nil
}

// Get reads and decodes the object named h.
func (s *Store) Get(h object.Hash) (object.Object, error) {
	ph, err := decodeHash(h)
	if err != nil {
		return nil, err
	}
	eo, err := s.storer.EncodedObject(plumbing.AnyObject, ph)
	if err != nil {
		return nil, wrapNotFound(h, err)
	}

	switch eo.Type() {
	case plumbing.BlobObject:
		return decodeBlob(h, eo)
	case plumbing.TreeObject:
		var t gitobject.Tree
		if err := t.Decode(eo); err != nil {
			return nil, &object.CorruptError{Hash: h, Reason: "decode tree", Err: err}
		}
		return treeFromGit(&t), nil
	case plumbing.CommitObject:
		var c gitobject.Commit
		if err := c.Decode(eo); err != nil {
			return nil, &object.CorruptError{Hash: h, Reason: "decode commit", Err: err}
		}
		return commitFromGit(&c), nil
	case plumbing.TagObject:
		var t gitobject.Tag
		if err := t.Decode(eo); err != nil {
			return nil, &object.CorruptError{Hash: h, Reason: "decode tag", Err: err}
		}
		tag, err := tagFromGit(&t)
		if err != nil {
			return nil, &object.CorruptError{Hash: h, Reason: "decode tag", Err: err}
		}
		return tag, nil
	}
	return nil, &object.CorruptError{Hash: h, Reason: fmt.Sprintf("unsupported object type %s", eo.Type())}
}

func decodeBlob(h object.Hash, eo plumbing.EncodedObject) (*object.Blob, error) {
	var b gitobject.Blob
	if err := b.Decode(eo); err != nil {
		return nil, &object.CorruptError{Hash: h, Reason: "decode blob", Err: err}
	}
	r, err := b.Reader()
	if err != nil {
		return nil, &object.CorruptError{Hash: h, Reason: "open blob content", Err: err}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &object.CorruptError{Hash: h, Reason: "read blob content", Err: err}
	}
	return &object.Blob{Data: data}, nil
}

// Put encodes and stores an object, returning its git name. Storing an
// object that already exists is a no-op with the same id.
func (s *Store) Put(o object.Object) (object.Hash, error) {
	eo := s.storer.NewEncodedObject()
	if err := encodeInto(eo, o); err != nil {
		return "", err
	}
	ph, err := s.storer.SetEncodedObject(eo)
	if err != nil {
		return "", fmt.Errorf("store %s object: %w", o.Kind(), err)
	}
	return hashString(ph), nil
}

// HashOf computes the git name Put would assign without writing anything.
func (s *Store) HashOf(o object.Object) (object.Hash, error) {
	eo := &plumbing.MemoryObject{}
	if err := encodeInto(eo, o); err != nil {
		return "", err
	}
	return hashString(eo.Hash()), nil
}

// encodeInto serializes a core object into a go-git encoded object.
func encodeInto(eo plumbing.EncodedObject, o object.Object) error {
	switch v := o.(type) {
	case *object.Blob:
		eo.SetType(plumbing.BlobObject)
		eo.SetSize(int64(len(v.Data)))
		w, err := eo.Writer()
		if err != nil {
			return err
		}
		if _, err := w.Write(v.Data); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	case *object.Tree:
		t, err := gitTree(v)
		if err != nil {
			return err
		}
		return t.Encode(eo)
	case *object.Commit:
		c, err := gitCommit(v)
		if err != nil {
			return err
		}
		return c.Encode(eo)
	case *object.Tag:
		t, err := gitTag(v)
		if err != nil {
			return err
		}
		return t.Encode(eo)
	}
	return fmt.Errorf("unsupported object kind %q", o.Kind())
}

// Has reports whether the repository contains the object named h.
func (s *Store) Has(h object.Hash) bool {
	ph, err := decodeHash(h)
	if err != nil {
		return false
	}
	return s.storer.HasEncodedObject(ph) == nil
}

// BlobSize returns the content length of the blob named h without decoding
// its bytes into memory.
func (s *Store) BlobSize(h object.Hash) (int64, error) {
	ph, err := decodeHash(h)
	if err != nil {
		return 0, err
	}
	eo, err := s.storer.EncodedObject(plumbing.AnyObject, ph)
	if err != nil {
		return 0, wrapNotFound(h, err)
	}
	if eo.Type() != plumbing.BlobObject {
		kind, kerr := kindOf(eo.Type())
		if kerr != nil {
			kind = object.Kind(eo.Type().String())
		}
		return 0, fmt.Errorf("object %s: kind mismatch: got %q, want %q", h, kind, object.KindBlob)
	}
	return eo.Size(), nil
}

func wrapNotFound(h object.Hash, err error) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return &object.NotFoundError{Hash: h}
	}
	return err
}
