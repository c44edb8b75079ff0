package gitstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"

	"github.com/repotrim/repotrim/pkg/object"
)

// Refs lists the hash-valued references under refs/. HEAD and other symbolic
// references are not part of the rewriteable surface and are skipped.
func (s *Store) Refs() (map[string]object.Hash, error) {
	iter, err := s.storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("iterate refs: %w", err)
	}
	defer iter.Close()

	out := make(map[string]object.Hash)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := string(ref.Name())
		if !strings.HasPrefix(name, "refs/") {
			return nil
		}
		out[name] = hashString(ref.Hash())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate refs: %w", err)
	}
	return out, nil
}

// UpdateRef applies a single compare-and-swap.
func (s *Store) UpdateRef(name string, old, new object.Hash) error {
	return s.UpdateRefs([]object.RefUpdate{{Name: name, Old: old, New: new}})
}

// DeleteRef removes a ref after a compare-and-swap on its current value.
func (s *Store) DeleteRef(name string, old object.Hash) error {
	return s.UpdateRefs([]object.RefUpdate{{Name: name, Old: old, New: ""}})
}

// UpdateRefs checks every precondition against the repository before writing
// anything, then applies the batch. A precondition mismatch aborts with a
// *object.RefConflictError and no writes. If a write fails partway, the
// already-applied updates are rolled back to their prior values on a best
// effort basis; go-git storage has no multi-ref lock, so a concurrent writer
// can still slip between check and apply.
func (s *Store) UpdateRefs(updates []object.RefUpdate) error {
	prior := make(map[string]*plumbing.Reference, len(updates))
	for _, u := range updates {
		ref, err := s.storer.Reference(plumbing.ReferenceName(u.Name))
		switch {
		case err == nil:
			if ref.Type() != plumbing.HashReference {
				return fmt.Errorf("ref %s: cannot update a symbolic reference", u.Name)
			}
			if found := hashString(ref.Hash()); found != u.Old {
				return &object.RefConflictError{Ref: u.Name, Want: u.Old, Found: found}
			}
			prior[u.Name] = ref
		case errors.Is(err, plumbing.ErrReferenceNotFound):
			if !u.Old.IsZero() {
				return &object.RefConflictError{Ref: u.Name, Want: u.Old, Found: ""}
			}
		default:
			return fmt.Errorf("read ref %s: %w", u.Name, err)
		}
	}

	applied := make([]object.RefUpdate, 0, len(updates))
	for _, u := range updates {
		if err := s.applyRefUpdate(u, prior[u.Name]); err != nil {
			s.rollbackRefUpdates(applied, prior)
			return err
		}
		applied = append(applied, u)
	}
	return nil
}

func (s *Store) applyRefUpdate(u object.RefUpdate, prior *plumbing.Reference) error {
	name := plumbing.ReferenceName(u.Name)
	if u.New.IsZero() {
		if prior == nil {
			return nil
		}
		if err := s.storer.RemoveReference(name); err != nil {
			return fmt.Errorf("delete ref %s: %w", u.Name, err)
		}
		return nil
	}

	ph, err := decodeHash(u.New)
	if err != nil {
		return fmt.Errorf("ref %s: %w", u.Name, err)
	}
	err = s.storer.CheckAndSetReference(plumbing.NewHashReference(name, ph), prior)
	if err != nil {
		if errors.Is(err, storage.ErrReferenceHasChanged) {
			found := object.Hash("")
			if ref, rerr := s.storer.Reference(name); rerr == nil && ref.Type() == plumbing.HashReference {
				found = hashString(ref.Hash())
			}
			return &object.RefConflictError{Ref: u.Name, Want: u.Old, Found: found}
		}
		return fmt.Errorf("set ref %s: %w", u.Name, err)
	}
	return nil
}

func (s *Store) rollbackRefUpdates(applied []object.RefUpdate, prior map[string]*plumbing.Reference) {
	for i := len(applied) - 1; i >= 0; i-- {
		u := applied[i]
		name := plumbing.ReferenceName(u.Name)
		var err error
		if prev := prior[u.Name]; prev != nil {
			err = s.storer.SetReference(prev)
		} else {
			err = s.storer.RemoveReference(name)
		}
		if err != nil {
			logger.Warn("ref rollback failed", "ref", u.Name, "err", err)
		}
	}
}
