package object

import (
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Repository used by tests and ephemeral rewrites.
// It is safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	objects map[Hash]memObject
	refs    map[string]Hash
}

type memObject struct {
	kind Kind
	data []byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[Hash]memObject),
		refs:    make(map[string]Hash),
	}
}

// Get retrieves and decodes an object by id.
func (s *MemStore) Get(h Hash) (Object, error) {
	s.mu.RLock()
	mo, ok := s.objects[h]
	s.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Hash: h}
	}
	o, err := Unmarshal(mo.kind, mo.data)
	if err != nil {
		return nil, &CorruptError{Hash: h, Reason: "decode", Err: err}
	}
	return o, nil
}

// Put stores an object, deduplicating by content id.
func (s *MemStore) Put(o Object) (Hash, error) {
	data, err := Marshal(o)
	if err != nil {
		return "", err
	}
	h := HashObject(o.Kind(), data)

	s.mu.Lock()
	if _, ok := s.objects[h]; !ok {
		s.objects[h] = memObject{kind: o.Kind(), data: data}
	}
	s.mu.Unlock()
	return h, nil
}

// HashOf returns the id Put would assign without storing anything.
func (s *MemStore) HashOf(o Object) (Hash, error) {
	return NativeHashOf(o)
}

// Has reports whether the store contains an object with the given id.
func (s *MemStore) Has(h Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[h]
	return ok
}

// BlobSize returns the byte length of a stored blob.
func (s *MemStore) BlobSize(h Hash) (int64, error) {
	s.mu.RLock()
	mo, ok := s.objects[h]
	s.mu.RUnlock()
	if !ok {
		return 0, &NotFoundError{Hash: h}
	}
	if mo.kind != KindBlob {
		return 0, kindMismatch(h, mo.kind, KindBlob)
	}
	return int64(len(mo.data)), nil
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ---------------------------------------------------------------------------
// Refs
// ---------------------------------------------------------------------------

// Refs returns a copy of the current ref set.
func (s *MemStore) Refs() (map[string]Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Hash, len(s.refs))
	for name, h := range s.refs {
		out[name] = h
	}
	return out, nil
}

// UpdateRef applies a single compare-and-swap.
func (s *MemStore) UpdateRef(name string, old, new Hash) error {
	return s.UpdateRefs([]RefUpdate{{Name: name, Old: old, New: new}})
}

// DeleteRef removes a ref after a compare-and-swap on its current value.
func (s *MemStore) DeleteRef(name string, old Hash) error {
	return s.UpdateRefs([]RefUpdate{{Name: name, Old: old, New: ""}})
}

// UpdateRefs applies the batch under one lock: every precondition is checked
// before the first write, so a conflict leaves the ref set untouched.
func (s *MemStore) UpdateRefs(updates []RefUpdate) error {
	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		if seen[u.Name] {
			return fmt.Errorf("update refs: duplicate ref %q in batch", u.Name)
		}
		seen[u.Name] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		if found := s.refs[u.Name]; found != u.Old {
			return &RefConflictError{Ref: u.Name, Want: u.Old, Found: found}
		}
	}
	for _, u := range updates {
		if u.New == "" {
			delete(s.refs, u.Name)
			continue
		}
		s.refs[u.Name] = u.New
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sweeper
// ---------------------------------------------------------------------------

// ForEachObject calls fn for every stored object id in sorted order.
func (s *MemStore) ForEachObject(fn func(Hash) error) error {
	s.mu.RLock()
	hashes := make([]Hash, 0, len(s.objects))
	for h := range s.objects {
		hashes = append(hashes, h)
	}
	s.mu.RUnlock()

	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	for _, h := range hashes {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

// DeleteObject removes an object from the store.
func (s *MemStore) DeleteObject(h Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, h)
	return nil
}
