package rewrite

import (
	"fmt"
	"sync"

	"github.com/repotrim/repotrim/pkg/object"
)

// Decision is the outcome of classifying one blob occurrence.
type Decision int

const (
	Keep Decision = iota
	Strip
)

func (d Decision) String() string {
	if d == Strip {
		return "strip"
	}
	return "keep"
}

// Filter classifies blobs against a SizePolicy. Classification is pure and
// memoized: per blob id for path-insensitive policies, per (id, path)
// otherwise, so the same occurrence always yields the same decision no
// matter how many trees share it. Safe for concurrent use.
type Filter struct {
	policy *SizePolicy
	store  object.Store

	mu        sync.Mutex
	sizes     map[object.Hash]int64
	decisions map[string]Decision
}

// NewFilter builds a Filter over a validated policy.
func NewFilter(policy *SizePolicy, store object.Store) *Filter {
	return &Filter{
		policy:    policy,
		store:     store,
		sizes:     make(map[object.Hash]int64),
		decisions: make(map[string]Decision),
	}
}

// Classify decides keep-or-strip for the blob id occurring at path, and
// returns the blob's size alongside.
func (f *Filter) Classify(h object.Hash, path string) (Decision, int64, error) {
	key := string(h)
	if f.policy.PathSensitive() {
		key = string(h) + "\x00" + path
	}

	f.mu.Lock()
	d, cached := f.decisions[key]
	f.mu.Unlock()

	size, err := f.blobSize(h)
	if err != nil {
		return Keep, 0, err
	}
	if cached {
		return d, size, nil
	}

	d = Keep
	if size > f.policy.MaxBlobSize && !f.policy.allows(path) {
		d = Strip
	}

	f.mu.Lock()
	f.decisions[key] = d
	f.mu.Unlock()
	return d, size, nil
}

func (f *Filter) blobSize(h object.Hash) (int64, error) {
	f.mu.Lock()
	size, ok := f.sizes[h]
	f.mu.Unlock()
	if ok {
		return size, nil
	}

	size, err := f.store.BlobSize(h)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.sizes[h] = size
	f.mu.Unlock()
	return size, nil
}

// Tombstone is the deterministic replacement for a stripped blob: a one-line
// note carrying the original id and size, or the empty blob when the note
// itself would not fit under max. The replacement is never strip-eligible,
// and determinism matters because the same stripped blob reached from
// different commits must map to the same replacement id.
func Tombstone(h object.Hash, size, max int64) *object.Blob {
	data := []byte(fmt.Sprintf("repotrim: stripped blob %s (%d bytes)\n", h, size))
	if int64(len(data)) > max {
		return &object.Blob{}
	}
	return &object.Blob{Data: data}
}
