// Package idmap persists the old-id to new-id mapping of completed rewrite
// passes so translations remain queryable long after the pass finished, and
// carries the cross-process marker that keeps rewriters and the garbage
// collector from overlapping.
package idmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/repotrim/repotrim/pkg/object"
)

// ErrRewriteInFlight is returned when the journal carries an in-flight
// marker: a rewrite pass is running, or one crashed without finishing.
var ErrRewriteInFlight = errors.New("a rewrite pass is in flight (or crashed; use force to override)")

// openTimeout bounds how long Open waits for the journal's file lock held
// by another process.
const openTimeout = 3 * time.Second

var (
	bucketCommits = []byte("commits")
	bucketTrees   = []byte("trees")
	bucketBlobs   = []byte("blobs")
	bucketTags    = []byte("tags")
	bucketMeta    = []byte("meta")

	keyInFlight = []byte("rewrite_in_flight")
)

// mappingBuckets in lookup order: refs point at commits or tags, so those
// resolve first.
var mappingBuckets = [][]byte{bucketCommits, bucketTags, bucketTrees, bucketBlobs}

// Snapshot is one pass's worth of translations, keyed by object kind.
// Identity entries are skipped on record; only ids that actually changed
// are worth persisting.
type Snapshot struct {
	Commits map[object.Hash]object.Hash
	Trees   map[object.Hash]object.Hash
	Blobs   map[object.Hash]object.Hash
	Tags    map[object.Hash]object.Hash
}

// Journal is a bbolt-backed id translation log. The underlying database
// file is exclusively locked while open, which is what makes a rewrite and
// a garbage collection in different processes mutually exclusive.
type Journal struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the journal at path. It fails after a
// short timeout when another process holds the journal open.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("idmap: mkdir %q: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("idmap: open %q: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Close releases the journal and its file lock.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// BeginRewrite sets the in-flight marker. An existing marker means another
// pass is running or crashed; force claims it anyway.
func (j *Journal) BeginRewrite(force bool) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if b.Get(keyInFlight) != nil && !force {
			return ErrRewriteInFlight
		}
		return b.Put(keyInFlight, []byte(strconv.FormatInt(time.Now().Unix(), 10)))
	})
}

// EndRewrite clears the in-flight marker.
func (j *Journal) EndRewrite() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		return b.Delete(keyInFlight)
	})
}

// InFlight reports whether the in-flight marker is set.
func (j *Journal) InFlight() (bool, error) {
	var set bool
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		set = b != nil && b.Get(keyInFlight) != nil
		return nil
	})
	return set, err
}

// Record persists a pass's changed-id translations. Identity entries are
// dropped. Recording is additive across passes; a later pass mapping the
// same old id overwrites the earlier entry.
func (j *Journal) Record(s Snapshot) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		for _, part := range []struct {
			bucket  []byte
			entries map[object.Hash]object.Hash
		}{
			{bucketCommits, s.Commits},
			{bucketTrees, s.Trees},
			{bucketBlobs, s.Blobs},
			{bucketTags, s.Tags},
		} {
			if len(part.entries) == 0 {
				continue
			}
			b, err := tx.CreateBucketIfNotExists(part.bucket)
			if err != nil {
				return err
			}
			for old, new := range part.entries {
				if old == new {
					continue
				}
				if err := b.Put([]byte(old), []byte(new)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Lookup resolves an old id to its recorded replacement, reporting which
// kind of object it was. ok is false for ids no recorded pass ever changed.
func (j *Journal) Lookup(old object.Hash) (new object.Hash, kind object.Kind, ok bool, err error) {
	kinds := []object.Kind{object.KindCommit, object.KindTag, object.KindTree, object.KindBlob}
	err = j.db.View(func(tx *bbolt.Tx) error {
		for i, name := range mappingBuckets {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			if v := b.Get([]byte(old)); v != nil {
				new = object.Hash(v)
				kind = kinds[i]
				ok = true
				return nil
			}
		}
		return nil
	})
	return new, kind, ok, err
}

// Len returns the total number of recorded translations.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *bbolt.Tx) error {
		for _, name := range mappingBuckets {
			if b := tx.Bucket(name); b != nil {
				n += b.Stats().KeyN
			}
		}
		return nil
	})
	return n, err
}

// Clear drops every recorded translation and the in-flight marker. The
// garbage collector calls this when the backup refs are expired: once the
// old ids are unreachable the map is dead weight.
func (j *Journal) Clear() (int, error) {
	cleared := 0
	err := j.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range mappingBuckets {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			cleared += b.Stats().KeyN
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			return b.Delete(keyInFlight)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}
