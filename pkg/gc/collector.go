// Package gc reclaims storage after a rewrite has been confirmed: it expires
// the backup refs holding pre-rewrite history alive, clears the persisted id
// map, and sweeps every object no longer reachable from any ref.
//
// Nothing here runs implicitly. A collection must be explicitly confirmed,
// because expiring the backups is the moment the original history stops
// being recoverable.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/repotrim/repotrim/pkg/idmap"
	"github.com/repotrim/repotrim/pkg/object"
	"github.com/repotrim/repotrim/pkg/rewrite"
)

var (
	// ErrConfirmationRequired gates every run: collection without explicit
	// confirmation is rejected before anything is touched.
	ErrConfirmationRequired = errors.New("garbage collection requires explicit confirmation")

	// ErrSweepUnsupported is returned for stores that cannot enumerate and
	// delete their own objects. Such stores still get backup expiry via
	// RefsOnly; physical reclamation belongs to their native tooling.
	ErrSweepUnsupported = errors.New("store does not support object sweeping")
)

// Options configures one collection.
type Options struct {
	// Confirm must be true; there is no default-on destruction.
	Confirm bool
	// Force overrides a stale in-flight marker left by a crashed rewrite.
	Force bool
	// RefsOnly expires backups and clears the journal but skips the
	// mark-and-sweep, for stores whose reclamation happens elsewhere.
	RefsOnly bool
}

// Summary reports what one collection did.
type Summary struct {
	BackupRefsExpired     int
	JournalEntriesCleared int
	ObjectsScanned        int
	ObjectsDeleted        int
	BytesReclaimed        int64
	SweepSkipped          bool
}

// Collector wires a repository to an optional journal. The journal, when
// present, provides the in-flight check and is cleared alongside the backup
// refs it describes.
type Collector struct {
	Repo    object.Repository
	Journal *idmap.Journal
}

// Run performs one collection. It refuses without confirmation, refuses
// while a rewrite is in flight, and for sweep-capable stores deletes every
// object unreachable from the refs that remain after backup expiry.
// Running it twice with no intervening rewrite finds nothing to do.
func (c *Collector) Run(ctx context.Context, opts Options) (*Summary, error) {
	if !opts.Confirm {
		return nil, ErrConfirmationRequired
	}
	if c.Journal != nil {
		inFlight, err := c.Journal.InFlight()
		if err != nil {
			return nil, fmt.Errorf("gc: journal: %w", err)
		}
		if inFlight && !opts.Force {
			return nil, idmap.ErrRewriteInFlight
		}
	}
	sweeper, canSweep := c.Repo.(object.Sweeper)
	if !canSweep && !opts.RefsOnly {
		return nil, ErrSweepUnsupported
	}

	sum := &Summary{SweepSkipped: opts.RefsOnly}

	refs, err := c.Repo.Refs()
	if err != nil {
		return nil, fmt.Errorf("gc: list refs: %w", err)
	}

	expired, err := c.expireBackups(refs)
	if err != nil {
		return nil, err
	}
	sum.BackupRefsExpired = expired

	if c.Journal != nil {
		cleared, err := c.Journal.Clear()
		if err != nil {
			return nil, fmt.Errorf("gc: clear journal: %w", err)
		}
		sum.JournalEntriesCleared = cleared
	}

	if sum.SweepSkipped {
		logger.Info("backup refs expired, sweep skipped",
			"backups_expired", sum.BackupRefsExpired,
			"journal_cleared", sum.JournalEntriesCleared)
		return sum, nil
	}

	if err := c.sweep(ctx, sweeper, sum); err != nil {
		return nil, err
	}

	logger.Info("garbage collection complete",
		"backups_expired", sum.BackupRefsExpired,
		"objects_scanned", sum.ObjectsScanned,
		"objects_deleted", sum.ObjectsDeleted,
		"bytes_reclaimed", sum.BytesReclaimed)
	return sum, nil
}

// expireBackups deletes every ref in the backup namespace in one batch,
// each delete a compare-and-swap on the value just listed.
func (c *Collector) expireBackups(refs map[string]object.Hash) (int, error) {
	names := make([]string, 0)
	for name := range refs {
		if rewrite.IsBackupRef(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return 0, nil
	}
	sort.Strings(names)

	updates := make([]object.RefUpdate, 0, len(names))
	for _, name := range names {
		updates = append(updates, object.RefUpdate{
			Name:   name,
			Old:    refs[name],
			New:    "",
			Reason: "gc: expire backup",
		})
	}
	if err := c.Repo.UpdateRefs(updates); err != nil {
		return 0, fmt.Errorf("gc: expire backups: %w", err)
	}
	return len(names), nil
}

// sweep computes reachability from the surviving refs and deletes everything
// else. Bytes are counted for blobs only; tree and commit records are small
// enough that estimating them is not worth a full read.
func (c *Collector) sweep(ctx context.Context, sweeper object.Sweeper, sum *Summary) error {
	refs, err := c.Repo.Refs()
	if err != nil {
		return fmt.Errorf("gc: list refs for mark: %w", err)
	}
	roots := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		roots = append(roots, h)
	}

	reachable, err := object.ReachableSet(c.Repo, roots)
	if err != nil {
		return fmt.Errorf("gc: mark: %w", err)
	}

	err = sweeper.ForEachObject(func(h object.Hash) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sum.ObjectsScanned++
		if _, live := reachable[h]; live {
			return nil
		}
		if size, err := c.Repo.BlobSize(h); err == nil {
			sum.BytesReclaimed += size
		}
		if err := sweeper.DeleteObject(h); err != nil {
			return err
		}
		sum.ObjectsDeleted++
		logger.Debug("swept unreachable object", "hash", h.Short())
		return nil
	})
	if err != nil {
		return fmt.Errorf("gc: sweep: %w", err)
	}
	return nil
}
