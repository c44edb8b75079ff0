package rewrite

import (
	"context"
	"errors"
	"fmt"

	"github.com/repotrim/repotrim/pkg/object"
)

// Code classifies the outcome of a rewrite pass.
type Code int

const (
	Success Code = iota
	SuccessDryRun
	ConflictAborted
	PolicyInvalid
	StoreUnavailable
	Aborted
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case SuccessDryRun:
		return "success (dry-run)"
	case ConflictAborted:
		return "conflict aborted"
	case PolicyInvalid:
		return "policy invalid"
	case StoreUnavailable:
		return "store unavailable"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Options configures one rewrite pass.
type Options struct {
	// Policy decides which blobs are stripped. Required.
	Policy *SizePolicy
	// DryRun computes the full report without writing a single object or
	// touching a ref.
	DryRun bool
	// Workers bounds how many independent commits rewrite concurrently.
	// Zero or one means sequential.
	Workers int
	// Signer re-signs rewritten commits that carried a signature. When nil
	// their stale signatures are dropped.
	Signer SignFunc
	// Force overwrites backup refs left behind by an earlier pass instead
	// of aborting with ErrBackupExists.
	Force bool
}

// Run executes a rewrite pass against the repository and reports what
// happened. The pass only adds objects; refs move atomically at the very
// end, or not at all. Any error before the ref transaction leaves the ref
// set exactly as it was.
func Run(ctx context.Context, repo object.Repository, opts Options) (*Result, error) {
	res := &Result{DryRun: opts.DryRun}

	if err := opts.Policy.Validate(); err != nil {
		res.Code = PolicyInvalid
		return res, err
	}

	refs, err := repo.Refs()
	if err != nil {
		res.Code = StoreUnavailable
		return res, fmt.Errorf("list refs: %w", err)
	}
	live := liveRefs(refs)

	roots := make([]object.Hash, 0, len(live))
	for _, h := range live {
		roots = append(roots, h)
	}

	table := NewTable()
	filter := NewFilter(opts.Policy, repo)
	write := repo.Put
	if opts.DryRun {
		write = repo.HashOf
	}
	w := newWalker(repo, filter, table, write, opts.Signer, opts.Workers)

	logger.Info("starting rewrite pass",
		"refs", len(live),
		"max_blob_size", opts.Policy.MaxBlobSize,
		"dry_run", opts.DryRun,
		"workers", w.workers)

	if err := w.run(ctx, roots); err != nil {
		res.Code = walkFailureCode(err)
		return res, err
	}

	// Dry-run tolerates occupied backup slots: it reports what a forced
	// pass would do rather than refusing to report at all.
	updates, moved, err := planRefUpdates(live, refs, table, opts.Force || opts.DryRun)
	if err != nil {
		res.fillFromTable(table, filter, nil)
		res.Code = ConflictAborted
		var backup *BackupExistsError
		if errors.As(err, &backup) {
			res.ConflictRef = backup.Ref
		}
		return res, err
	}
	res.fillFromTable(table, filter, moved)

	if opts.DryRun {
		res.Code = SuccessDryRun
		logger.Info("dry-run complete",
			"commits_rewritten", res.RewrittenCommits,
			"blobs_stripped", res.StrippedBlobs,
			"refs_affected", len(res.MovedRefs))
		return res, nil
	}

	if len(updates) > 0 {
		if err := repo.UpdateRefs(updates); err != nil {
			var conflict *object.RefConflictError
			if errors.As(err, &conflict) {
				res.Code = ConflictAborted
				res.ConflictRef = conflict.Ref
				return res, err
			}
			res.Code = StoreUnavailable
			return res, err
		}
	}

	res.Code = Success
	logger.Info("rewrite complete",
		"commits_rewritten", res.RewrittenCommits,
		"blobs_stripped", res.StrippedBlobs,
		"bytes_reclaimed", res.BytesReclaimed,
		"refs_moved", len(res.MovedRefs))
	return res, nil
}

// walkFailureCode separates a cancelled or internally-failed walk from
// genuine store trouble. Only the latter is StoreUnavailable.
func walkFailureCode(err error) Code {
	var conflict *TableConflictError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Aborted
	case errors.As(err, &conflict):
		return Aborted
	default:
		return StoreUnavailable
	}
}
