package rewrite

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/repotrim/repotrim/pkg/object"
)

// SignFunc produces a signature over a commit's canonical signing payload.
// Rewritten commits that carried a signature are re-signed through it; when
// no signer is configured their stale signature is dropped instead.
type SignFunc func(payload []byte) (string, error)

// walker drives one rewrite pass. The same walker code path serves both the
// real rewrite and dry-run: the only difference is whether write stores
// objects or merely computes their would-be ids, which is what guarantees
// the dry-run report cannot drift from the real thing.
type walker struct {
	src     object.Store
	filter  *Filter
	table   *Table
	write   func(object.Object) (object.Hash, error)
	signer  SignFunc
	workers int

	total     int
	processed atomic.Int64

	mu       sync.Mutex
	treeMemo map[string]object.Hash
	tagMemo  map[object.Hash]object.Hash
}

func newWalker(src object.Store, f *Filter, t *Table, write func(object.Object) (object.Hash, error), signer SignFunc, workers int) *walker {
	if workers < 1 {
		workers = 1
	}
	return &walker{
		src:      src,
		filter:   f,
		table:    t,
		write:    write,
		signer:   signer,
		workers:  workers,
		treeMemo: make(map[string]object.Hash),
		tagMemo:  make(map[object.Hash]object.Hash),
	}
}

// run rewrites everything reachable from the given ref targets: commits in
// topological order first, then tags once every target has a mapping.
func (w *walker) run(ctx context.Context, roots []object.Hash) error {
	commits, tagRoots, err := w.collect(ctx, roots)
	if err != nil {
		return err
	}
	if err := w.rewriteCommits(ctx, commits); err != nil {
		return err
	}
	for _, h := range tagRoots {
		if _, err := w.rewriteTag(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// collect walks ref targets and gathers every reachable commit plus the tag
// objects that need re-deriving. Refs pinning trees or blobs directly have
// nothing to rewrite and are left alone.
func (w *walker) collect(ctx context.Context, roots []object.Hash) (map[object.Hash]*object.Commit, []object.Hash, error) {
	commits := make(map[object.Hash]*object.Commit)
	var tagRoots []object.Hash
	seenTags := make(map[object.Hash]bool)
	var frontier []object.Hash

	// Peel each root down to commits, recording tag chains on the way.
	var peel func(h object.Hash) error
	peel = func(h object.Hash) error {
		o, err := w.src.Get(h)
		if err != nil {
			return fmt.Errorf("resolve root %s: %w", h, err)
		}
		switch v := o.(type) {
		case *object.Commit:
			frontier = append(frontier, h)
		case *object.Tag:
			if seenTags[h] {
				return nil
			}
			seenTags[h] = true
			tagRoots = append(tagRoots, h)
			return peel(v.TargetHash)
		default:
			logger.Warn("ref target is neither commit nor tag, leaving untouched",
				"hash", h.Short(), "kind", o.Kind())
		}
		return nil
	}
	for _, r := range roots {
		if r.IsZero() {
			continue
		}
		if err := peel(r); err != nil {
			return nil, nil, err
		}
	}

	for len(frontier) > 0 {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		h := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if _, ok := commits[h]; ok {
			continue
		}
		c, err := object.GetCommit(w.src, h)
		if err != nil {
			return nil, nil, fmt.Errorf("load commit %s: %w", h, err)
		}
		commits[h] = c
		frontier = append(frontier, c.Parents...)
	}

	return commits, tagRoots, nil
}

// commitNode is one commit in the dependency graph during topological
// processing.
type commitNode struct {
	hash     object.Hash
	commit   *object.Commit
	indegree int
	children []*commitNode
}

// readyQueue orders dependency-free commits by commit time, then original
// id, so independent branches process in a reproducible order.
type readyQueue []*commitNode

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.commit.CommitTime != b.commit.CommitTime {
		return a.commit.CommitTime < b.commit.CommitTime
	}
	return a.hash < b.hash
}
func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*commitNode)) }
func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// rewriteCommits processes every collected commit oldest-first: a commit is
// rewritten only once all of its parents have a table entry. With one
// worker the order is fully sequential by ready-queue rank; with more, each
// wave of mutually independent commits runs concurrently.
func (w *walker) rewriteCommits(ctx context.Context, commits map[object.Hash]*object.Commit) error {
	nodes := make(map[object.Hash]*commitNode, len(commits))
	for h, c := range commits {
		nodes[h] = &commitNode{hash: h, commit: c}
	}
	for _, n := range nodes {
		for _, p := range n.commit.Parents {
			pn, ok := nodes[p]
			if !ok {
				return fmt.Errorf("rewrite: commit %s parent %s missing from collected graph", n.hash, p)
			}
			n.indegree++
			pn.children = append(pn.children, n)
		}
	}

	ready := &readyQueue{}
	for _, n := range nodes {
		if n.indegree == 0 {
			heap.Push(ready, n)
		}
	}

	w.total = len(nodes)
	done := 0

	for ready.Len() > 0 {
		if w.workers == 1 {
			n := heap.Pop(ready).(*commitNode)
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := w.rewriteCommit(n.hash, n.commit); err != nil {
				return err
			}
			done++
			for _, c := range n.children {
				c.indegree--
				if c.indegree == 0 {
					heap.Push(ready, c)
				}
			}
			continue
		}

		// Drain the current wave of independent commits and run it
		// through a bounded group.
		wave := make([]*commitNode, 0, ready.Len())
		for ready.Len() > 0 {
			wave = append(wave, heap.Pop(ready).(*commitNode))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.workers)
		for _, n := range wave {
			n := n
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				return w.rewriteCommit(n.hash, n.commit)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		done += len(wave)

		for _, n := range wave {
			for _, c := range n.children {
				c.indegree--
				if c.indegree == 0 {
					heap.Push(ready, c)
				}
			}
		}
	}

	if done != w.total {
		return fmt.Errorf("rewrite: %d of %d commits never became ready, commit graph has a cycle", w.total-done, w.total)
	}
	return nil
}

// rewriteCommit re-derives one commit. All parents are guaranteed to have
// table entries already. Author, committer, message and timestamps are
// preserved verbatim; only tree and parent ids are translated.
func (w *walker) rewriteCommit(oldHash object.Hash, c *object.Commit) error {
	newTree, err := w.rewriteTree(c.TreeHash, "")
	if err != nil {
		return fmt.Errorf("rewrite commit %s: %w", oldHash, err)
	}

	changed := newTree != c.TreeHash
	newParents := make([]object.Hash, len(c.Parents))
	for i, p := range c.Parents {
		np, ok := w.table.LookupCommit(p)
		if !ok {
			return fmt.Errorf("rewrite commit %s: parent %s visited out of order", oldHash, p)
		}
		newParents[i] = np
		if np != p {
			changed = true
		}
	}

	id := w.processed.Add(1)
	if !changed {
		if err := w.table.PutCommit(oldHash, oldHash); err != nil {
			return err
		}
		logger.Debug("commit unchanged", "id", id, "total", w.total, "hash", oldHash.Short())
		return nil
	}

	newCommit := &object.Commit{
		TreeHash:   newTree,
		Parents:    newParents,
		Author:     c.Author,
		AuthorTime: c.AuthorTime,
		AuthorTZ:   c.AuthorTZ,
		Committer:  c.Committer,
		CommitTime: c.CommitTime,
		CommitTZ:   c.CommitTZ,
		Message:    c.Message,
	}
	if c.Signature != "" {
		if w.signer != nil {
			sig, err := w.signer(object.CommitSigningPayload(newCommit))
			if err != nil {
				return fmt.Errorf("rewrite commit %s: re-sign: %w", oldHash, err)
			}
			newCommit.Signature = sig
		} else {
			logger.Debug("dropping stale signature", "hash", oldHash.Short())
		}
	}

	newHash, err := w.write(newCommit)
	if err != nil {
		return fmt.Errorf("rewrite commit %s: %w", oldHash, err)
	}
	if err := w.table.PutCommit(oldHash, newHash); err != nil {
		return err
	}
	logger.Debug("rewrote commit", "id", id, "total", w.total, "hash", oldHash.Short(), "new", newHash.Short())
	return nil
}

// rewriteTree re-derives a tree, stripping offending blobs and recursing
// into subtrees. Unchanged trees keep their id and nothing is written.
// Results are memoized by tree id, plus path prefix when the policy is
// path-sensitive (the same tree under two prefixes may then differ).
func (w *walker) rewriteTree(h object.Hash, prefix string) (object.Hash, error) {
	key := string(h)
	if w.filter.policy.PathSensitive() {
		key = string(h) + "\x00" + prefix
	}

	w.mu.Lock()
	memo, ok := w.treeMemo[key]
	w.mu.Unlock()
	if ok {
		return memo, nil
	}

	tr, err := object.GetTree(w.src, h)
	if err != nil {
		return "", err
	}

	changed := false
	entries := make([]object.TreeEntry, len(tr.Entries))
	for i, e := range tr.Entries {
		entries[i] = e
		path := prefix + e.Name

		// Submodule entries name commits in other repositories; there is
		// no blob here to classify.
		if e.Mode == object.ModeGitlink {
			continue
		}

		if e.IsDir {
			nh, err := w.rewriteTree(e.Hash, path+"/")
			if err != nil {
				return "", err
			}
			if nh != e.Hash {
				entries[i].Hash = nh
				changed = true
			}
			continue
		}

		decision, size, err := w.filter.Classify(e.Hash, path)
		if err != nil {
			return "", fmt.Errorf("classify %s at %q: %w", e.Hash, path, err)
		}
		if decision == Strip {
			tomb := Tombstone(e.Hash, size, w.filter.policy.MaxBlobSize)
			th, err := w.write(tomb)
			if err != nil {
				return "", fmt.Errorf("write tombstone for %s: %w", e.Hash, err)
			}
			if err := w.table.PutBlob(e.Hash, th); err != nil {
				return "", err
			}
			entries[i].Hash = th
			changed = true
			logger.Debug("stripping blob", "path", path, "blob", e.Hash.Short(), "size", size)
		}
	}

	result := h
	if changed {
		nh, err := w.write(&object.Tree{Entries: entries})
		if err != nil {
			return "", fmt.Errorf("write tree for %s: %w", h, err)
		}
		w.table.PutTree(h, nh)
		result = nh
	}

	w.mu.Lock()
	w.treeMemo[key] = result
	w.mu.Unlock()
	return result, nil
}

// rewriteTag re-derives a tag, following tag-to-tag chains. Tags whose
// target never changed keep their id.
func (w *walker) rewriteTag(ctx context.Context, h object.Hash) (object.Hash, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	w.mu.Lock()
	memo, ok := w.tagMemo[h]
	w.mu.Unlock()
	if ok {
		return memo, nil
	}

	tag, err := object.GetTag(w.src, h)
	if err != nil {
		return "", fmt.Errorf("load tag %s: %w", h, err)
	}

	newTarget := tag.TargetHash
	switch tag.TargetKind {
	case object.KindCommit:
		newTarget = w.table.ResolveCommit(tag.TargetHash)
	case object.KindTag:
		newTarget, err = w.rewriteTag(ctx, tag.TargetHash)
		if err != nil {
			return "", err
		}
	default:
		// Tags pinning a tree or blob directly are left untouched.
	}

	result := h
	if newTarget != tag.TargetHash {
		newTag := &object.Tag{
			TargetHash: newTarget,
			TargetKind: tag.TargetKind,
			Name:       tag.Name,
			Tagger:     tag.Tagger,
			TagTime:    tag.TagTime,
			TagTZ:      tag.TagTZ,
			Message:    tag.Message,
		}
		nh, err := w.write(newTag)
		if err != nil {
			return "", fmt.Errorf("rewrite tag %s: %w", h, err)
		}
		if err := w.table.PutTag(h, nh); err != nil {
			return "", err
		}
		logger.Debug("rewrote tag", "name", tag.Name, "hash", h.Short(), "new", nh.Short())
		result = nh
	}

	w.mu.Lock()
	w.tagMemo[h] = result
	w.mu.Unlock()
	return result, nil
}
