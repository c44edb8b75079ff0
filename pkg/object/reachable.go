package object

import (
	"fmt"
	"sort"
	"strings"
)

// ReachableSet returns all object hashes reachable from roots by following
// object references. Roots or edges that point at absent objects are
// skipped, not reported: the caller marking live objects wants the set of
// what is actually present, and integrity reporting is Fsck's job.
func ReachableSet(s Store, roots []Hash) (map[Hash]struct{}, error) {
	roots = uniqueNormalizedHashes(roots)
	out := make(map[Hash]struct{}, len(roots))
	if len(roots) == 0 {
		return out, nil
	}

	stack := make([]Hash, 0, len(roots))
	stack = append(stack, roots...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := out[h]; ok {
			continue
		}
		if !s.Has(h) {
			continue
		}
		out[h] = struct{}{}

		o, err := s.Get(h)
		if err != nil {
			return nil, fmt.Errorf("reachable set read %s: %w", h, err)
		}
		stack = append(stack, ReferencedHashes(o)...)
	}

	return out, nil
}

// ReferencedHashes returns the ids an object points at directly: tree and
// parents for a commit, entry targets for a tree, the target for a tag.
// Blobs reference nothing.
func ReferencedHashes(o Object) []Hash {
	switch v := o.(type) {
	case *Blob:
		return nil
	case *Tag:
		return []Hash{v.TargetHash}
	case *Commit:
		refs := make([]Hash, 0, 1+len(v.Parents))
		refs = append(refs, v.TreeHash)
		refs = append(refs, v.Parents...)
		return refs
	case *Tree:
		refs := make([]Hash, 0, len(v.Entries))
		for _, e := range v.Entries {
			refs = append(refs, e.Hash)
		}
		return refs
	default:
		return nil
	}
}

func uniqueNormalizedHashes(in []Hash) []Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		h = Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
