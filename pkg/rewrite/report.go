package rewrite

import (
	"fmt"
	"strings"

	"github.com/repotrim/repotrim/pkg/object"
)

// Result is the machine-readable report of one rewrite pass. Dry-run and
// real runs produce the same shape from the same walk.
type Result struct {
	Code        Code   `json:"code"`
	DryRun      bool   `json:"dry_run"`
	ConflictRef string `json:"conflict_ref,omitempty"`

	TotalCommits     int   `json:"total_commits"`
	RewrittenCommits int   `json:"rewritten_commit_count"`
	RewrittenTrees   int   `json:"rewritten_tree_count"`
	RewrittenTags    int   `json:"rewritten_tag_count"`
	StrippedBlobs    int   `json:"stripped_blob_count"`
	BytesReclaimed   int64 `json:"bytes_reclaimed_estimate"`

	AffectedCommits []object.Hash `json:"affected_commit_ids,omitempty"`
	MovedRefs       []string      `json:"affected_ref_names,omitempty"`
	BackupRefs      []string      `json:"backup_ref_names,omitempty"`

	// Table is the full translation built by the pass, for callers that
	// persist or query old-to-new mappings.
	Table *Table `json:"-"`
}

func (r *Result) fillFromTable(table *Table, filter *Filter, moved []string) {
	total, changed, trees, blobs, tags := table.Counts()
	r.TotalCommits = total
	r.RewrittenCommits = changed
	r.RewrittenTrees = trees
	r.StrippedBlobs = blobs
	r.RewrittenTags = tags
	r.AffectedCommits = table.ChangedCommits()
	r.MovedRefs = moved
	r.BackupRefs = make([]string, 0, len(moved))
	for _, name := range moved {
		r.BackupRefs = append(r.BackupRefs, BackupRefName(name))
	}
	r.Table = table

	// Every stripped blob was classified, so its size sits in the filter
	// cache and this sums without touching the store again.
	for old := range table.StrippedBlobs() {
		if size, err := filter.blobSize(old); err == nil {
			r.BytesReclaimed += size
		}
	}
}

// Summary renders the human-readable report.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "result:            %s\n", r.Code)
	if r.ConflictRef != "" {
		fmt.Fprintf(&b, "conflicting ref:   %s\n", r.ConflictRef)
	}
	fmt.Fprintf(&b, "commits:           %d walked, %d rewritten\n", r.TotalCommits, r.RewrittenCommits)
	fmt.Fprintf(&b, "trees rewritten:   %d\n", r.RewrittenTrees)
	if r.RewrittenTags > 0 {
		fmt.Fprintf(&b, "tags rewritten:    %d\n", r.RewrittenTags)
	}
	fmt.Fprintf(&b, "blobs stripped:    %d\n", r.StrippedBlobs)
	fmt.Fprintf(&b, "bytes reclaimed:   %s (estimate)\n", FormatSize(r.BytesReclaimed))
	for _, name := range r.MovedRefs {
		fmt.Fprintf(&b, "ref:               %s (backup at %s)\n", name, BackupRefName(name))
	}
	return b.String()
}
