package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repotrim/repotrim/pkg/idmap"
	"github.com/repotrim/repotrim/pkg/rewrite"
)

func newRewriteCmd(opts *globalOptions) *cobra.Command {
	var (
		maxBlobSize string
		match       []string
		keep        []string
		rulesPath   string
		dryRun      bool
		workers     int
		signKey     string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite history, stripping blobs over the size threshold",
		Long: `Rewrite walks every commit reachable from the refs, replaces blobs the
size policy rejects with small tombstones, and re-derives the trees,
commits and tags above them. Refs move to the rewritten history in one
atomic step, with the previous tips saved under refs/backup/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, root, err := opts.openRepository()
			if err != nil {
				return err
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if maxBlobSize == "" {
				maxBlobSize = cfg.MaxBlobSize
			}
			if workers == 0 {
				workers = cfg.Workers
			}
			if signKey == "" {
				signKey = cfg.SignKey
			}
			if rulesPath == "" {
				rulesPath = cfg.Rules
			}

			policy, err := buildPolicy(maxBlobSize, match, keep, rulesPath)
			if err != nil {
				return err
			}

			ro := rewrite.Options{
				Policy:  policy,
				DryRun:  dryRun,
				Workers: workers,
				Force:   force,
			}
			if signKey != "" {
				signer, _, err := newSSHCommitSigner(signKey)
				if err != nil {
					return err
				}
				ro.Signer = signer
			}

			// Real runs hold the journal open for the duration: its file
			// lock keeps a concurrent gc out, and the in-flight marker
			// survives a crash for the next run to trip over.
			var journal *idmap.Journal
			if !dryRun {
				journal, err = idmap.Open(journalPath(root))
				if err != nil {
					return err
				}
				defer journal.Close()
				if err := journal.BeginRewrite(force); err != nil {
					return err
				}
			}

			res, runErr := rewrite.Run(cmd.Context(), repo, ro)

			if journal != nil {
				if runErr == nil {
					recordErr := journal.Record(idmap.Snapshot{
						Commits: res.Table.Commits(),
						Trees:   res.Table.Trees(),
						Blobs:   res.Table.StrippedBlobs(),
						Tags:    res.Table.Tags(),
					})
					if recordErr != nil {
						runErr = fmt.Errorf("refs updated but recording id map failed: %w", recordErr)
					}
				}
				// Refs moved atomically or not at all, so the marker is
				// stale the moment Run returns.
				if endErr := journal.EndRewrite(); endErr != nil && runErr == nil {
					runErr = endErr
				}
			}

			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), res.Summary())
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&maxBlobSize, "max-blob-size", "", "strip blobs larger than this (e.g. 100MB)")
	cmd.Flags().StringArrayVar(&match, "match", nil, "only strip blobs under paths matching this glob (repeatable)")
	cmd.Flags().StringArrayVar(&keep, "keep", nil, "never strip blobs under paths matching this glob (repeatable)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML rules file with max_blob_size, match and keep")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing anything")
	cmd.Flags().IntVar(&workers, "workers", 0, "rewrite this many independent commits concurrently")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "re-sign rewritten commits with this SSH private key")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite leftover backup refs and a stale in-flight marker")

	return cmd
}

// buildPolicy assembles the size policy from the rules file, if any, with
// explicit flags layered on top.
func buildPolicy(maxBlobSize string, match, keep []string, rulesPath string) (*rewrite.SizePolicy, error) {
	policy := &rewrite.SizePolicy{}
	if rulesPath != "" {
		loaded, err := rewrite.LoadRules(rulesPath)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}
	if maxBlobSize != "" {
		threshold, err := rewrite.ParseSize(maxBlobSize)
		if err != nil {
			return nil, &rewrite.PolicyError{Field: "max-blob-size", Reason: err.Error()}
		}
		policy.MaxBlobSize = threshold
	}
	policy.Match = append(policy.Match, match...)
	policy.Keep = append(policy.Keep, keep...)
	return policy, nil
}
