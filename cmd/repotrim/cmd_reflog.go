package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/repotrim/repotrim/pkg/object"
)

func newReflogCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog <ref>",
		Short: "Show where a ref has pointed, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := opts.openRepository()
			if err != nil {
				return err
			}
			store, ok := repo.(*object.FSStore)
			if !ok {
				return fmt.Errorf("reflog works on repotrim stores only; git repositories have git reflog")
			}

			entries, err := store.ReadReflog(args[0], limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no reflog for %s\n", args[0])
				return nil
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				old := e.OldHash.Short()
				if old == "" {
					old = "(none)"
				}
				next := e.NewHash.Short()
				if next == "" {
					next = "(deleted)"
				}
				when := time.Unix(e.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
				fmt.Fprintf(out, "%s %s -> %s %s\n", when, old, next, e.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many entries")

	return cmd
}
