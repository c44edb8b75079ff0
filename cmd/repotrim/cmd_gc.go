package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repotrim/repotrim/pkg/gc"
	"github.com/repotrim/repotrim/pkg/idmap"
	"github.com/repotrim/repotrim/pkg/rewrite"
)

func newGcCmd(opts *globalOptions) *cobra.Command {
	var confirm bool
	var force bool
	var refsOnly bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Expire backup refs and delete unreachable objects",
		Long: `Gc makes a finished rewrite permanent: it deletes the refs/backup/
namespace, clears the old-to-new id map, and sweeps every object no
longer reachable from the remaining refs. Until gc runs, the pre-rewrite
history is still fully recoverable from its backup refs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, root, err := opts.openRepository()
			if err != nil {
				return err
			}

			journal, err := idmap.Open(journalPath(root))
			if err != nil {
				return err
			}
			defer journal.Close()

			collector := &gc.Collector{Repo: repo, Journal: journal}
			sum, err := collector.Run(cmd.Context(), gc.Options{
				Confirm:  confirm,
				Force:    force,
				RefsOnly: refsOnly,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "expired %d backup ref(s), cleared %d id map entries\n",
				sum.BackupRefsExpired, sum.JournalEntriesCleared)
			if sum.SweepSkipped {
				fmt.Fprintln(out, "object sweep skipped")
				return nil
			}
			fmt.Fprintf(out, "deleted %d of %d object(s), reclaimed %s\n",
				sum.ObjectsDeleted, sum.ObjectsScanned, rewrite.FormatSize(sum.BytesReclaimed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "actually delete; gc refuses without it")
	cmd.Flags().BoolVar(&force, "force", false, "override a stale rewrite-in-flight marker")
	cmd.Flags().BoolVar(&refsOnly, "refs-only", false, "expire backups and clear the id map without sweeping objects")

	return cmd
}
