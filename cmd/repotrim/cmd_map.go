package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repotrim/repotrim/pkg/idmap"
	"github.com/repotrim/repotrim/pkg/object"
)

func newMapCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "map <old-id>",
		Short: "Look up the rewritten id of an object",
		Long: `Map answers what the last rewrite turned an object into. Only changed
objects are recorded; an id the rewrite left alone has no entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := opts.openRepository()
			if err != nil {
				return err
			}

			journal, err := idmap.Open(journalPath(root))
			if err != nil {
				return err
			}
			defer journal.Close()

			newID, kind, ok, err := journal.Lookup(object.Hash(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no mapping for %s", args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", newID, kind)
			return nil
		},
	}
}
