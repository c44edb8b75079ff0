package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repotrim/repotrim/pkg/object"
)

func newFsckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Verify every object in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := opts.openRepository()
			if err != nil {
				return err
			}
			store, ok := repo.(*object.FSStore)
			if !ok {
				return fmt.Errorf("fsck works on repotrim stores only; git repositories have git fsck")
			}

			sum, err := store.Verify()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"verified %d object(s): %d blob(s), %d tree(s), %d commit(s), %d tag(s)\n",
				sum.Objects, sum.Blobs, sum.Trees, sum.Commits, sum.Tags)
			return nil
		},
	}
}
