package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newRefsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refs",
		Short: "List refs, including rewrite backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := opts.openRepository()
			if err != nil {
				return err
			}

			refs, err := repo.Refs()
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no refs")
				return nil
			}

			names := make([]string, 0, len(refs))
			for name := range refs {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "%s %s\n", refs[name], name)
			}
			return nil
		},
	}
}
