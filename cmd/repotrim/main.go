package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repotrim/repotrim/pkg/gc"
	"github.com/repotrim/repotrim/pkg/idmap"
	"github.com/repotrim/repotrim/pkg/object"
	"github.com/repotrim/repotrim/pkg/rewrite"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "repotrim:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "repotrim",
		Short:         "Rewrite repository history to strip oversized blobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			installLogger(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.storeDir, "store", "", "path to a repotrim object store")
	flags.StringVar(&opts.gitDir, "git", "", "path to a git repository")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress at debug level")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "log errors only")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newRewriteCmd(opts))
	root.AddCommand(newGcCmd(opts))
	root.AddCommand(newFsckCmd(opts))
	root.AddCommand(newMapCmd(opts))
	root.AddCommand(newRefsCmd(opts))
	root.AddCommand(newReflogCmd(opts))

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "repotrim 0.1.0-dev")
		},
	}
}

// exitCode maps an error to the process exit status: 2 bad policy, 3 ref
// or backup conflict, 4 store trouble, 5 refused garbage collection,
// 1 anything else.
func exitCode(err error) int {
	var corrupt *object.CorruptError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, rewrite.ErrInvalidPolicy):
		return 2
	case errors.Is(err, object.ErrRefConflict),
		errors.Is(err, rewrite.ErrBackupExists):
		return 3
	case errors.Is(err, object.ErrNotFound),
		errors.As(err, &corrupt),
		errors.Is(err, errStoreUnavailable):
		return 4
	case errors.Is(err, gc.ErrConfirmationRequired),
		errors.Is(err, gc.ErrSweepUnsupported),
		errors.Is(err, idmap.ErrRewriteInFlight):
		return 5
	}
	return 1
}
