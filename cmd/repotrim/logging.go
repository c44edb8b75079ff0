package main

import (
	"log/slog"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/repotrim/repotrim/pkg/gc"
	"github.com/repotrim/repotrim/pkg/gitstore"
	"github.com/repotrim/repotrim/pkg/rewrite"
)

// installLogger routes the library packages' slog output through a
// charmbracelet handler on the command's stderr. Warnings and up by
// default; --verbose lowers to debug, --quiet raises to error.
func installLogger(cmd *cobra.Command, opts *globalOptions) {
	level := charmlog.WarnLevel
	switch {
	case opts.verbose:
		level = charmlog.DebugLevel
	case opts.quiet:
		level = charmlog.ErrorLevel
	}

	handler := charmlog.NewWithOptions(cmd.ErrOrStderr(), charmlog.Options{
		ReportTimestamp: false,
		Level:           level,
	})

	logger := slog.New(handler)
	rewrite.SetLogger(logger)
	gc.SetLogger(logger)
	gitstore.SetLogger(logger)
}
