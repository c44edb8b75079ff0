package rewrite

import (
	"io"
	"log/slog"
)

// logger is the package-level logger. Silent by default; callers that want
// progress output install one with SetLogger.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// SetLogger routes the package's progress logging to l. A nil l is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
