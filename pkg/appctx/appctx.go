// Package appctx stashes a request-scoped zerolog logger on a context.Context,
// the same way the teacher's own appctx package threads a logger through
// handler call chains without a global.
package appctx

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

// fallback is used when a context carries no logger of its own; this should
// only happen in tests that build components without going through the
// server's request middleware.
var fallback = zerolog.New(os.Stderr).With().Timestamp().Logger()

// WithLogger returns a copy of ctx carrying log as the request-scoped logger.
func WithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// GetLogger returns the request-scoped logger stashed on ctx, or a fallback
// stderr logger if none was set.
func GetLogger(ctx context.Context) *zerolog.Logger {
	if log, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return &log
	}
	return &fallback
}
