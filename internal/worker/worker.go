// Package worker runs the background jobs: the scheduled sold-count view
// refresh and the order-event cache invalidation consumer.
package worker

import (
	"context"
	"log/slog"

	"storefront/pkg/contextx"
	"storefront/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{logx.Error(err)}, keysAndValues...)...)
}

// traced gives a background run its own trace id so its log lines and any
// alert it raises can be correlated.
func traced(ctx context.Context) context.Context {
	ctx, traceID := contextx.EnsureTraceID(ctx)

	return contextx.WithLogger(ctx, logger(ctx).With(slog.String(logx.FieldTraceID, traceID.String())))
}
