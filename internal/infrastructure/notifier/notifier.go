// Package notifier delivers operational alerts to the on-call Telegram chat.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"storefront/pkg/contextx"
	"storefront/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

const defaultQueueSize = 32

// Alert is an operator notification. A zero At is stamped on Notify.
type Alert struct {
	Title  string
	Detail string
	At     time.Time
}

// Sink delivers one alert.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// Queue decouples alert producers from delivery: Notify never blocks and
// drops the alert when the buffer is full.
type Queue struct {
	alerts chan Alert
}

// NewQueue buffers up to size alerts, or a default when size is not positive.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Queue{alerts: make(chan Alert, size)}
}

// Notify enqueues alert without blocking. A full queue drops it with a warning.
func (q *Queue) Notify(ctx context.Context, alert Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now()
	}

	select {
	case q.alerts <- alert:
	default:
		logger(ctx).Warn("alert queue full, alert dropped", slog.String("title", alert.Title))
	}
}

// Run delivers queued alerts to s until ctx is done.
func (q *Queue) Run(ctx context.Context, s Sink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case alert := <-q.alerts:
			if err := s.Send(ctx, alert); err != nil {
				logger(ctx).Error("failed to send alert", slog.String("title", alert.Title), logx.Error(err))
			}
		}
	}
}

// LogSink writes alerts to the log; used when no bot is configured.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, alert Alert) error {
	logger(ctx).Warn("alert",
		slog.String("title", alert.Title),
		slog.String("detail", alert.Detail),
		slog.Time("at", alert.At),
	)

	return nil
}
