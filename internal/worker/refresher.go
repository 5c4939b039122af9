package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"storefront/internal/domain"
	"storefront/internal/infrastructure/notifier"
	"storefront/pkg/errcodes"
	"storefront/pkg/logx"
)

// DefaultRefreshSchedule refreshes every 15 minutes.
const DefaultRefreshSchedule = "*/15 * * * *"

type viewRefresher interface {
	Refresh(ctx context.Context) error
}

type alerter interface {
	Notify(ctx context.Context, alert notifier.Alert)
}

// SoldCountRefresher refreshes the sold-count view on a cron schedule. A
// tick is skipped while the previous one still runs, and a failing run only
// logs and alerts so the next tick is unaffected.
type SoldCountRefresher struct {
	refresher  viewRefresher
	alerts     alerter
	schedule   string
	runOnStart bool
}

// NewSoldCountRefresher builds a refresher. An empty schedule means
// DefaultRefreshSchedule and alerts may be nil.
func NewSoldCountRefresher(refresher viewRefresher, alerts alerter, schedule string, runOnStart bool) *SoldCountRefresher {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}

	return &SoldCountRefresher{
		refresher:  refresher,
		alerts:     alerts,
		schedule:   schedule,
		runOnStart: runOnStart,
	}
}

// Run blocks until ctx is done and waits for a running refresh to finish.
func (w *SoldCountRefresher) Run(ctx context.Context) error {
	log := cronLogger{log: logger(ctx)}

	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	if _, err := c.AddFunc(w.schedule, func() { w.RefreshOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", w.schedule, err)
	}

	if w.runOnStart {
		go w.RefreshOnce(ctx)
	}

	c.Start()
	logger(ctx).Info("sold count refresher started", slog.String("schedule", w.schedule))

	<-ctx.Done()

	<-c.Stop().Done()
	logger(ctx).Info("sold count refresher stopped")

	return nil
}

// RefreshOnce runs a single refresh. Failures are logged and alerted, never
// returned.
func (w *SoldCountRefresher) RefreshOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ctx = traced(ctx)

	err := w.refresher.Refresh(ctx)

	switch {
	case err == nil:
	case domain.HasCode(err, errcodes.RefreshInProgress):
		logger(ctx).Info("sold count refresh skipped, another refresh is running")
	default:
		logger(ctx).Error("sold count refresh failed", logx.Error(err))

		if w.alerts != nil {
			w.alerts.Notify(ctx, notifier.Alert{
				Title:  "Sold count refresh failed",
				Detail: err.Error(),
				At:     time.Now(),
			})
		}
	}
}
