package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/domain/entity"
	"storefront/pkg/errcodes"
	"storefront/pkg/logx"
)

// SnapshotStore is the sold-count materialized view. RefreshSoldCount
// reports false when another process holds the refresh lock.
type SnapshotStore interface {
	SnapshotReader
	ListSoldCounts(ctx context.Context, limit int) ([]entity.SoldCountSnapshot, error)
	SoldCountStats(ctx context.Context) (entity.SoldCountStats, error)
	RefreshSoldCount(ctx context.Context) (bool, error)
}

// RefreshObserver receives the outcome of every refresh attempt.
type RefreshObserver interface {
	ObserveRefresh(d time.Duration, err error)
}

// ViewService reads and refreshes the sold-count view.
type ViewService struct {
	store      SnapshotStore
	observer   RefreshObserver
	refreshing sync.Mutex
}

// NewViewService builds a ViewService. observer may be nil.
func NewViewService(store SnapshotStore, observer RefreshObserver) *ViewService {
	return &ViewService{store: store, observer: observer}
}

// ListWithSoldCount returns up to limit view rows ordered by sold count.
func (v *ViewService) ListWithSoldCount(ctx context.Context, limit int) ([]entity.SoldCountSnapshot, error) {
	rows, err := v.store.ListSoldCounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ListSoldCounts: %w", err)
	}

	return rows, nil
}

// GetSoldCount returns the view row of one product. A product missing from
// the view yields SoldCountNotFound.
func (v *ViewService) GetSoldCount(ctx context.Context, productID int64) (entity.SoldCountSnapshot, error) {
	row, err := v.store.GetSoldCount(ctx, productID)
	if err != nil {
		return entity.SoldCountSnapshot{}, fmt.Errorf("store.GetSoldCount: %w", err)
	}

	return row, nil
}

// Stats summarizes the view: row count, total sold and the last refresh.
func (v *ViewService) Stats(ctx context.Context) (entity.SoldCountStats, error) {
	stats, err := v.store.SoldCountStats(ctx)
	if err != nil {
		return entity.SoldCountStats{}, fmt.Errorf("store.SoldCountStats: %w", err)
	}

	return stats, nil
}

// Refresh rebuilds the view. At most one refresh runs at a time, in this
// process and across instances; a concurrent call fails with
// RefreshInProgress.
func (v *ViewService) Refresh(ctx context.Context) error {
	if !v.refreshing.TryLock() {
		return domain.NewError(errcodes.RefreshInProgress, "sold count refresh already running")
	}
	defer v.refreshing.Unlock()

	start := time.Now()

	acquired, err := v.store.RefreshSoldCount(ctx)
	if err == nil && !acquired {
		err = domain.NewError(errcodes.RefreshInProgress, "sold count refresh already running")
	}

	if v.observer != nil {
		v.observer.ObserveRefresh(time.Since(start), err)
	}

	if err != nil {
		return fmt.Errorf("store.RefreshSoldCount: %w", err)
	}

	logger(ctx).Info("sold count view refreshed",
		slog.Int64(logx.FieldDurationMs, time.Since(start).Milliseconds()),
	)

	return nil
}
