package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"

	"storefront/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// TaskOrderStateChanged is the asynq task type of order events.
const TaskOrderStateChanged = "order:state_changed"

// OrderStateChanged is published by the order service whenever an order is
// created, updated or cancelled.
type OrderStateChanged struct {
	OrderID    int64   `json:"order_id"`
	Status     string  `json:"status"`
	ProductIDs []int64 `json:"product_ids"`
}

// NewOrderStateChangedTask encodes event as an asynq task.
func NewOrderStateChangedTask(event OrderStateChanged) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return asynq.NewTask(TaskOrderStateChanged, payload), nil
}

type productCacheInvalidator interface {
	InvalidateProductCache(ctx context.Context, productID int64)
}

// OrderEventHandler drops cached sold counts of the products an order
// touched so the next read recounts them.
type OrderEventHandler struct {
	invalidator productCacheInvalidator
}

// NewOrderEventHandler builds a handler that invalidates through invalidator.
func NewOrderEventHandler(invalidator productCacheInvalidator) *OrderEventHandler {
	return &OrderEventHandler{invalidator: invalidator}
}

// ProcessTask implements asynq.Handler. A malformed payload is skipped
// without retry.
func (h *OrderEventHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx = traced(ctx)

	var event OrderStateChanged
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry) //nolint:errorlint
	}

	for _, productID := range event.ProductIDs {
		h.invalidator.InvalidateProductCache(ctx, productID)
	}

	logger(ctx).Info("order state changed",
		slog.Int64(logx.FieldOrderID, event.OrderID),
		slog.String("status", event.Status),
		slog.Int("products", len(event.ProductIDs)),
	)

	return nil
}
