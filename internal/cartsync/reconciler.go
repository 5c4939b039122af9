// Package cartsync keeps a client-held cart in step with the server cart.
// Local mutations are applied and persisted first, then mirrored to the
// server through a persisted outbox; the server cart is adopted at sync
// points (mount and reconnect).
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/value"
	"storefront/pkg/contextx"
	"storefront/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	errUnknownOperation = errors.New("unknown cart operation")
)

type localStore interface {
	Load() (State, error)
	Save(state State) error
}

// RemoteCart is the server cart as seen by the reconciler. Sync sets the
// given lines to their quantities and keeps the others.
type RemoteCart interface {
	Get(ctx context.Context) (entity.Cart, error)
	Sync(ctx context.Context, items []entity.CartItem) (entity.Cart, error)
	UpdateQuantity(ctx context.Context, variantID int64, quantity int) (entity.Cart, error)
	Remove(ctx context.Context, variantID int64) (entity.Cart, error)
	Clear(ctx context.Context) error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithBackOff sets the retry policy used for each outbox operation.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(r *Reconciler) {
		r.newBackOff = newBackOff
	}
}

// WithStallRetry sets how long Run waits before draining again once an
// operation has exhausted its retry policy.
func WithStallRetry(d time.Duration) Option {
	return func(r *Reconciler) {
		r.stallRetry = d
	}
}

// Reconciler owns the local cart and mirrors its mutations to the server.
type Reconciler struct {
	store      localStore
	newBackOff func() backoff.BackOff
	stallRetry time.Duration

	// syncMu serializes all remote work; mu guards the fields below.
	syncMu sync.Mutex
	mu     sync.Mutex
	state  State
	remote RemoteCart
	subs   map[int]chan []entity.CartItem
	nextID int

	wake chan struct{}
}

// NewReconciler builds a reconciler over the local store. Call Mount before
// use and Run to mirror mutations in the background.
func NewReconciler(store localStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      store,
		newBackOff: defaultBackOff,
		stallRetry: defaultStallRetry,
		subs:       make(map[int]chan []entity.CartItem),
		wake:       make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

const defaultStallRetry = time.Minute

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute

	return b
}

// Mount loads the local cart. With a remote (the user is logged in) the
// outbox is replayed and the cart reconciled: a non-empty local cart is
// synced and replaced by the server response, an empty one is replaced by
// the server cart. A remote failure leaves the local cart in place and is
// returned.
func (r *Reconciler) Mount(ctx context.Context, remote RemoteCart) error {
	state, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("store.Load: %w", err)
	}

	r.mu.Lock()
	r.state = state
	r.remote = remote
	r.mu.Unlock()

	r.notify()

	if remote == nil {
		return nil
	}

	return r.Reconnect(ctx)
}

// Reconnect replays pending operations once and then adopts the server
// cart with any still pending local operations applied on top.
func (r *Reconciler) Reconnect(ctx context.Context) error {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	remote := r.currentRemote()
	if remote == nil {
		return nil
	}

	var items []entity.CartItem

	for {
		if err := r.drain(ctx, remote, false); err != nil {
			return err
		}

		var idle bool
		if items, idle = r.snapshotIfIdle(); idle {
			break
		}
	}

	var (
		cart entity.Cart
		err  error
	)

	if len(items) > 0 {
		cart, err = remote.Sync(ctx, items)
	} else {
		cart, err = remote.Get(ctx)
	}

	if err != nil {
		return fmt.Errorf("reconcile cart: %w", err)
	}

	if len(cart.Dropped) > 0 {
		logger(ctx).Info("server dropped unavailable cart lines", slog.Any("variants", cart.Dropped))
	}

	return r.adopt(cart.Items)
}

// Run mirrors queued operations to the server until ctx is done. Each
// operation is retried with backoff; operations the server rejects
// permanently are dropped. When the backoff gives up, the drain is tried
// again after the stall retry interval without waiting for a new mutation.
func (r *Reconciler) Run(ctx context.Context) error {
	r.kick()

	var rearm *time.Timer

	defer func() {
		if rearm != nil {
			rearm.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		}

		var err error

		r.syncMu.Lock()

		if remote := r.currentRemote(); remote != nil {
			err = r.drain(ctx, remote, true)
		}

		r.syncMu.Unlock()

		if err != nil && ctx.Err() == nil {
			logger(ctx).Warn("cart outbox stalled", slog.Duration("retry-in", r.stallRetry), logx.Error(err))

			if rearm != nil {
				rearm.Stop()
			}

			rearm = time.AfterFunc(r.stallRetry, r.kick)
		}
	}
}

// AddItem merges item into the local cart, summing quantities of lines with
// the same key.
func (r *Reconciler) AddItem(item entity.CartItem) error {
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	if item.PriceType == "" {
		item.PriceType = value.PriceTypeRetail
	}

	return r.mutate(newOperation(OpAdd, item))
}

// RemoveItem drops the line; removing an absent line is a no-op.
func (r *Reconciler) RemoveItem(key value.ItemKey) error {
	return r.mutate(newOperation(OpRemove, entity.CartItem{VariantID: key.VariantID, Duration: key.Duration}))
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (r *Reconciler) UpdateQuantity(key value.ItemKey, quantity int) error {
	if quantity <= 0 {
		return r.RemoveItem(key)
	}

	return r.mutate(newOperation(OpSetQuantity, entity.CartItem{
		VariantID: key.VariantID,
		Duration:  key.Duration,
		Quantity:  quantity,
	}))
}

// Clear empties the cart and supersedes every queued operation.
func (r *Reconciler) Clear() error {
	return r.mutate(newOperation(OpClear, entity.CartItem{}))
}

// Items returns a copy of the visible cart.
func (r *Reconciler) Items() []entity.CartItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.state.Items)
}

// Pending is the number of operations not yet confirmed by the server.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.state.Outbox)
}

// Subscribe returns a channel receiving the cart after every change. Only
// the latest cart is kept for slow readers.
func (r *Reconciler) Subscribe() (<-chan []entity.CartItem, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	ch := make(chan []entity.CartItem, 1)
	r.subs[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.subs, id)
	}
}

func (r *Reconciler) mutate(op Operation) error {
	r.mu.Lock()

	r.state.Items = op.apply(r.state.Items)

	if op.Kind == OpAdd {
		op.Line = lineFor(r.state.Items, op.Item.Key())
	}

	if r.remote != nil {
		r.state.Outbox = enqueue(r.state.Outbox, op)
	}

	err := r.store.Save(r.state)
	r.mu.Unlock()

	r.notify()
	r.kick()

	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	return nil
}

// drain sends queued operations in order. Without retry the first
// transient failure stops the drain.
func (r *Reconciler) drain(ctx context.Context, remote RemoteCart, retry bool) error {
	for {
		op, ok := r.head()
		if !ok {
			return nil
		}

		send := func() error {
			err := r.send(ctx, remote, op)
			if isPermanent(err) {
				return backoff.Permanent(err)
			}

			return err
		}

		var err error

		if retry {
			err = backoff.RetryNotify(send, backoff.WithContext(r.newBackOff(), ctx), func(err error, next time.Duration) {
				logger(ctx).Debug("cart operation failed, retrying",
					slog.String("op", string(op.Kind)),
					slog.Duration("next", next),
					logx.Error(err),
				)
			})
		} else {
			err = send()
		}

		switch {
		case err == nil:
		case isPermanent(err):
			logger(ctx).Warn("cart operation rejected, dropping",
				slog.String("op", string(op.Kind)),
				slog.Int64(logx.FieldVariantID, op.Item.VariantID),
				logx.Error(err),
			)
		default:
			return fmt.Errorf("send %s: %w", op.Kind, err)
		}

		if err = r.pop(op.ID); err != nil {
			logger(ctx).Error("failed to persist cart outbox", logx.Error(err))
		}
	}
}

func (r *Reconciler) send(ctx context.Context, remote RemoteCart, op Operation) error {
	var err error

	switch op.Kind {
	case OpAdd:
		_, err = remote.Sync(ctx, []entity.CartItem{op.Line})
	case OpSetQuantity:
		_, err = remote.UpdateQuantity(ctx, op.Item.VariantID, op.Item.Quantity)
	case OpRemove:
		_, err = remote.Remove(ctx, op.Item.VariantID)
	case OpClear:
		err = remote.Clear(ctx)
	default:
		return fmt.Errorf("%w %q", errUnknownOperation, op.Kind)
	}

	return err
}

// adopt replaces the visible cart with the server cart plus the operations
// still waiting in the outbox.
func (r *Reconciler) adopt(server []entity.CartItem) error {
	r.mu.Lock()

	items := slices.Clone(server)
	for _, op := range r.state.Outbox {
		items = op.apply(items)
	}

	r.state.Items = items

	err := r.store.Save(r.state)
	r.mu.Unlock()

	r.notify()

	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	return nil
}

// snapshotIfIdle returns the visible cart when nothing is queued, so the
// snapshot sent to the server carries no operation that is also pending.
func (r *Reconciler) snapshotIfIdle() ([]entity.CartItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.state.Outbox) > 0 {
		return nil, false
	}

	return slices.Clone(r.state.Items), true
}

func (r *Reconciler) head() (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.state.Outbox) == 0 {
		return Operation{}, false
	}

	return r.state.Outbox[0], true
}

// pop removes the operation by id; a Clear enqueued meanwhile may already
// have dropped it.
func (r *Reconciler) pop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.state.Outbox, func(op Operation) bool { return op.ID == id })
	if idx < 0 {
		return nil
	}

	r.state.Outbox = slices.Delete(r.state.Outbox, idx, idx+1)

	return r.store.Save(r.state)
}

func (r *Reconciler) currentRemote() RemoteCart {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.remote
}

func (r *Reconciler) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.subs {
		items := slices.Clone(r.state.Items)

		select {
		case <-ch:
		default:
		}

		select {
		case ch <- items:
		default:
		}
	}
}

func (r *Reconciler) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
