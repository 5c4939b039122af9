package cartsync_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/internal/cartsync"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/value"
	"storefront/pkg/httpx"
	"storefront/pkg/middlewarex"
	"storefront/pkg/rest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

const serverPrice = 120000

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// fakeRemote is a server cart keyed by variant that can be told to fail.
type fakeRemote struct {
	mu    sync.Mutex
	items map[int64]entity.CartItem
	calls []string
	fail  map[string][]error
	// lost counts calls that are applied but answered with an error, as when
	// the response is lost on the way back.
	lost map[string]int
}

func newFakeRemote(items ...entity.CartItem) *fakeRemote {
	f := &fakeRemote{items: map[int64]entity.CartItem{}, fail: map[string][]error{}, lost: map[string]int{}}
	for _, item := range items {
		f.items[item.VariantID] = item
	}

	return f
}

func (f *fakeRemote) failNext(call string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fail[call] = append(f.fail[call], errs...)
}

func (f *fakeRemote) loseNext(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lost[call]++
}

func (f *fakeRemote) reply(call string) (entity.Cart, error) {
	if f.lost[call] > 0 {
		f.lost[call]--

		return entity.Cart{}, context.DeadlineExceeded
	}

	return f.cart(), nil
}

func (f *fakeRemote) record(call string) error {
	f.calls = append(f.calls, call)

	if errs := f.fail[call]; len(errs) > 0 {
		f.fail[call] = errs[1:]

		return errs[0]
	}

	return nil
}

func (f *fakeRemote) cart() entity.Cart {
	items := make([]entity.CartItem, 0, len(f.items))
	for _, item := range f.items {
		item.UnitPrice = serverPrice
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].VariantID < items[j].VariantID })

	return entity.Cart{Items: items}
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) Get(context.Context) (entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("get"); err != nil {
		return entity.Cart{}, err
	}

	return f.cart(), nil
}

func (f *fakeRemote) Sync(_ context.Context, items []entity.CartItem) (entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("sync"); err != nil {
		return entity.Cart{}, err
	}

	for _, item := range items {
		f.items[item.VariantID] = item
	}

	return f.reply("sync")
}

func (f *fakeRemote) UpdateQuantity(_ context.Context, variantID int64, quantity int) (entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("update"); err != nil {
		return entity.Cart{}, err
	}

	item, ok := f.items[variantID]
	if !ok {
		return entity.Cart{}, &cartsync.APIError{StatusCode: http.StatusNotFound, Code: "CartItemNotFound"}
	}

	item.Quantity = quantity
	f.items[variantID] = item

	return f.cart(), nil
}

func (f *fakeRemote) Remove(_ context.Context, variantID int64) (entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("remove"); err != nil {
		return entity.Cart{}, err
	}

	delete(f.items, variantID)

	return f.cart(), nil
}

func (f *fakeRemote) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("clear"); err != nil {
		return err
	}

	f.items = map[int64]entity.CartItem{}

	return nil
}

func (f *fakeRemote) quantities() map[int64]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make(map[int64]int, len(f.items))
	for id, item := range f.items {
		result[id] = item.Quantity
	}

	return result
}

var errUnavailable = &cartsync.APIError{StatusCode: http.StatusServiceUnavailable, Code: "Unavailable"}

func newReconciler(t *testing.T, initial *cartsync.State) (*cartsync.Reconciler, *cartsync.FileStore) {
	t.Helper()

	store := cartsync.NewFileStore(filepath.Join(t.TempDir(), "cart", "state.json"))

	if initial != nil {
		require.NoError(t, store.Save(*initial))
	}

	r := cartsync.NewReconciler(store,
		cartsync.WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		}),
		cartsync.WithStallRetry(10*time.Millisecond),
	)

	return r, store
}

func line(variantID int64, duration string, quantity int) entity.CartItem {
	return entity.CartItem{VariantID: variantID, Duration: duration, Quantity: quantity, PriceType: value.PriceTypeRetail}
}

func TestFileStore(t *testing.T) {
	rq := require.New(t)

	dir := filepath.Join(t.TempDir(), "nested")
	store := cartsync.NewFileStore(filepath.Join(dir, "state.json"))

	state, err := store.Load()
	rq.NoError(err)
	rq.Empty(state.Items)

	saved := cartsync.State{
		Items: []entity.CartItem{{
			VariantID: 4,
			Duration:  "1 month",
			Quantity:  2,
			PriceType: value.PriceTypePromo,
			ExtraInfo: map[string]string{"email": "a@b.vn"},
		}},
	}
	rq.NoError(store.Save(saved))
	rq.NoError(store.Save(saved))

	state, err = store.Load()
	rq.NoError(err)
	rq.Equal(saved.Items, state.Items)

	entries, err := os.ReadDir(dir)
	rq.NoError(err)
	rq.Len(entries, 1)

	rq.NoError(os.WriteFile(filepath.Join(dir, "state.json"), []byte("{"), 0o600))

	_, err = store.Load()
	rq.Error(err)
}

func TestReconciler_AddItemMergesByKey(t *testing.T) {
	rq := require.New(t)

	r, store := newReconciler(t, nil)
	rq.NoError(r.Mount(context.Background(), nil))

	updates, unsubscribe := r.Subscribe()
	defer unsubscribe()

	rq.NoError(r.AddItem(line(1, "1 month", 1)))
	rq.NoError(r.AddItem(line(1, "1 MONTH", 2)))
	rq.NoError(r.AddItem(line(1, "3 months", 1)))
	rq.ErrorIs(r.AddItem(line(2, "", 0)), cartsync.ErrInvalidQuantity)

	items := r.Items()
	rq.Len(items, 2)
	rq.Equal(3, items[0].Quantity)
	rq.Equal(1, items[1].Quantity)

	// Anonymous carts have nothing to mirror.
	rq.Zero(r.Pending())

	select {
	case latest := <-updates:
		rq.Equal(items, latest)
	default:
		rq.Fail("no change notification")
	}

	persisted, err := store.Load()
	rq.NoError(err)
	rq.Equal(items, persisted.Items)
}

func TestReconciler_UpdateAndRemove(t *testing.T) {
	rq := require.New(t)

	r, _ := newReconciler(t, &cartsync.State{Items: []entity.CartItem{line(1, "", 2), line(2, "", 1)}})
	rq.NoError(r.Mount(context.Background(), nil))

	rq.NoError(r.UpdateQuantity(value.ItemKey{VariantID: 1}, 5))
	rq.Equal(5, r.Items()[0].Quantity)

	rq.NoError(r.UpdateQuantity(value.ItemKey{VariantID: 1}, 0))
	rq.Len(r.Items(), 1)

	rq.NoError(r.RemoveItem(value.ItemKey{VariantID: 2}))
	rq.Empty(r.Items())

	rq.NoError(r.RemoveItem(value.ItemKey{VariantID: 2}))
}

func TestReconciler_MountSyncsLocalCart(t *testing.T) {
	rq := require.New(t)

	local := line(1, "", 2)
	local.UnitPrice = 1

	r, store := newReconciler(t, &cartsync.State{Items: []entity.CartItem{local}})
	remote := newFakeRemote(line(9, "", 1))

	rq.NoError(r.Mount(context.Background(), remote))
	rq.Equal([]string{"sync"}, remote.Calls())

	items := r.Items()
	rq.Len(items, 2)
	rq.Equal(int64(1), items[0].VariantID)
	rq.Equal(int64(serverPrice), items[0].UnitPrice)
	rq.Equal(int64(9), items[1].VariantID)

	persisted, err := store.Load()
	rq.NoError(err)
	rq.Equal(items, persisted.Items)

	// Syncing again does not double quantities.
	rq.NoError(r.Reconnect(context.Background()))
	rq.Equal(map[int64]int{1: 2, 9: 1}, remote.quantities())
}

func TestReconciler_MountFetchesServerCart(t *testing.T) {
	rq := require.New(t)

	r, _ := newReconciler(t, nil)
	remote := newFakeRemote(line(3, "", 4))

	rq.NoError(r.Mount(context.Background(), remote))
	rq.Equal([]string{"get"}, remote.Calls())
	rq.Len(r.Items(), 1)
	rq.Equal(4, r.Items()[0].Quantity)
}

func TestReconciler_RemoteFailureKeepsLocal(t *testing.T) {
	rq := require.New(t)

	r, _ := newReconciler(t, &cartsync.State{Items: []entity.CartItem{line(1, "", 2)}})
	remote := newFakeRemote()
	remote.failNext("sync", errUnavailable)

	rq.Error(r.Mount(context.Background(), remote))
	rq.Len(r.Items(), 1)

	remote.failNext("sync", errUnavailable)
	rq.NoError(r.AddItem(line(2, "", 1)))
	rq.Len(r.Items(), 2)
	rq.Equal(1, r.Pending())

	rq.Error(r.Reconnect(context.Background()))
	rq.Len(r.Items(), 2)
	rq.Equal(1, r.Pending())

	rq.NoError(r.Reconnect(context.Background()))
	rq.Zero(r.Pending())
	rq.Equal(map[int64]int{1: 2, 2: 1}, remote.quantities())
	rq.Len(r.Items(), 2)
}

func TestReconciler_RunDrainsOutbox(t *testing.T) {
	rq := require.New(t)

	r, store := newReconciler(t, nil)
	remote := newFakeRemote()

	rq.NoError(r.Mount(context.Background(), remote))

	remote.failNext("sync", errUnavailable)
	remote.failNext("update", &cartsync.APIError{StatusCode: http.StatusBadRequest, Code: "InvalidQuantity"})

	rq.NoError(r.AddItem(line(1, "", 1)))
	rq.NoError(r.UpdateQuantity(value.ItemKey{VariantID: 1}, 500))
	rq.NoError(r.AddItem(line(2, "", 2)))
	rq.NoError(r.RemoveItem(value.ItemKey{VariantID: 2}))
	rq.Equal(4, r.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- r.Run(ctx) }()

	rq.Eventually(func() bool { return r.Pending() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	rq.NoError(<-done)

	rq.Equal([]string{"get", "sync", "sync", "update", "sync", "remove"}, remote.Calls())
	rq.Equal(map[int64]int{1: 1}, remote.quantities())

	// The rejected update stays applied locally.
	rq.Equal(500, r.Items()[0].Quantity)

	persisted, err := store.Load()
	rq.NoError(err)
	rq.Empty(persisted.Outbox)
}

func TestReconciler_AddReplayAfterLostResponse(t *testing.T) {
	rq := require.New(t)

	r, _ := newReconciler(t, nil)
	remote := newFakeRemote(line(1, "", 2))

	rq.NoError(r.Mount(context.Background(), remote))

	remote.loseNext("sync")
	rq.NoError(r.AddItem(line(1, "", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- r.Run(ctx) }()

	rq.Eventually(func() bool { return r.Pending() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	rq.NoError(<-done)

	rq.Equal([]string{"get", "sync", "sync"}, remote.Calls())
	rq.Equal(map[int64]int{1: 3}, remote.quantities())
	rq.Equal(3, r.Items()[0].Quantity)
}

func TestReconciler_RunResumesAfterBackOffGivesUp(t *testing.T) {
	rq := require.New(t)

	r, _ := newReconciler(t, nil)
	remote := newFakeRemote()

	rq.NoError(r.Mount(context.Background(), remote))

	// Two full backoff rounds of four attempts each fail.
	for range 8 {
		remote.failNext("sync", errUnavailable)
	}

	rq.NoError(r.AddItem(line(1, "", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- r.Run(ctx) }()

	rq.Eventually(func() bool { return r.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	rq.NoError(<-done)

	rq.Len(remote.Calls(), 10)
	rq.Equal(map[int64]int{1: 1}, remote.quantities())
}

func TestReconciler_ClearCollapsesOutbox(t *testing.T) {
	rq := require.New(t)

	r, _ := newReconciler(t, nil)
	remote := newFakeRemote(line(5, "", 1))

	rq.NoError(r.Mount(context.Background(), remote))
	rq.NoError(r.AddItem(line(1, "", 1)))
	rq.NoError(r.AddItem(line(2, "", 1)))
	rq.NoError(r.Clear())

	rq.Empty(r.Items())
	rq.Equal(1, r.Pending())

	rq.NoError(r.Reconnect(context.Background()))
	rq.Empty(remote.quantities())
	rq.Equal([]string{"get", "clear", "get"}, remote.Calls())
}

func TestClient(t *testing.T) {
	rq := require.New(t)

	var (
		mu       sync.Mutex
		requests []string
	)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"Unauthorized","message":"missing credentials"}}`))

			return
		}

		if r.Method != http.MethodGet {
			cookie, err := r.Cookie(middlewarex.CSRFCookieName)
			if err != nil || cookie.Value != r.Header.Get(middlewarex.CSRFHeaderName) {
				w.WriteHeader(http.StatusForbidden)

				return
			}
		}

		switch r.URL.Path {
		case "/api/cart/sync":
			var request rest.SyncCartRequest
			if err := json.NewDecoder(r.Body).Decode(&request); err != nil || len(request.Items) != 1 {
				w.WriteHeader(http.StatusBadRequest)

				return
			}

			_, _ = w.Write([]byte(`{"success":true,"data":{"items":[{"variantId":1,"quantity":2,"priceType":"retail","unitPrice":120000}],"dropped":[7]}}`))
		case "/api/cart/42":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"CartItemNotFound","message":"cart item not found"}}`))
		case "/api/cart/43":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"InternalServerError","message":"internal server error"}}`))
		default:
			_, _ = w.Write([]byte(`{"success":true,"data":{"items":[]}}`))
		}
	}))
	defer ts.Close()

	ctx := context.Background()
	client := cartsync.NewClient(ts.URL, httpx.StaticToken("token-1"))

	cart, err := client.Sync(ctx, []entity.CartItem{line(1, "", 2)})
	rq.NoError(err)
	rq.Len(cart.Items, 1)
	rq.Equal(int64(serverPrice), cart.Items[0].UnitPrice)
	rq.Equal([]int64{7}, cart.Dropped)

	_, err = client.Get(ctx)
	rq.NoError(err)

	rq.NoError(client.Clear(ctx))

	_, err = client.UpdateQuantity(ctx, 42, 3)

	var apiErr *cartsync.APIError
	rq.ErrorAs(err, &apiErr)
	rq.Equal("CartItemNotFound", apiErr.Code)
	rq.True(apiErr.Permanent())

	_, err = client.Remove(ctx, 43)
	rq.ErrorAs(err, &apiErr)
	rq.False(apiErr.Permanent())

	_, err = cartsync.NewClient(ts.URL, httpx.StaticToken("")).Get(ctx)
	rq.ErrorIs(err, httpx.ErrNoToken)

	mu.Lock()
	defer mu.Unlock()

	rq.Equal([]string{
		"POST /api/cart/sync",
		"GET /api/cart",
		"DELETE /api/cart",
		"PUT /api/cart/42",
		"DELETE /api/cart/43",
	}, requests)
}

func TestAPIError_Permanent(t *testing.T) {
	testCases := []struct {
		status    int
		permanent bool
	}{
		{status: http.StatusBadRequest, permanent: true},
		{status: http.StatusNotFound, permanent: true},
		{status: http.StatusRequestTimeout, permanent: false},
		{status: http.StatusTooManyRequests, permanent: false},
		{status: http.StatusBadGateway, permanent: false},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			err := error(&cartsync.APIError{StatusCode: tc.status})

			var apiErr *cartsync.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.permanent, apiErr.Permanent())
		})
	}
}
