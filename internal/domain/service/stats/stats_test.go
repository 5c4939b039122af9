package stats_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/service/stats"
	"storefront/internal/domain/value"
	"storefront/internal/infrastructure/cache"
	"storefront/pkg/errcodes"
)

type fakeProducts struct {
	products []entity.Product
	variants map[int64][]entity.VariantPricing
}

func (f *fakeProducts) ListProducts(context.Context) ([]entity.Product, error) {
	return f.products, nil
}

func (f *fakeProducts) GetProduct(_ context.Context, id int64) (entity.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}

	return entity.Product{}, domain.NewError(errcodes.ProductNotFound, "product not found")
}

func (f *fakeProducts) ListVariantPricing(_ context.Context, productID int64) ([]entity.VariantPricing, error) {
	return f.variants[productID], nil
}

type fakeOrders struct {
	mu     sync.Mutex
	counts map[int64]int64
	calls  map[int64]int
	err    error
}

func newFakeOrders(counts map[int64]int64) *fakeOrders {
	return &fakeOrders{counts: counts, calls: map[int64]int{}}
}

func (f *fakeOrders) CountSold(_ context.Context, productID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[productID]++

	if f.err != nil {
		return 0, f.err
	}

	return f.counts[productID], nil
}

func (f *fakeOrders) set(productID, count int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counts[productID] = count
}

func (f *fakeOrders) callsFor(productID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[productID]
}

type fakeSnapshots struct {
	rows map[int64]int64
	err  error
}

func (f fakeSnapshots) GetSoldCount(_ context.Context, productID int64) (entity.SoldCountSnapshot, error) {
	if f.err != nil {
		return entity.SoldCountSnapshot{}, f.err
	}

	count, ok := f.rows[productID]
	if !ok {
		return entity.SoldCountSnapshot{}, domain.NewError(errcodes.SoldCountNotFound, "sold count not found")
	}

	return entity.SoldCountSnapshot{ProductID: productID, SoldCount: count}, nil
}

func catalog() *fakeProducts {
	return &fakeProducts{
		products: []entity.Product{
			{ID: 1, Name: "Netflix"},
			{ID: 2, Name: "Spotify"},
			{ID: 3, Name: "YouTube"},
			{ID: 4, Name: "Canva"},
		},
	}
}

func newService(products *fakeProducts, orders *fakeOrders, cfg stats.Config) (*stats.Service, *cache.Service) {
	cacheService := cache.NewService(cache.NewMemoryStore())

	return stats.NewService(products, orders, nil, cacheService, cfg), cacheService
}

func TestGetProductSoldCount_InvalidationAfterOrder(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	orders := newFakeOrders(map[int64]int64{1: 5})
	svc, _ := newService(catalog(), orders, stats.Config{})

	count, err := svc.GetProductSoldCount(ctx, 1)
	rq.NoError(err)
	rq.Equal(int64(5), count)

	orders.set(1, 6)

	count, err = svc.GetProductSoldCount(ctx, 1)
	rq.NoError(err)
	rq.Equal(int64(5), count, "served from cache")
	rq.Equal(1, orders.callsFor(1))

	svc.InvalidateProductCache(ctx, 1)

	count, err = svc.GetProductSoldCount(ctx, 1)
	rq.NoError(err)
	rq.Equal(int64(6), count)
	rq.Equal(2, orders.callsFor(1))
}

func TestGetProductSoldCount_ComputeError(t *testing.T) {
	rq := require.New(t)

	orders := newFakeOrders(nil)
	orders.err = errors.New("connection reset")
	svc, _ := newService(catalog(), orders, stats.Config{})

	_, err := svc.GetProductSoldCount(context.Background(), 1)
	rq.Error(err)
	rq.True(domain.HasCode(err, errcodes.SoldCountComputeErr))
}

func TestGetProductSoldCount_ViewFirst(t *testing.T) {
	testCases := []struct {
		name      string
		view      fakeSnapshots
		want      int64
		liveCalls int
	}{
		{name: "From view", view: fakeSnapshots{rows: map[int64]int64{1: 10}}, want: 10, liveCalls: 0},
		{name: "Missing in view", view: fakeSnapshots{rows: map[int64]int64{}}, want: 3, liveCalls: 1},
		{name: "View failing", view: fakeSnapshots{err: errors.New("relation does not exist")}, want: 3, liveCalls: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)

			orders := newFakeOrders(map[int64]int64{1: 3})
			svc := stats.NewService(catalog(), orders, tc.view, cache.NewService(cache.NewMemoryStore()),
				stats.Config{Source: stats.SourceViewFirst})

			count, err := svc.GetProductSoldCount(context.Background(), 1)
			rq.NoError(err)
			rq.Equal(tc.want, count)
			rq.Equal(tc.liveCalls, orders.callsFor(1))
		})
	}
}

func TestTopSelling(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	orders := newFakeOrders(map[int64]int64{1: 5, 2: 9, 3: 5, 4: 0})
	svc, _ := newService(catalog(), orders, stats.Config{BatchConcurrency: 2})

	top, err := svc.TopSelling(ctx, 3)
	rq.NoError(err)
	rq.Len(top, 3)
	rq.Equal([]int64{2, 1, 3}, []int64{top[0].Product.ID, top[1].Product.ID, top[2].Product.ID})
	rq.Equal([]int64{9, 5, 5}, []int64{top[0].SoldCount, top[1].SoldCount, top[2].SoldCount})

	all, err := svc.TopSelling(ctx, 100)
	rq.NoError(err)
	rq.Len(all, 4)

	orders.set(4, 50)

	top, err = svc.TopSelling(ctx, 3)
	rq.NoError(err)
	rq.Equal(int64(2), top[0].Product.ID, "list is cached")

	svc.InvalidateProductCache(ctx, 4)

	top, err = svc.TopSelling(ctx, 3)
	rq.NoError(err)
	rq.Equal(int64(4), top[0].Product.ID)
	rq.Equal(int64(50), top[0].SoldCount)
}

func TestInvalidateAll(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	orders := newFakeOrders(map[int64]int64{1: 1, 2: 2})
	svc, _ := newService(catalog(), orders, stats.Config{})

	_, err := svc.GetProductSoldCount(ctx, 1)
	rq.NoError(err)
	_, err = svc.GetProductSoldCount(ctx, 2)
	rq.NoError(err)

	orders.set(1, 10)
	orders.set(2, 20)

	rq.True(svc.InvalidateAll(ctx))

	count, err := svc.GetProductSoldCount(ctx, 1)
	rq.NoError(err)
	rq.Equal(int64(10), count)

	count, err = svc.GetProductSoldCount(ctx, 2)
	rq.NoError(err)
	rq.Equal(int64(20), count)
}

func TestCacheStatsAndWarmCache(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	orders := newFakeOrders(map[int64]int64{1: 1, 2: 2, 3: 3, 4: 4})
	svc, _ := newService(catalog(), orders, stats.Config{})

	got, err := svc.CacheStats(ctx)
	rq.NoError(err)
	rq.Equal(entity.CacheStats{TotalProducts: 4, CachedProducts: 0, CacheHitRate: 0, RedisAvailable: true}, got)

	_, err = svc.GetProductSoldCount(ctx, 1)
	rq.NoError(err)
	_, err = svc.GetProductSoldCount(ctx, 3)
	rq.NoError(err)

	got, err = svc.CacheStats(ctx)
	rq.NoError(err)
	rq.Equal(2, got.CachedProducts)
	rq.InDelta(50.0, got.CacheHitRate, 0.001)

	warmed, err := svc.WarmCache(ctx)
	rq.NoError(err)
	rq.Equal(4, warmed)

	got, err = svc.CacheStats(ctx)
	rq.NoError(err)
	rq.Equal(4, got.CachedProducts)
	rq.InDelta(100.0, got.CacheHitRate, 0.001)
	rq.Equal(1, orders.callsFor(1))
}

// downStore is never ready.
type downStore struct{ cache.Store }

func (downStore) Ready() bool { return false }

func TestService_WithoutCache(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	orders := newFakeOrders(map[int64]int64{1: 7})
	svc := stats.NewService(catalog(), orders, nil, cache.NewService(downStore{}), stats.Config{})

	for range 2 {
		count, err := svc.GetProductSoldCount(ctx, 1)
		rq.NoError(err)
		rq.Equal(int64(7), count)
	}

	rq.Equal(2, orders.callsFor(1))

	got, err := svc.CacheStats(ctx)
	rq.NoError(err)
	rq.False(got.RedisAvailable)
	rq.Zero(got.CachedProducts)

	top, err := svc.TopSelling(ctx, 1)
	rq.NoError(err)
	rq.Equal(int64(1), top[0].Product.ID)

	svc.InvalidateProductCache(ctx, 1)
	rq.False(svc.InvalidateAll(ctx))
}

func TestProductDetail(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	products := catalog()
	products.variants = map[int64][]entity.VariantPricing{
		1: {
			{
				Variant: entity.Variant{ID: 11, ProductID: 1, Duration: "1 month", ProductPriceID: 100, Active: true},
				Price: entity.ProductPrice{
					ID:       100,
					PctCtv:   value.Fraction(1.1),
					PctKhach: value.Fraction(1.2),
					PctPromo: value.Percent(10),
				},
				SupplyPrices: []entity.SupplyPrice{{ProductID: 100, Price: decimal.NewFromInt(100000)}},
			},
			{
				Variant: entity.Variant{ID: 12, ProductID: 1, Duration: "12 months", ProductPriceID: 101, Active: false},
			},
		},
	}

	svc, _ := newService(products, newFakeOrders(map[int64]int64{1: 42}), stats.Config{})

	detail, err := svc.ProductDetail(ctx, 1)
	rq.NoError(err)
	rq.Equal("Netflix", detail.Product.Name)
	rq.Equal(int64(42), detail.SoldCount)
	rq.Len(detail.Offers, 1)
	rq.Equal(int64(11), detail.Offers[0].Variant.ID)
	rq.Equal(entity.Pricing{PriceMax: 100000, CtvPrice: 110000, SalePrice: 132000, PromoPrice: 119000},
		detail.Offers[0].Pricing)

	_, err = svc.ProductDetail(ctx, 99)
	rq.True(domain.HasCode(err, errcodes.ProductNotFound))
}

type blockingStore struct {
	entered  chan struct{}
	release  chan struct{}
	acquired bool
}

func (b *blockingStore) GetSoldCount(context.Context, int64) (entity.SoldCountSnapshot, error) {
	return entity.SoldCountSnapshot{}, nil
}

func (b *blockingStore) ListSoldCounts(context.Context, int) ([]entity.SoldCountSnapshot, error) {
	return nil, nil
}

func (b *blockingStore) SoldCountStats(context.Context) (entity.SoldCountStats, error) {
	return entity.SoldCountStats{}, nil
}

func (b *blockingStore) RefreshSoldCount(context.Context) (bool, error) {
	if b.entered != nil {
		close(b.entered)
		<-b.release
	}

	return b.acquired, nil
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingObserver) ObserveRefresh(_ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errs = append(r.errs, err)
}

func TestViewService_RefreshOverlap(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{}), acquired: true}
	observer := &recordingObserver{}
	svc := stats.NewViewService(store, observer)

	done := make(chan error, 1)

	go func() { done <- svc.Refresh(ctx) }()

	<-store.entered

	err := svc.Refresh(ctx)
	rq.True(domain.HasCode(err, errcodes.RefreshInProgress))

	close(store.release)
	rq.NoError(<-done)
	rq.Equal([]error{nil}, observer.errs)
}

func TestViewService_RefreshLockedElsewhere(t *testing.T) {
	rq := require.New(t)

	observer := &recordingObserver{}
	svc := stats.NewViewService(&blockingStore{acquired: false}, observer)

	err := svc.Refresh(context.Background())
	rq.True(domain.HasCode(err, errcodes.RefreshInProgress))
	rq.Len(observer.errs, 1)
	rq.Error(observer.errs[0])
}
