package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/service/cart"
	"storefront/internal/domain/value"
	"storefront/internal/server"
	"storefront/pkg/contextx"
	"storefront/pkg/errcodes"
	"storefront/pkg/middlewarex"
	"storefront/pkg/rest"
	"storefront/pkg/tests"
)

type fakeStats struct {
	invalidated []int64
	topLimit    int
}

func (f *fakeStats) InvalidateProductCache(_ context.Context, productID int64) {
	f.invalidated = append(f.invalidated, productID)
}

func (f *fakeStats) TopSelling(_ context.Context, limit int) ([]entity.TopSeller, error) {
	f.topLimit = limit

	return []entity.TopSeller{{Product: entity.Product{ID: 2, Name: "Netflix"}, SoldCount: 40}}, nil
}

func (f *fakeStats) CacheStats(context.Context) (entity.CacheStats, error) {
	return entity.CacheStats{TotalProducts: 4, CachedProducts: 1, CacheHitRate: 25, RedisAvailable: true}, nil
}

func (f *fakeStats) WarmCache(context.Context) (int, error) {
	return 4, nil
}

func (f *fakeStats) ProductDetail(_ context.Context, productID int64) (entity.ProductDetail, error) {
	if productID != 2 {
		return entity.ProductDetail{}, domain.NewError(errcodes.ProductNotFound, "product not found")
	}

	return entity.ProductDetail{Product: entity.Product{ID: 2, Name: "Netflix"}, SoldCount: 40}, nil
}

type fakeView struct {
	refreshErr error
}

func (f *fakeView) ListWithSoldCount(_ context.Context, limit int) ([]entity.SoldCountSnapshot, error) {
	rows := []entity.SoldCountSnapshot{
		{ProductID: 2, SoldCount: 40},
		{ProductID: 1, SoldCount: 12},
		{ProductID: 3, SoldCount: 0},
	}

	return rows[:min(limit, len(rows))], nil
}

func (f *fakeView) GetSoldCount(_ context.Context, productID int64) (entity.SoldCountSnapshot, error) {
	if productID == 2 {
		return entity.SoldCountSnapshot{ProductID: 2, SoldCount: 40}, nil
	}

	return entity.SoldCountSnapshot{}, domain.NewError(errcodes.SoldCountNotFound, "sold count not found")
}

func (f *fakeView) Stats(context.Context) (entity.SoldCountStats, error) {
	updated := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	return entity.SoldCountStats{TotalProducts: 3, TotalSold: 52, LastUpdated: &updated}, nil
}

func (f *fakeView) Refresh(context.Context) error {
	return f.refreshErr
}

type fakeCart struct {
	owner entity.Principal
	lines []cart.Line
	items []entity.CartItem
}

func (f *fakeCart) cart() entity.Cart {
	return entity.Cart{Items: f.items}
}

func (f *fakeCart) Get(_ context.Context, owner entity.Principal) (entity.Cart, error) {
	f.owner = owner

	return f.cart(), nil
}

func (f *fakeCart) Add(_ context.Context, owner entity.Principal, line cart.Line) (entity.Cart, error) {
	f.owner = owner
	f.lines = []cart.Line{line}
	f.items = append(f.items, entity.CartItem{
		VariantID: line.VariantID,
		Quantity:  line.Quantity,
		PriceType: line.PriceType,
		UnitPrice: 120000,
	})

	return f.cart(), nil
}

func (f *fakeCart) UpdateQuantity(_ context.Context, owner entity.Principal, variantID int64, quantity int) (entity.Cart, error) {
	f.owner = owner

	for i := range f.items {
		if f.items[i].VariantID == variantID {
			f.items[i].Quantity = quantity

			return f.cart(), nil
		}
	}

	return entity.Cart{}, domain.NewError(errcodes.CartItemNotFound, "cart item not found")
}

func (f *fakeCart) Remove(_ context.Context, owner entity.Principal, _ int64) (entity.Cart, error) {
	f.owner = owner
	f.items = nil

	return f.cart(), nil
}

func (f *fakeCart) Clear(_ context.Context, owner entity.Principal) error {
	f.owner = owner
	f.items = nil

	return nil
}

func (f *fakeCart) Count(_ context.Context, owner entity.Principal) (int, error) {
	f.owner = owner

	return f.cart().Count(), nil
}

func (f *fakeCart) Sync(_ context.Context, owner entity.Principal, lines []cart.Line) (entity.Cart, error) {
	f.owner = owner
	f.lines = lines

	return entity.Cart{Items: f.items, Dropped: []int64{404}}, nil
}

func (f *fakeCart) Quote(_ context.Context, owner entity.Principal, discount int64) (entity.CartQuote, error) {
	f.owner = owner

	return entity.CartQuote{Discount: discount}, nil
}

type sessions struct{}

func (sessions) VerifyToken(_ context.Context, token string) (middlewarex.Principal, error) {
	switch token {
	case "customer":
		return middlewarex.Principal{UserID: 7, Role: "customer"}, nil
	case "reseller":
		return middlewarex.Principal{UserID: 8, Role: contextx.UserRole(entity.RoleCtv)}, nil
	default:
		return middlewarex.Principal{}, errors.New("session not found")
	}
}

type env struct {
	stats  *fakeStats
	view   *fakeView
	cart   *fakeCart
	client tests.APIClient
}

func newEnv(t *testing.T) env {
	t.Helper()

	e := env{stats: &fakeStats{}, view: &fakeView{}, cart: &fakeCart{}}

	srv := server.NewServer(
		server.NewProductServer(e.stats, e.view),
		server.NewCartServer(e.cart),
		sessions{},
	)

	r := chi.NewRouter()
	r.Use(middlewarex.TraceID)
	srv.RegisterRoutes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	e.client = tests.NewAPIClient(t, ts.URL, ts.Client())

	return e
}

func authorized(client tests.APIClient, token string) tests.APIClient {
	return client.
		WithHeader("Authorization", "Bearer "+token).
		WithHeader(middlewarex.CSRFHeaderName, "csrf-1").
		WithHeader("Cookie", middlewarex.CSRFCookieName+"=csrf-1")
}

func TestProducts(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	var rows []entity.SoldCountSnapshot

	resp, envelope, err := e.client.Get(ctx, "/api/products/with-sold-count?limit=2", &rows)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.True(envelope.Success)
	rq.Len(rows, 2)
	rq.Equal(int64(2), rows[0].ProductID)

	var top []entity.TopSeller

	_, envelope, err = e.client.Get(ctx, "/api/products/top-selling", &top)
	rq.NoError(err)
	rq.True(envelope.Success)
	rq.Equal(10, e.stats.topLimit)
	rq.Len(top, 1)

	_, _, err = e.client.Get(ctx, "/api/products/top-selling?limit=1000", &top)
	rq.NoError(err)
	rq.Equal(100, e.stats.topLimit)

	var detail entity.ProductDetail

	_, envelope, err = e.client.Get(ctx, "/api/products/2", &detail)
	rq.NoError(err)
	rq.True(envelope.Success)
	rq.Equal("Netflix", detail.Product.Name)

	var stats entity.SoldCountStats

	_, _, err = e.client.Get(ctx, "/api/products/sold-count-stats", &stats)
	rq.NoError(err)
	rq.Equal(int64(52), stats.TotalSold)
	rq.NotNil(stats.LastUpdated)

	var cacheStats entity.CacheStats

	_, _, err = e.client.Get(ctx, "/api/products/cache-stats", &cacheStats)
	rq.NoError(err)
	rq.InEpsilon(25.0, cacheStats.CacheHitRate, 0.001)

	var warmed rest.WarmCacheResponse

	_, _, err = e.client.Post(ctx, "/api/products/warm-cache", nil, &warmed)
	rq.NoError(err)
	rq.Equal(4, warmed.Warmed)

	var invalidated rest.InvalidateResponse

	_, _, err = e.client.Post(ctx, "/api/products/5/invalidate-cache", nil, &invalidated)
	rq.NoError(err)
	rq.True(invalidated.Invalidated)
	rq.Equal([]int64{5}, e.stats.invalidated)
}

func TestProducts_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		endpoint   string
		refreshErr error
		statusCode int
		code       string
	}{
		{
			name:       "Bad limit",
			method:     http.MethodGet,
			endpoint:   "/api/products/top-selling?limit=-3",
			statusCode: http.StatusBadRequest,
			code:       errcodes.InvalidLimit.String(),
		},
		{
			name:       "Bad product id",
			method:     http.MethodGet,
			endpoint:   "/api/products/abc/sold-count",
			statusCode: http.StatusBadRequest,
			code:       errcodes.InvalidProductID.String(),
		},
		{
			name:       "Missing snapshot",
			method:     http.MethodGet,
			endpoint:   "/api/products/9/sold-count",
			statusCode: http.StatusNotFound,
			code:       errcodes.SoldCountNotFound.String(),
		},
		{
			name:       "Missing product",
			method:     http.MethodGet,
			endpoint:   "/api/products/9",
			statusCode: http.StatusNotFound,
			code:       errcodes.ProductNotFound.String(),
		},
		{
			name:       "Refresh overlap",
			method:     http.MethodPost,
			endpoint:   "/api/products/refresh-sold-count",
			refreshErr: domain.NewError(errcodes.RefreshInProgress, "refresh already running"),
			statusCode: http.StatusConflict,
			code:       errcodes.RefreshInProgress.String(),
		},
		{
			name:       "Refresh failure is generic",
			method:     http.MethodPost,
			endpoint:   "/api/products/refresh-sold-count",
			refreshErr: errors.New("pq: relation does not exist"),
			statusCode: http.StatusInternalServerError,
			code:       errcodes.InternalServerError.String(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			e := newEnv(t)
			e.view.refreshErr = tc.refreshErr

			var (
				resp     *http.Response
				envelope tests.Envelope
				err      error
			)

			if tc.method == http.MethodPost {
				resp, envelope, err = e.client.Post(context.Background(), tc.endpoint, nil, nil)
			} else {
				resp, envelope, err = e.client.Get(context.Background(), tc.endpoint, nil)
			}

			rq.NoError(err)
			rq.Equal(tc.statusCode, resp.StatusCode)
			rq.False(envelope.Success)
			rq.NotNil(envelope.Error)
			rq.Equal(tc.code, envelope.Error.Code)
			rq.NotEmpty(envelope.Error.SupportID)
			rq.NotContains(envelope.Error.Message, "pq:")
		})
	}
}

func TestCart_RequiresSession(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t)

	resp, envelope, err := e.client.Get(context.Background(), "/api/cart", nil)
	rq.NoError(err)
	rq.Equal(http.StatusUnauthorized, resp.StatusCode)
	rq.Equal(errcodes.Unauthorized.String(), envelope.Error.Code)

	noCSRF := e.client.WithHeader("Authorization", "Bearer customer")

	resp, envelope, err = noCSRF.Post(context.Background(), "/api/cart/add", rest.CartLine{VariantID: 1, Quantity: 1}, nil)
	rq.NoError(err)
	rq.Equal(http.StatusForbidden, resp.StatusCode)
	rq.Equal(errcodes.CSRFTokenMismatch.String(), envelope.Error.Code)

	resp, _, err = noCSRF.Get(context.Background(), "/api/cart/count", nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
}

func TestCart(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	client := authorized(e.client, "reseller")

	var c entity.Cart

	_, envelope, err := client.Post(ctx, "/api/cart/add", rest.CartLine{
		VariantID: 11,
		Quantity:  2,
		PriceType: "ctv",
		ExtraInfo: map[string]string{"email": "a@b.vn"},
	}, &c)
	rq.NoError(err)
	rq.True(envelope.Success)
	rq.Len(c.Items, 1)
	rq.Equal(entity.Principal{UserID: 8, Role: entity.RoleCtv}, e.cart.owner)
	rq.Equal(value.PriceTypeCtv, e.cart.lines[0].PriceType)
	rq.Equal("a@b.vn", e.cart.lines[0].ExtraInfo["email"])

	_, _, err = client.Put(ctx, "/api/cart/11", rest.UpdateQuantityRequest{Quantity: 5}, &c)
	rq.NoError(err)
	rq.Equal(5, c.Items[0].Quantity)

	var count rest.CountResponse

	_, _, err = client.Get(ctx, "/api/cart/count", &count)
	rq.NoError(err)
	rq.Equal(5, count.Count)

	var quote entity.CartQuote

	_, _, err = client.Post(ctx, "/api/cart/quote", rest.QuoteRequest{Discount: 30000}, &quote)
	rq.NoError(err)
	rq.Equal(int64(30000), quote.Discount)

	_, _, err = client.Post(ctx, "/api/cart/sync", rest.SyncCartRequest{Items: []rest.CartLine{
		{VariantID: 11, Quantity: 1},
		{VariantID: 404, Quantity: 1, PriceType: "promo"},
	}}, &c)
	rq.NoError(err)
	rq.Equal([]int64{404}, c.Dropped)
	rq.Len(e.cart.lines, 2)
	rq.Equal(value.PriceTypeRetail, e.cart.lines[0].PriceType)

	_, _, err = client.Delete(ctx, "/api/cart/11", &c)
	rq.NoError(err)
	rq.Empty(c.Items)

	_, envelope, err = client.Delete(ctx, "/api/cart", &c)
	rq.NoError(err)
	rq.True(envelope.Success)
	rq.Empty(c.Items)
}

func TestCart_BadRequests(t *testing.T) {
	testCases := []struct {
		name       string
		call       func(client tests.APIClient) (*http.Response, tests.Envelope, error)
		statusCode int
		code       string
	}{
		{
			name: "Malformed body",
			call: func(client tests.APIClient) (*http.Response, tests.Envelope, error) {
				return client.PostRaw(context.Background(), "/api/cart/add", `{"variantId":`, nil)
			},
			statusCode: http.StatusBadRequest,
			code:       errcodes.ValidationError.String(),
		},
		{
			name: "Zero quantity on add",
			call: func(client tests.APIClient) (*http.Response, tests.Envelope, error) {
				return client.Post(context.Background(), "/api/cart/add", rest.CartLine{VariantID: 1}, nil)
			},
			statusCode: http.StatusBadRequest,
			code:       errcodes.ValidationError.String(),
		},
		{
			name: "Unknown price type",
			call: func(client tests.APIClient) (*http.Response, tests.Envelope, error) {
				return client.Post(context.Background(), "/api/cart/add",
					rest.CartLine{VariantID: 1, Quantity: 1, PriceType: "vip"}, nil)
			},
			statusCode: http.StatusBadRequest,
			code:       errcodes.ValidationError.String(),
		},
		{
			name: "Bad variant id",
			call: func(client tests.APIClient) (*http.Response, tests.Envelope, error) {
				return client.Put(context.Background(), "/api/cart/x", rest.UpdateQuantityRequest{Quantity: 1}, nil)
			},
			statusCode: http.StatusBadRequest,
			code:       errcodes.InvalidVariantID.String(),
		},
		{
			name: "Missing line",
			call: func(client tests.APIClient) (*http.Response, tests.Envelope, error) {
				return client.Put(context.Background(), "/api/cart/77", rest.UpdateQuantityRequest{Quantity: 1}, nil)
			},
			statusCode: http.StatusNotFound,
			code:       errcodes.CartItemNotFound.String(),
		},
		{
			name: "Negative discount",
			call: func(client tests.APIClient) (*http.Response, tests.Envelope, error) {
				return client.Post(context.Background(), "/api/cart/quote", rest.QuoteRequest{Discount: -1}, nil)
			},
			statusCode: http.StatusBadRequest,
			code:       errcodes.ValidationError.String(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			e := newEnv(t)

			resp, envelope, err := tc.call(authorized(e.client, "customer"))
			rq.NoError(err)
			rq.Equal(tc.statusCode, resp.StatusCode)
			rq.False(envelope.Success)
			rq.Equal(tc.code, envelope.Error.Code)
		})
	}
}
