// Package stats serves product sold counts: live counts behind the cache and
// the periodically refreshed sold-count view.
package stats

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/domain"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/service/pricing"
	"storefront/internal/infrastructure/cache"
	"storefront/pkg/contextx"
	"storefront/pkg/errcodes"
	"storefront/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

const (
	DefaultTTL              = 5 * time.Minute
	DefaultBatchConcurrency = 16

	keyNamespace  = "product"
	keySoldCount  = "sold_count"
	keyTopSelling = "top_selling"
)

// Source selects where a cache miss reads the sold count from.
type Source string

const (
	SourceLive      Source = "live"
	SourceViewFirst Source = "view-first"
)

// ProductRepository loads catalog rows and their pricing inputs.
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]entity.Product, error)
	GetProduct(ctx context.Context, id int64) (entity.Product, error)
	ListVariantPricing(ctx context.Context, productID int64) ([]entity.VariantPricing, error)
}

// OrderCounter sums ordered quantities over live and archived orders.
type OrderCounter interface {
	CountSold(ctx context.Context, productID int64) (int64, error)
}

// SnapshotReader reads one row of the sold-count view.
type SnapshotReader interface {
	GetSoldCount(ctx context.Context, productID int64) (entity.SoldCountSnapshot, error)
}

// Config tunes the cached stats service.
type Config struct {
	TTL              time.Duration
	BatchConcurrency int
	Source           Source
}

// Service serves product listings, details and sold counts through the
// versioned cache.
type Service struct {
	products ProductRepository
	orders   OrderCounter
	view     SnapshotReader
	cache    *cache.Service
	keys     cache.Keyspace
	cfg      Config
}

// NewService wires the live strategy. view may be nil unless cfg.Source is
// SourceViewFirst.
func NewService(
	products ProductRepository,
	orders OrderCounter,
	view SnapshotReader,
	cacheService *cache.Service,
	cfg Config,
) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}

	if cfg.Source == "" || view == nil {
		cfg.Source = SourceLive
	}

	return &Service{
		products: products,
		orders:   orders,
		view:     view,
		cache:    cacheService,
		keys:     cache.NewKeyspace(cacheService, keyNamespace),
		cfg:      cfg,
	}
}

func (s *Service) soldCountKey(ctx context.Context, productID int64) string {
	return s.keys.Key(ctx, keySoldCount, strconv.FormatInt(productID, 10))
}

// GetProductSoldCount is cache-first; a miss recomputes from the source and
// stores the result for the configured TTL.
func (s *Service) GetProductSoldCount(ctx context.Context, productID int64) (int64, error) {
	count, err := cache.GetOrSet(ctx, s.cache, s.soldCountKey(ctx, productID), s.cfg.TTL,
		func(ctx context.Context) (int64, error) {
			return s.computeSoldCount(ctx, productID)
		},
	)
	if err != nil {
		return 0, domain.WrapError(err, errcodes.SoldCountComputeErr, "failed to compute sold count")
	}

	return count, nil
}

func (s *Service) computeSoldCount(ctx context.Context, productID int64) (int64, error) {
	if s.cfg.Source == SourceViewFirst {
		snapshot, err := s.view.GetSoldCount(ctx, productID)
		if err == nil {
			return snapshot.SoldCount, nil
		}

		if !domain.HasCode(err, errcodes.SoldCountNotFound) {
			logger(ctx).Warn("sold count view read failed, counting live",
				slog.Int64(logx.FieldProductID, productID),
				logx.Error(err),
			)
		}
	}

	count, err := s.orders.CountSold(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("orders.CountSold: %w", err)
	}

	return count, nil
}

// InvalidateProductCache drops the product's count and every cached
// top-selling list, which may contain it.
func (s *Service) InvalidateProductCache(ctx context.Context, productID int64) {
	s.cache.Del(ctx, s.soldCountKey(ctx, productID))
	removed := s.cache.DelPattern(ctx, s.keys.Pattern(ctx, keyTopSelling, "*"))

	logger(ctx).Debug("product cache invalidated",
		slog.Int64(logx.FieldProductID, productID),
		slog.Int("top_selling_removed", removed),
	)
}

// InvalidateAll moves the product namespace to a new version.
func (s *Service) InvalidateAll(ctx context.Context) bool {
	_, ok := s.keys.BumpVersion(ctx)

	return ok
}

// TopSelling returns the limit best-selling products, cached per limit.
func (s *Service) TopSelling(ctx context.Context, limit int) ([]entity.TopSeller, error) {
	key := s.keys.Key(ctx, keyTopSelling, strconv.Itoa(limit))

	top, err := cache.GetOrSet(ctx, s.cache, key, s.cfg.TTL, func(ctx context.Context) ([]entity.TopSeller, error) {
		return s.computeTopSelling(ctx, limit)
	})
	if err != nil {
		return nil, domain.WrapError(err, errcodes.SoldCountComputeErr, "failed to compute top selling products")
	}

	return top, nil
}

func (s *Service) computeTopSelling(ctx context.Context, limit int) ([]entity.TopSeller, error) {
	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("products.ListProducts: %w", err)
	}

	counts, err := s.soldCounts(ctx, products)
	if err != nil {
		return nil, err
	}

	top := make([]entity.TopSeller, len(products))
	for i, p := range products {
		top[i] = entity.TopSeller{Product: p, SoldCount: counts[i]}
	}

	slices.SortFunc(top, func(a, b entity.TopSeller) int {
		if c := cmp.Compare(b.SoldCount, a.SoldCount); c != 0 {
			return c
		}

		return cmp.Compare(a.Product.ID, b.Product.ID)
	})

	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}

	return top, nil
}

// soldCounts resolves the counts of products concurrently, cache first.
func (s *Service) soldCounts(ctx context.Context, products []entity.Product) ([]int64, error) {
	counts := make([]int64, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)

	for i, p := range products {
		g.Go(func() error {
			count, err := s.GetProductSoldCount(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("product %d: %w", p.ID, err)
			}

			counts[i] = count

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck
	}

	return counts, nil
}

// CacheStats probes the cache once per product. It is meant for monitoring,
// not for the request path.
func (s *Service) CacheStats(ctx context.Context) (entity.CacheStats, error) {
	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return entity.CacheStats{}, fmt.Errorf("products.ListProducts: %w", err)
	}

	stats := entity.CacheStats{
		TotalProducts:  len(products),
		RedisAvailable: s.cache.IsAvailable(),
	}

	if len(products) == 0 || !stats.RedisAvailable {
		return stats, nil
	}

	cached := make([]bool, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)

	for i, p := range products {
		g.Go(func() error {
			cached[i] = s.cache.Exists(gctx, s.soldCountKey(gctx, p.ID))

			return nil
		})
	}

	_ = g.Wait()

	for _, ok := range cached {
		if ok {
			stats.CachedProducts++
		}
	}

	rate := float64(stats.CachedProducts) / float64(stats.TotalProducts) * 100
	stats.CacheHitRate = math.Round(rate*100) / 100

	return stats, nil
}

// WarmCache loads every product's sold count into the cache and returns how
// many products were resolved.
func (s *Service) WarmCache(ctx context.Context) (int, error) {
	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("products.ListProducts: %w", err)
	}

	if _, err = s.soldCounts(ctx, products); err != nil {
		return 0, err
	}

	logger(ctx).Info("sold count cache warmed", slog.Int("products", len(products)))

	return len(products), nil
}

// ProductDetail prices every active variant and attaches the sold count.
func (s *Service) ProductDetail(ctx context.Context, productID int64) (entity.ProductDetail, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return entity.ProductDetail{}, fmt.Errorf("products.GetProduct: %w", err)
	}

	variants, err := s.products.ListVariantPricing(ctx, productID)
	if err != nil {
		return entity.ProductDetail{}, fmt.Errorf("products.ListVariantPricing: %w", err)
	}

	offers := make([]entity.VariantOffer, 0, len(variants))

	for _, vp := range variants {
		if !vp.Variant.Active {
			continue
		}

		offers = append(offers, entity.VariantOffer{
			Variant: vp.Variant,
			Pricing: pricing.ForVariant(vp),
		})
	}

	sold, err := s.GetProductSoldCount(ctx, productID)
	if err != nil {
		return entity.ProductDetail{}, err
	}

	return entity.ProductDetail{
		Product:   product,
		Offers:    offers,
		SoldCount: sold,
	}, nil
}
