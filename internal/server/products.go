package server

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain/entity"
	"storefront/pkg/errcodes"
	"storefront/pkg/httpx/reply"
	"storefront/pkg/httpx/req"
	"storefront/pkg/rest"
)

const (
	defaultListLimit = 20
	defaultTopLimit  = 10
	maxLimit         = 100
)

type statsService interface {
	InvalidateProductCache(ctx context.Context, productID int64)
	TopSelling(ctx context.Context, limit int) ([]entity.TopSeller, error)
	CacheStats(ctx context.Context) (entity.CacheStats, error)
	WarmCache(ctx context.Context) (int, error)
	ProductDetail(ctx context.Context, productID int64) (entity.ProductDetail, error)
}

type soldCountView interface {
	ListWithSoldCount(ctx context.Context, limit int) ([]entity.SoldCountSnapshot, error)
	GetSoldCount(ctx context.Context, productID int64) (entity.SoldCountSnapshot, error)
	Stats(ctx context.Context) (entity.SoldCountStats, error)
	Refresh(ctx context.Context) error
}

// ProductServer serves the cached product endpoints and the sold-count view.
type ProductServer struct {
	stats statsService
	view  soldCountView
}

func NewProductServer(stats statsService, view soldCountView) ProductServer {
	return ProductServer{
		stats: stats,
		view:  view,
	}
}

func (s ProductServer) getProductsWithSoldCount(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	limit, err := req.QueryInt(r, "limit", defaultListLimit, maxLimit)
	if err != nil {
		return fmt.Errorf("req.QueryInt: %w", err)
	}

	rows, err := s.view.ListWithSoldCount(ctx, limit)
	if err != nil {
		return fmt.Errorf("view.ListWithSoldCount: %w", err)
	}

	reply.OK(ctx, w, rows)

	return nil
}

func (s ProductServer) getProductSoldCount(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := req.PathInt64(r.PathValue("id"), errcodes.InvalidProductID)
	if err != nil {
		return fmt.Errorf("req.PathInt64: %w", err)
	}

	snapshot, err := s.view.GetSoldCount(ctx, id)
	if err != nil {
		return fmt.Errorf("view.GetSoldCount: %w", err)
	}

	reply.OK(ctx, w, snapshot)

	return nil
}

func (s ProductServer) getSoldCountStats(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	stats, err := s.view.Stats(ctx)
	if err != nil {
		return fmt.Errorf("view.Stats: %w", err)
	}

	reply.OK(ctx, w, stats)

	return nil
}

func (s ProductServer) postRefreshSoldCount(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	if err := s.view.Refresh(ctx); err != nil {
		return fmt.Errorf("view.Refresh: %w", err)
	}

	reply.OK(ctx, w, rest.RefreshResponse{Refreshed: true})

	return nil
}

func (s ProductServer) getTopSelling(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	limit, err := req.QueryInt(r, "limit", defaultTopLimit, maxLimit)
	if err != nil {
		return fmt.Errorf("req.QueryInt: %w", err)
	}

	top, err := s.stats.TopSelling(ctx, limit)
	if err != nil {
		return fmt.Errorf("stats.TopSelling: %w", err)
	}

	reply.OK(ctx, w, top)

	return nil
}

func (s ProductServer) postInvalidateCache(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := req.PathInt64(r.PathValue("id"), errcodes.InvalidProductID)
	if err != nil {
		return fmt.Errorf("req.PathInt64: %w", err)
	}

	s.stats.InvalidateProductCache(ctx, id)

	reply.OK(ctx, w, rest.InvalidateResponse{ProductID: id, Invalidated: true})

	return nil
}

func (s ProductServer) postWarmCache(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	warmed, err := s.stats.WarmCache(ctx)
	if err != nil {
		return fmt.Errorf("stats.WarmCache: %w", err)
	}

	reply.OK(ctx, w, rest.WarmCacheResponse{Warmed: warmed})

	return nil
}

func (s ProductServer) getCacheStats(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	stats, err := s.stats.CacheStats(ctx)
	if err != nil {
		return fmt.Errorf("stats.CacheStats: %w", err)
	}

	reply.OK(ctx, w, stats)

	return nil
}

func (s ProductServer) getProduct(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := req.PathInt64(r.PathValue("id"), errcodes.InvalidProductID)
	if err != nil {
		return fmt.Errorf("req.PathInt64: %w", err)
	}

	detail, err := s.stats.ProductDetail(ctx, id)
	if err != nil {
		return fmt.Errorf("stats.ProductDetail: %w", err)
	}

	reply.OK(ctx, w, detail)

	return nil
}
