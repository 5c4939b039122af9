package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"storefront/internal/domain"
	"storefront/internal/domain/entity"
	"storefront/pkg/errcodes"
)

// refreshLockKey is the advisory lock id serializing view refreshes across
// instances.
const refreshLockKey int64 = 0x736f6c64 // "sold"

// SoldCountRepository counts orders and owns the product_sold_count view.
type SoldCountRepository struct {
	db *sqlx.DB
}

// NewSoldCountRepository builds a SoldCountRepository on db.
func NewSoldCountRepository(db *sqlx.DB) *SoldCountRepository {
	return &SoldCountRepository{db: db}
}

// CountSold sums ordered quantities over live and archived orders, ignoring
// cancelled ones.
func (r *SoldCountRepository) CountSold(ctx context.Context, productID int64) (int64, error) {
	query := `
		SELECT
			(SELECT COALESCE(SUM(quantity), 0) FROM orders
			 WHERE product_id = $1 AND status <> 'cancelled')
			+
			(SELECT COALESCE(SUM(quantity), 0) FROM archived_orders
			 WHERE product_id = $1 AND status <> 'cancelled')`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, productID); err != nil {
		return 0, domain.WrapError(err, errcodes.InternalServerError, "failed to count sold quantity")
	}

	return count, nil
}

// ListSoldCounts returns the top limit view rows, highest count first.
func (r *SoldCountRepository) ListSoldCounts(ctx context.Context, limit int) ([]entity.SoldCountSnapshot, error) {
	query := `
		SELECT sc.product_id, COALESCE(p.name, '') AS name, sc.sold_count, sc.updated_at
		FROM product_sold_count sc
		LEFT JOIN products p ON p.id = sc.product_id
		ORDER BY sc.sold_count DESC, sc.product_id ASC
		LIMIT $1`

	var schemas []soldCountSchema
	if err := r.db.SelectContext(ctx, &schemas, query, limit); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to list sold counts")
	}

	return lo.Map(schemas, func(s soldCountSchema, _ int) entity.SoldCountSnapshot { return s.toDomain() }), nil
}

// GetSoldCount returns SoldCountNotFound for a product missing from the view.
func (r *SoldCountRepository) GetSoldCount(ctx context.Context, productID int64) (entity.SoldCountSnapshot, error) {
	query := `
		SELECT sc.product_id, COALESCE(p.name, '') AS name, sc.sold_count, sc.updated_at
		FROM product_sold_count sc
		LEFT JOIN products p ON p.id = sc.product_id
		WHERE sc.product_id = $1`

	var schema soldCountSchema
	if err := r.db.GetContext(ctx, &schema, query, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.SoldCountSnapshot{}, domain.NewError(errcodes.SoldCountNotFound, "sold count not found")
		}
		return entity.SoldCountSnapshot{}, domain.WrapError(err, errcodes.InternalServerError, "failed to get sold count")
	}

	return schema.toDomain(), nil
}

// SoldCountStats aggregates the whole view in one query.
func (r *SoldCountRepository) SoldCountStats(ctx context.Context) (entity.SoldCountStats, error) {
	query := `
		SELECT COUNT(*) AS total_products,
		       COALESCE(SUM(sold_count), 0) AS total_sold,
		       MAX(updated_at) AS last_updated
		FROM product_sold_count`

	var schema soldCountStatsSchema
	if err := r.db.GetContext(ctx, &schema, query); err != nil {
		return entity.SoldCountStats{}, domain.WrapError(err, errcodes.InternalServerError, "failed to get sold count stats")
	}

	return schema.toDomain(), nil
}

// RefreshSoldCount rebuilds the view under a transaction-scoped advisory
// lock. It returns false without refreshing when the lock is taken.
func (r *SoldCountRepository) RefreshSoldCount(ctx context.Context) (bool, error) {
	var acquired bool

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &acquired, `SELECT pg_try_advisory_xact_lock($1)`, refreshLockKey); err != nil {
			return domain.WrapError(err, errcodes.InternalServerError, "failed to take refresh lock")
		}

		if !acquired {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY product_sold_count`); err != nil {
			return domain.WrapError(err, errcodes.InternalServerError, "failed to refresh sold count view")
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return acquired, nil
}
