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

// ProductRepository reads the catalog and its pricing inputs.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository builds a ProductRepository on db.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ListProducts returns every product ordered by id.
func (r *ProductRepository) ListProducts(ctx context.Context) ([]entity.Product, error) {
	query := `SELECT id, name, slug FROM products ORDER BY id ASC`

	var schemas []productSchema
	if err := r.db.SelectContext(ctx, &schemas, query); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to list products")
	}

	return lo.Map(schemas, func(s productSchema, _ int) entity.Product { return s.toDomain() }), nil
}

// GetProduct returns ProductNotFound for an unknown id.
func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (entity.Product, error) {
	query := `SELECT id, name, slug FROM products WHERE id = $1`

	var schema productSchema
	if err := r.db.GetContext(ctx, &schema, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Product{}, domain.NewError(errcodes.ProductNotFound, "product not found")
		}
		return entity.Product{}, domain.WrapError(err, errcodes.InternalServerError, "failed to get product")
	}

	return schema.toDomain(), nil
}

// variantPricingQuery selects variants with their multipliers; NULL
// multipliers read as zero.
const variantPricingQuery = `
	SELECT v.id, v.product_id, v.package, v.duration, v.product_price_id, v.is_active,
	       COALESCE(pp.pct_ctv, 0)   AS pct_ctv,
	       COALESCE(pp.pct_khach, 0) AS pct_khach,
	       COALESCE(pp.pct_promo, 0) AS pct_promo
	FROM product_variants v
	LEFT JOIN product_prices pp ON pp.id = v.product_price_id`

// ListVariantPricing loads the variants of a product with their multipliers
// and supplier quotes.
func (r *ProductRepository) ListVariantPricing(ctx context.Context, productID int64) ([]entity.VariantPricing, error) {
	query := variantPricingQuery + ` WHERE v.product_id = $1 ORDER BY v.id ASC`

	var schemas []variantPricingSchema
	if err := r.db.SelectContext(ctx, &schemas, query, productID); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to list variants")
	}

	return r.withSupplyPrices(ctx, schemas)
}

// GetVariantPricing returns the requested variants keyed by id; unknown ids
// are absent from the map.
func (r *ProductRepository) GetVariantPricing(
	ctx context.Context,
	variantIDs []int64,
) (map[int64]entity.VariantPricing, error) {
	if len(variantIDs) == 0 {
		return map[int64]entity.VariantPricing{}, nil
	}

	query, args, err := sqlx.In(variantPricingQuery+` WHERE v.id IN (?)`, variantIDs)
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to build variant query")
	}

	var schemas []variantPricingSchema
	if err = r.db.SelectContext(ctx, &schemas, r.db.Rebind(query), args...); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to get variants")
	}

	variants, err := r.withSupplyPrices(ctx, schemas)
	if err != nil {
		return nil, err
	}

	return lo.KeyBy(variants, func(vp entity.VariantPricing) int64 { return vp.Variant.ID }), nil
}

// withSupplyPrices loads the supplier quotes of all price rows in one query.
// NULL, NaN and negative quotes are read as zero.
func (r *ProductRepository) withSupplyPrices(
	ctx context.Context,
	schemas []variantPricingSchema,
) ([]entity.VariantPricing, error) {
	if len(schemas) == 0 {
		return []entity.VariantPricing{}, nil
	}

	priceIDs := lo.Uniq(lo.Map(schemas, func(s variantPricingSchema, _ int) int64 { return s.ProductPriceID }))

	query, args, err := sqlx.In(`
		SELECT product_id,
		       GREATEST(COALESCE(NULLIF(price, 'NaN'), 0), 0) AS price
		FROM supply_prices
		WHERE product_id IN (?)`, priceIDs)
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to build supply price query")
	}

	var supply []supplyPriceSchema
	if err = r.db.SelectContext(ctx, &supply, r.db.Rebind(query), args...); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to list supply prices")
	}

	byPrice := lo.GroupBy(supply, func(s supplyPriceSchema) int64 { return s.ProductID })

	return lo.Map(schemas, func(s variantPricingSchema, _ int) entity.VariantPricing {
		rows := lo.Map(byPrice[s.ProductPriceID], func(sp supplyPriceSchema, _ int) entity.SupplyPrice {
			return entity.SupplyPrice{ProductID: sp.ProductID, Price: sp.Price}
		})

		return s.toDomain(rows)
	}), nil
}
