package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
	"storefront/internal/domain/entity"
	"storefront/pkg/errcodes"
)

// CartRepository stores server carts in cart_items, one row per user and
// variant.
type CartRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewCartRepository builds a CartRepository on db.
func NewCartRepository(db *sqlx.DB) *CartRepository {
	return &CartRepository{db: db, now: time.Now}
}

// ListItems returns the lines of a user's cart, oldest first.
func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]entity.CartItem, error) {
	query := `
		SELECT user_id, variant_id, quantity, price_type, extra_info, created_at, updated_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at ASC, variant_id ASC`

	var schemas []cartItemSchema
	if err := r.db.SelectContext(ctx, &schemas, query, userID); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to list cart items")
	}

	items := make([]entity.CartItem, 0, len(schemas))

	for _, s := range schemas {
		item, err := s.toDomain()
		if err != nil {
			return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to decode cart item")
		}

		items = append(items, item)
	}

	return items, nil
}

// UpsertItems inserts lines or overwrites quantity, price type and extra info
// of existing ones; created_at of an existing line is kept.
func (r *CartRepository) UpsertItems(ctx context.Context, userID int64, items []entity.CartItem) error {
	query := `
		INSERT INTO cart_items (user_id, variant_id, quantity, price_type, extra_info, created_at, updated_at)
		VALUES (:user_id, :variant_id, :quantity, :price_type, :extra_info, :created_at, :updated_at)
		ON CONFLICT (user_id, variant_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    price_type = EXCLUDED.price_type,
		    extra_info = EXCLUDED.extra_info,
		    updated_at = EXCLUDED.updated_at`

	now := r.now()

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, item := range items {
			schema, err := fromCartItem(userID, item, now)
			if err != nil {
				return domain.WrapError(err, errcodes.InternalServerError, "failed to encode cart item")
			}

			if _, err = tx.NamedExecContext(ctx, query, schema); err != nil {
				return domain.WrapError(err, errcodes.InternalServerError, "failed to upsert cart item")
			}
		}
		return nil
	})
}

// AddItem inserts the line or adds its quantity to the stored one in a single
// statement, so concurrent adds never overwrite each other. Extra info is
// merged with the new keys winning. The update is skipped and ok is false when
// the summed quantity would exceed maxQuantity.
func (r *CartRepository) AddItem(
	ctx context.Context,
	userID int64,
	item entity.CartItem,
	maxQuantity int,
) (bool, error) {
	query := `
		INSERT INTO cart_items (user_id, variant_id, quantity, price_type, extra_info, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, variant_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    price_type = EXCLUDED.price_type,
		    extra_info = cart_items.extra_info || EXCLUDED.extra_info,
		    updated_at = EXCLUDED.updated_at
		WHERE cart_items.quantity + EXCLUDED.quantity <= $8
		RETURNING quantity`

	schema, err := fromCartItem(userID, item, r.now())
	if err != nil {
		return false, domain.WrapError(err, errcodes.InternalServerError, "failed to encode cart item")
	}

	var quantity int

	err = r.db.QueryRowxContext(ctx, query,
		schema.UserID, schema.VariantID, schema.Quantity, schema.PriceType,
		schema.ExtraInfo, schema.CreatedAt, schema.UpdatedAt, maxQuantity,
	).Scan(&quantity)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, domain.WrapError(err, errcodes.InternalServerError, "failed to add cart item")
	}

	return true, nil
}

// DeleteItems removes the given variants. No ids is a no-op.
func (r *CartRepository) DeleteItems(ctx context.Context, userID int64, variantIDs ...int64) error {
	if len(variantIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM cart_items WHERE user_id = ? AND variant_id IN (?)`, userID, variantIDs)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to build delete query")
	}

	if _, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to delete cart items")
	}

	return nil
}

// Clear removes every line of a user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to clear cart")
	}

	return nil
}
