package persistence

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/value"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

type productSchema struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Slug string `db:"slug"`
}

func (s productSchema) toDomain() entity.Product {
	return entity.Product{ID: s.ID, Name: s.Name, Slug: s.Slug}
}

// variantPricingSchema is a variant joined with its price row.
type variantPricingSchema struct {
	ID             int64           `db:"id"`
	ProductID      int64           `db:"product_id"`
	Package        string          `db:"package"`
	Duration       string          `db:"duration"`
	ProductPriceID int64           `db:"product_price_id"`
	IsActive       bool            `db:"is_active"`
	PctCtv         decimal.Decimal `db:"pct_ctv"`
	PctKhach       decimal.Decimal `db:"pct_khach"`
	PctPromo       decimal.Decimal `db:"pct_promo"`
}

// toDomain resolves the ratio scales: pct_ctv and pct_khach are stored as
// multipliers, pct_promo is found both as 0.15 and as 15.
func (s variantPricingSchema) toDomain(supply []entity.SupplyPrice) entity.VariantPricing {
	return entity.VariantPricing{
		Variant: entity.Variant{
			ID:             s.ID,
			ProductID:      s.ProductID,
			Package:        s.Package,
			Duration:       s.Duration,
			ProductPriceID: s.ProductPriceID,
			Active:         s.IsActive,
		},
		Price: entity.ProductPrice{
			ID:       s.ProductPriceID,
			PctCtv:   value.FractionFromDecimal(s.PctCtv),
			PctKhach: value.FractionFromDecimal(s.PctKhach),
			PctPromo: value.InferRatio(s.PctPromo),
		},
		SupplyPrices: supply,
	}
}

type supplyPriceSchema struct {
	ProductID int64           `db:"product_id"`
	Price     decimal.Decimal `db:"price"`
}

type soldCountSchema struct {
	ProductID int64     `db:"product_id"`
	Name      string    `db:"name"`
	SoldCount int64     `db:"sold_count"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s soldCountSchema) toDomain() entity.SoldCountSnapshot {
	return entity.SoldCountSnapshot{
		ProductID: s.ProductID,
		Name:      s.Name,
		SoldCount: s.SoldCount,
		UpdatedAt: s.UpdatedAt,
	}
}

type soldCountStatsSchema struct {
	TotalProducts int64        `db:"total_products"`
	TotalSold     int64        `db:"total_sold"`
	LastUpdated   sql.NullTime `db:"last_updated"`
}

func (s soldCountStatsSchema) toDomain() entity.SoldCountStats {
	stats := entity.SoldCountStats{TotalProducts: s.TotalProducts, TotalSold: s.TotalSold}
	if s.LastUpdated.Valid {
		stats.LastUpdated = &s.LastUpdated.Time
	}

	return stats
}

type cartItemSchema struct {
	UserID    int64     `db:"user_id"`
	VariantID int64     `db:"variant_id"`
	Quantity  int       `db:"quantity"`
	PriceType string    `db:"price_type"`
	ExtraInfo []byte    `db:"extra_info"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func fromCartItem(userID int64, item entity.CartItem, now time.Time) (cartItemSchema, error) {
	extra := []byte(`{}`)

	if len(item.ExtraInfo) > 0 {
		b, err := json.Marshal(item.ExtraInfo)
		if err != nil {
			return cartItemSchema{}, err //nolint:wrapcheck
		}

		extra = b
	}

	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	return cartItemSchema{
		UserID:    userID,
		VariantID: item.VariantID,
		Quantity:  item.Quantity,
		PriceType: item.PriceType.String(),
		ExtraInfo: extra,
		CreatedAt: now,
		UpdatedAt: updatedAt,
	}, nil
}

func (s cartItemSchema) toDomain() (entity.CartItem, error) {
	priceType, err := value.ParsePriceType(s.PriceType)
	if err != nil {
		priceType = value.PriceTypeRetail
	}

	var extra map[string]string

	if len(s.ExtraInfo) > 0 {
		if err = json.Unmarshal(s.ExtraInfo, &extra); err != nil {
			return entity.CartItem{}, err //nolint:wrapcheck
		}
	}

	if len(extra) == 0 {
		extra = nil
	}

	return entity.CartItem{
		VariantID: s.VariantID,
		Quantity:  s.Quantity,
		PriceType: priceType,
		ExtraInfo: extra,
		UpdatedAt: s.UpdatedAt,
	}, nil
}
