package entity

import (
	"github.com/shopspring/decimal"

	"storefront/internal/domain/value"
)

type Product struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProductPrice holds the pricing multipliers of a product price row.
type ProductPrice struct {
	ID       int64       `json:"id"`
	PctCtv   value.Ratio `json:"pct_ctv"`
	PctKhach value.Ratio `json:"pct_khach"`
	PctPromo value.Ratio `json:"pct_promo"`
}

// SupplyPrice is one supplier cost quote; ProductID references a
// ProductPrice row.
type SupplyPrice struct {
	ProductID int64           `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}

// Variant is a purchasable package + duration of a product.
type Variant struct {
	ID             int64  `json:"id"`
	ProductID      int64  `json:"product_id"`
	Package        string `json:"package"`
	Duration       string `json:"duration"`
	ProductPriceID int64  `json:"product_price_id"`
	Active         bool   `json:"active"`
}

// VariantPricing is everything the pricing engine needs for one variant.
type VariantPricing struct {
	Variant      Variant
	Price        ProductPrice
	SupplyPrices []SupplyPrice
}

// Pricing is the computed price set of a variant, in đồng.
type Pricing struct {
	PriceMax   int64 `json:"price_max"`
	CtvPrice   int64 `json:"ctv_price"`
	SalePrice  int64 `json:"sale_price"`
	PromoPrice int64 `json:"promo_price"`
}

type VariantOffer struct {
	Variant Variant `json:"variant"`
	Pricing Pricing `json:"pricing"`
}

type ProductDetail struct {
	Product   Product        `json:"product"`
	Offers    []VariantOffer `json:"offers"`
	SoldCount int64          `json:"sold_count"`
}
