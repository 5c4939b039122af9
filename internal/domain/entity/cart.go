package entity

import (
	"time"

	"storefront/internal/domain/value"
)

// CartItem is one cart line, keyed by variant and duration.
type CartItem struct {
	VariantID int64             `json:"variantId"`
	ProductID int64             `json:"productId,omitempty"`
	Duration  string            `json:"duration,omitempty"`
	Quantity  int               `json:"quantity"`
	PriceType value.PriceType   `json:"priceType"`
	UnitPrice int64             `json:"unitPrice"`
	ExtraInfo map[string]string `json:"extraInfo,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

func (c CartItem) Key() value.ItemKey {
	return value.ItemKey{VariantID: c.VariantID, Duration: c.Duration}
}

// LineTotal charges at least one unit per line.
func (c CartItem) LineTotal() int64 {
	return c.UnitPrice * int64(max(1, c.Quantity))
}

// Cart is the authoritative server cart. Dropped lists variants that were
// rejected during a sync because they no longer exist or are retired.
type Cart struct {
	Items   []CartItem `json:"items"`
	Dropped []int64    `json:"dropped,omitempty"`
}

// Count sums the quantities of all lines.
func (c Cart) Count() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}

	return total
}

// Subtotal sums the line totals before discounts.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}

	return total
}

// QuoteLine is a cart line with its share of the cart discount.
type QuoteLine struct {
	Item      CartItem `json:"item"`
	LineTotal int64    `json:"lineTotal"`
	Discount  int64    `json:"discount"`
	Payable   int64    `json:"payable"`
}

// CartQuote is a checkout preview with the cart-level discount split over
// the lines.
type CartQuote struct {
	Lines    []QuoteLine `json:"lines"`
	Subtotal int64       `json:"subtotal"`
	Discount int64       `json:"discount"`
	Total    int64       `json:"total"`
}

// Principal is the authenticated owner of a server cart.
type Principal struct {
	UserID int64
	Role   string
}

const RoleCtv = "ctv"
