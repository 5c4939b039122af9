// Package promo splits an aggregate discount over cart lines so that the
// shares always add up to the discount exactly.
package promo

import "github.com/shopspring/decimal"

// Item is a priced line; Quantity below 1 counts as 1.
type Item struct {
	Price    int64
	Quantity int
}

// Allocate distributes discount over prices proportionally to their value.
// Every line but the last gets round(discount*price/total), capped by what is
// left of the discount; the last line takes the remainder. Negative prices
// count as zero. Degenerate input yields zero shares.
func Allocate(prices []int64, discount int64) []int64 {
	weights := make([]decimal.Decimal, len(prices))
	for i, price := range prices {
		weights[i] = decimal.NewFromInt(max(0, price))
	}

	return allocate(weights, discount)
}

// AllocateByItems weights every item by price*quantity.
func AllocateByItems(items []Item, discount int64) []int64 {
	weights := make([]decimal.Decimal, len(items))
	for i, item := range items {
		weights[i] = decimal.NewFromInt(max(0, item.Price)).Mul(decimal.NewFromInt(int64(max(1, item.Quantity))))
	}

	return allocate(weights, discount)
}

// allocate works on decimal weights so that totals of large carts cannot
// overflow. Each share is at most discount and fits in an int64.
func allocate(weights []decimal.Decimal, discount int64) []int64 {
	shares := make([]int64, len(weights))
	if len(weights) == 0 || discount <= 0 {
		return shares
	}

	total := decimal.Sum(decimal.Zero, weights...)
	if !total.IsPositive() {
		return shares
	}

	d := decimal.NewFromInt(discount)
	remaining := discount

	last := len(weights) - 1
	for i, weight := range weights[:last] {
		share := d.Mul(weight).Div(total).Round(0).IntPart()
		share = min(max(share, 0), remaining)

		shares[i] = share
		remaining -= share
	}

	shares[last] = remaining

	return shares
}
