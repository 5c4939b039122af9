// Package pricing computes displayed prices of product variants from the
// pricing multipliers and supplier quotes. All functions are pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/value"
)

const roundingUnit = 1000

var (
	unit = decimal.NewFromInt(roundingUnit) //nolint:gochecknoglobals
	one  = decimal.NewFromInt(1)            //nolint:gochecknoglobals
)

// Input describes one pricing computation. PriceMaxOverride skips the supply
// lookup when the caller already resolved the maximum quote.
type Input struct {
	ProductPriceID   int64
	PctCtv           value.Ratio
	PctKhach         value.Ratio
	PctPromo         value.Ratio
	SupplyPrices     []entity.SupplyPrice
	PriceMaxOverride *decimal.Decimal
}

// FindMaxSupplyPrice returns the highest quote for productPriceID, or zero.
// Negative quotes count as zero.
func FindMaxSupplyPrice(productPriceID int64, rows []entity.SupplyPrice) decimal.Decimal {
	highest := decimal.Zero

	for _, row := range rows {
		if row.ProductID != productPriceID {
			continue
		}

		if row.Price.GreaterThan(highest) {
			highest = row.Price
		}
	}

	return highest
}

// ComputeSalePrice is pctCtv * priceMax * pctKhach rounded to the nearest
// 1,000 and floored at 0.
func ComputeSalePrice(pctCtv, pctKhach value.Ratio, priceMax decimal.Decimal) int64 {
	return roundToUnit(pctCtv.Decimal().Mul(priceMax).Mul(pctKhach.Decimal()))
}

// ComputePromoPrice is salePrice * (1 - pctPromo) rounded to the nearest
// 1,000 and floored at 0.
func ComputePromoPrice(salePrice int64, pctPromo value.Ratio) int64 {
	return roundToUnit(decimal.NewFromInt(salePrice).Mul(one.Sub(pctPromo.Decimal())))
}

// ComputeCtvPrice is the collaborator price: pctCtv * priceMax without the
// customer multiplier.
func ComputeCtvPrice(pctCtv value.Ratio, priceMax decimal.Decimal) int64 {
	return roundToUnit(pctCtv.Decimal().Mul(priceMax))
}

// ComputePricing derives all four displayed prices of one variant. The
// maximum supplier quote is rounded to whole units.
func ComputePricing(in Input) entity.Pricing {
	priceMax := FindMaxSupplyPrice(in.ProductPriceID, in.SupplyPrices)
	if in.PriceMaxOverride != nil {
		priceMax = *in.PriceMaxOverride
	}

	sale := ComputeSalePrice(in.PctCtv, in.PctKhach, priceMax)

	return entity.Pricing{
		PriceMax:   priceMax.Round(0).IntPart(),
		CtvPrice:   ComputeCtvPrice(in.PctCtv, priceMax),
		SalePrice:  sale,
		PromoPrice: ComputePromoPrice(sale, in.PctPromo),
	}
}

// ForVariant prices a variant from its stored pricing inputs.
func ForVariant(vp entity.VariantPricing) entity.Pricing {
	return ComputePricing(Input{
		ProductPriceID: vp.Price.ID,
		PctCtv:         vp.Price.PctCtv,
		PctKhach:       vp.Price.PctKhach,
		PctPromo:       vp.Price.PctPromo,
		SupplyPrices:   vp.SupplyPrices,
	})
}

// PriceFor picks the unit price charged for a price type. A promo line
// without an active promotion falls back to the sale price.
func PriceFor(p entity.Pricing, priceType value.PriceType) int64 {
	switch priceType {
	case value.PriceTypePromo:
		if p.PromoPrice > 0 {
			return p.PromoPrice
		}

		return p.SalePrice
	case value.PriceTypeCtv:
		return p.CtvPrice
	default:
		return p.SalePrice
	}
}

func roundToUnit(amount decimal.Decimal) int64 {
	rounded := amount.Div(unit).Round(0).Mul(unit)
	if rounded.IsNegative() {
		return 0
	}

	return rounded.IntPart()
}
