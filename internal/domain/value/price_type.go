package value

import "fmt"

// PriceType selects the price list a cart line is charged from.
type PriceType string

const (
	PriceTypeRetail PriceType = "retail"
	PriceTypePromo  PriceType = "promo"
	PriceTypeCtv    PriceType = "ctv"
)

// ParsePriceType validates a price type from a request. Empty means retail.
func ParsePriceType(s string) (PriceType, error) {
	switch PriceType(s) {
	case PriceTypeRetail, PriceTypePromo, PriceTypeCtv:
		return PriceType(s), nil
	case "":
		return PriceTypeRetail, nil
	default:
		return "", fmt.Errorf("unknown price type %q", s)
	}
}

func (p PriceType) String() string {
	return string(p)
}
