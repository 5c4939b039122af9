package value

import (
	"strconv"
	"strings"
)

// ItemKey is the merge identity of a cart line: the variant plus the
// package/duration discriminator chosen by the customer.
type ItemKey struct {
	VariantID int64
	Duration  string
}

func (k ItemKey) String() string {
	if k.Duration == "" {
		return strconv.FormatInt(k.VariantID, 10)
	}

	return strconv.FormatInt(k.VariantID, 10) + ":" + strings.ToLower(k.Duration)
}

// Same compares keys ignoring the case of the duration label.
func (k ItemKey) Same(other ItemKey) bool {
	return k.VariantID == other.VariantID && strings.EqualFold(k.Duration, other.Duration)
}
