package tests

import (
	"math/rand"
	"time"
)

// Randomizer drives property-style tests over generated carts and prices.
type Randomizer struct {
	Bool   func() bool
	Intn   func(n int) int
	Int63n func(n int64) int64
}

func NewRandomizer() Randomizer {
	random := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // for tests

	return Randomizer{
		Bool:   func() bool { return random.Intn(2) == 0 }, //nolint:mnd // skip
		Intn:   random.Intn,
		Int63n: random.Int63n,
	}
}

// Prices returns n random amounts in [0, upper).
func (r Randomizer) Prices(n int, upper int64) []int64 {
	prices := make([]int64, n)
	for i := range prices {
		prices[i] = r.Int63n(upper)
	}

	return prices
}
