// Package amount holds the bounds and overflow-checked arithmetic used for
// quantities, unit prices and totals.
package amount

import (
	"math"
	"math/bits"
)

const (
	// MaxQuantity is the largest quantity a single line item may carry.
	MaxQuantity int64 = math.MaxInt32
	// MaxPrice is the largest unit price a product may carry.
	MaxPrice int64 = math.MaxInt32
)

// Add returns a+b and false when the sum does not fit in int64.
func Add(a, b int64) (int64, bool) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, false
	}
	return s, true
}

// Mul returns a*b and false when the product does not fit in int64.
func Mul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(abs(a), abs(b))
	if hi != 0 {
		return 0, false
	}
	if neg {
		if lo > 1<<63 {
			return 0, false
		}
		return -int64(lo), true
	}
	if lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

func abs(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
