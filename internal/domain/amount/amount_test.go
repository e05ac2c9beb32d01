package amount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		want int64
		ok   bool
	}{
		{"small", 2, 3, 5, true},
		{"negative", -7, 3, -4, true},
		{"max", math.MaxInt64 - 1, 1, math.MaxInt64, true},
		{"min", math.MinInt64 + 1, -1, math.MinInt64, true},
		{"positive overflow", math.MaxInt64, 1, 0, false},
		{"negative overflow", math.MinInt64, -1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Add(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		want int64
		ok   bool
	}{
		{"zero", 0, math.MaxInt64, 0, true},
		{"small", 6, 7, 42, true},
		{"negative", -6, 7, -42, true},
		{"bounds", MaxQuantity, MaxPrice, MaxQuantity * MaxPrice, true},
		{"min", math.MinInt64 / 2, 2, math.MinInt64, true},
		{"overflow", 4_000_000_000, 4_000_000_000, 0, false},
		{"negative overflow", math.MinInt64, -1, 0, false},
		{"min times two", math.MinInt64, 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Mul(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
