package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAfford(t *testing.T) {
	tests := []struct {
		name       string
		cash       int64
		price, qty int64
		want       bool
	}{
		{"exact", 100, 10, 10, true},
		{"short by one", 99, 10, 10, false},
		{"product wraps negative", 10_000, 1 << 62, 2, false},
		{"product wraps small", 10_000, 1 << 62, 4, false},
		{"largest values", math.MaxInt64, MaxPrice, MaxQuantity, true},
		{"negative cash", -1, 1, 1, false},
		{"zero quantity", 100, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAfford(tt.cash, tt.price, tt.qty))
		})
	}
}
