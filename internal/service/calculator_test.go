package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommission(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		rate   string
		want   int64
	}{
		{"Tier 1 on one million", 1000000, "0.10", 100000},
		{"Tier 2 on one million", 1000000, "0.05", 50000},
		{"Half rounds up", 10, "0.05", 1},
		{"Below half rounds down", 9, "0.05", 0},
		{"Above half rounds up", 15, "0.05", 1},
		{"Basis point rate", 123457, "0.0125", 1543},
		{"Zero rate", 5000, "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Commission(tt.amount, decimal.RequireFromString(tt.rate))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Non-positive amount", func(t *testing.T) {
		_, err := Commission(0, decimal.RequireFromString("0.10"))
		assert.ErrorIs(t, err, ErrValidation)

		_, err = Commission(-1, decimal.RequireFromString("0.10"))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestParseRate(t *testing.T) {
	for _, ok := range []string{"0", "0.10", "1", "0.0001", "0.12500"} {
		_, err := ParseRate(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "ten", "-0.01", "1.01", "0.00001"} {
		_, err := ParseRate(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestNewCalculator(t *testing.T) {
	calc, err := NewCalculator("0.10", "0.05")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), RateBps(calc.Rate(1)))
	assert.Equal(t, int64(500), RateBps(calc.Rate(2)))

	_, err = NewCalculator("0.10", "2")
	assert.Error(t, err)
}
