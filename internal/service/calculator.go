package service

import (
	"fmt"

	"commissionledger/internal/model"

	"github.com/shopspring/decimal"
)

var (
	maxRate     = decimal.NewFromInt(1)
	bpsExponent = int32(4)
)

// Calculator holds the per-tier rates, parsed once at startup.
type Calculator struct {
	tier1 decimal.Decimal
	tier2 decimal.Decimal
}

func NewCalculator(tier1Rate, tier2Rate string) (*Calculator, error) {
	t1, err := ParseRate(tier1Rate)
	if err != nil {
		return nil, fmt.Errorf("tier 1 rate: %w", err)
	}
	t2, err := ParseRate(tier2Rate)
	if err != nil {
		return nil, fmt.Errorf("tier 2 rate: %w", err)
	}
	return &Calculator{tier1: t1, tier2: t2}, nil
}

// ParseRate accepts a fraction in [0, 1] with at most four decimal places.
func ParseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, validationf("rate %q is not a decimal", s)
	}
	if rate.IsNegative() || rate.GreaterThan(maxRate) {
		return decimal.Zero, validationf("rate %s outside [0, 1]", rate)
	}
	if !rate.Equal(rate.Round(bpsExponent)) {
		return decimal.Zero, validationf("rate %s finer than one basis point", rate)
	}
	return rate, nil
}

func (c *Calculator) Rate(tier int) decimal.Decimal {
	if tier == model.Tier2 {
		return c.tier2
	}
	return c.tier1
}

// Commission returns orderAmount * rate rounded half-up to the minor unit.
func Commission(orderAmount int64, rate decimal.Decimal) (int64, error) {
	if orderAmount <= 0 {
		return 0, validationf("order amount must be positive, got %d", orderAmount)
	}
	return decimal.NewFromInt(orderAmount).Mul(rate).Round(0).IntPart(), nil
}

// RateBps converts a fractional rate to basis points (0.10 -> 1000).
func RateBps(rate decimal.Decimal) int64 {
	return rate.Shift(bpsExponent).Round(0).IntPart()
}
