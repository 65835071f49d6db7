package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/urishop/api/internal/domain"
)

const (
	defaultFreeShippingThreshold int64 = 50000
	defaultFlatShippingCost      int64 = 1500
)

var defaultTaxRate = decimal.RequireFromString("0.21")

// ErrInvalidLineItem reports a line item with a negative price or a non-positive quantity.
var ErrInvalidLineItem = errors.New("order: invalid line item")

// PricingRules parameterise the totals derivation. Amounts are in the currency's minor unit.
type PricingRules struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold int64
	FlatShippingCost      int64
}

// DefaultPricingRules returns the storefront's standard rules: 21% tax, free shipping from 50000.
func DefaultPricingRules() PricingRules {
	return PricingRules{
		TaxRate:               defaultTaxRate,
		FreeShippingThreshold: defaultFreeShippingThreshold,
		FlatShippingCost:      defaultFlatShippingCost,
	}
}

// PricingCalculator derives order totals from line items. It performs no I/O.
type PricingCalculator struct {
	rules PricingRules
}

// NewPricingCalculator validates the rules and returns a calculator.
func NewPricingCalculator(rules PricingRules) (*PricingCalculator, error) {
	if rules.TaxRate.IsNegative() {
		return nil, errors.New("pricing calculator: tax rate must not be negative")
	}
	if rules.FreeShippingThreshold < 0 || rules.FlatShippingCost < 0 {
		return nil, errors.New("pricing calculator: shipping amounts must not be negative")
	}
	return &PricingCalculator{rules: rules}, nil
}

// Rules returns the rules the calculator was built with.
func (c *PricingCalculator) Rules() PricingRules {
	return c.rules
}

// PriceItems returns copies of the items with Subtotal recomputed as price * quantity.
func (c *PricingCalculator) PriceItems(items []domain.LineItem) ([]domain.LineItem, error) {
	priced := make([]domain.LineItem, len(items))
	for i, item := range items {
		if err := checkLineItem(i, item); err != nil {
			return nil, err
		}
		item.Subtotal = item.Price * int64(item.Quantity)
		priced[i] = item
	}
	return priced, nil
}

// CalculateTotals computes subtotal, tax rounded half-up, shipping and total for the items.
func (c *PricingCalculator) CalculateTotals(items []domain.LineItem) (domain.Pricing, error) {
	var subtotal int64
	for i, item := range items {
		if err := checkLineItem(i, item); err != nil {
			return domain.Pricing{}, err
		}
		subtotal += item.Price * int64(item.Quantity)
	}

	tax := decimal.NewFromInt(subtotal).Mul(c.rules.TaxRate).Round(0).IntPart()

	shipping := c.rules.FlatShippingCost
	if subtotal >= c.rules.FreeShippingThreshold {
		shipping = 0
	}

	return domain.Pricing{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
	}, nil
}

func checkLineItem(index int, item domain.LineItem) error {
	if item.Price < 0 {
		return fmt.Errorf("%w: items[%d].price must not be negative", ErrInvalidLineItem, index)
	}
	if item.Quantity < 1 {
		return fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrInvalidLineItem, index)
	}
	return nil
}
