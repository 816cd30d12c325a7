package domain

import (
	"fmt"
	"slices"
)

// TierCatalog is the closed set of subscription tiers and their prices.
type TierCatalog struct {
	tiers    []string
	prices   map[string]float64
	addOn    float64
	currency string
}

func NewTierCatalog(tiers []string, prices map[string]float64, addOnPrice float64, currency string) (*TierCatalog, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one license tier is required")
	}
	c := &TierCatalog{
		tiers:    slices.Clone(tiers),
		prices:   make(map[string]float64, len(tiers)),
		addOn:    addOnPrice,
		currency: currency,
	}
	for _, tier := range tiers {
		price, ok := prices[tier]
		if !ok {
			return nil, fmt.Errorf("tier %q has no price", tier)
		}
		c.prices[tier] = price
	}
	return c, nil
}

func (c *TierCatalog) Has(tier string) bool {
	return slices.Contains(c.tiers, tier)
}

func (c *TierCatalog) Tiers() []string {
	return slices.Clone(c.tiers)
}

func (c *TierCatalog) Price(tier string) float64 {
	return c.prices[tier]
}

func (c *TierCatalog) AddOnPrice() float64 {
	return c.addOn
}

func (c *TierCatalog) Currency() string {
	return c.currency
}

// Total is the tier price plus the add-on when requested.
func (c *TierCatalog) Total(tier string, includeAddOns bool) float64 {
	total := c.prices[tier]
	if includeAddOns {
		total += c.addOn
	}
	return total
}

func (c *TierCatalog) Prices() map[string]float64 {
	out := make(map[string]float64, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}
