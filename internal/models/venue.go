package models

import "fmt"

// VenuePricingConfig holds the per-venue knobs of the dynamic pricing engine.
// It is immutable during a pricing computation; only venue administration
// mutates it.
type VenuePricingConfig struct {
	VenueID         string  `json:"venue_id"`
	PricingEnabled  bool    `json:"pricing_enabled"`
	BasePriceCents  int64   `json:"base_price_cents"`
	MinPriceCents   int64   `json:"min_price_cents"`
	MaxPriceCents   int64   `json:"max_price_cents"`
	PriceMultiplier float64 `json:"price_multiplier"`

	// Peak window in venue-local hours; Start > End means the window wraps
	// past midnight.
	PeakHourStart  int     `json:"peak_hour_start"`
	PeakHourEnd    int     `json:"peak_hour_end"`
	PeakMultiplier float64 `json:"peak_multiplier"`
}

// Validate rejects configs that would make the engine misprice rather than
// silently clamping them.
func (c *VenuePricingConfig) Validate() error {
	if c.BasePriceCents < 0 {
		return fmt.Errorf("base price must not be negative")
	}
	if c.MinPriceCents < 0 || c.MaxPriceCents < 0 {
		return fmt.Errorf("price bounds must not be negative")
	}
	if c.MinPriceCents > 0 && c.MaxPriceCents > 0 && c.MinPriceCents > c.MaxPriceCents {
		return fmt.Errorf("min price %d exceeds max price %d", c.MinPriceCents, c.MaxPriceCents)
	}
	if c.PriceMultiplier < 0 {
		return fmt.Errorf("price multiplier must not be negative")
	}
	if c.PeakHourStart < 0 || c.PeakHourStart > 23 || c.PeakHourEnd < 0 || c.PeakHourEnd > 23 {
		return fmt.Errorf("peak hours must be within 0-23")
	}
	if c.PeakMultiplier < 0 {
		return fmt.Errorf("peak multiplier must not be negative")
	}
	return nil
}

// DefaultPricingConfig mirrors the defaults venues start with before a host
// tunes them.
func DefaultPricingConfig(venueID string) *VenuePricingConfig {
	return &VenuePricingConfig{
		VenueID:         venueID,
		PricingEnabled:  true,
		BasePriceCents:  100,
		MinPriceCents:   1,
		MaxPriceCents:   50000,
		PriceMultiplier: 1.0,
		PeakHourStart:   19,
		PeakHourEnd:     23,
		PeakMultiplier:  1.5,
	}
}
