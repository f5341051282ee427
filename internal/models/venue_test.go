package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingConfigValidate(t *testing.T) {
	require.NoError(t, DefaultPricingConfig("venue-1").Validate())

	cases := []struct {
		name   string
		mutate func(*VenuePricingConfig)
	}{
		{"negative base", func(c *VenuePricingConfig) { c.BasePriceCents = -1 }},
		{"negative min", func(c *VenuePricingConfig) { c.MinPriceCents = -1 }},
		{"min above max", func(c *VenuePricingConfig) { c.MinPriceCents = 100; c.MaxPriceCents = 50 }},
		{"negative multiplier", func(c *VenuePricingConfig) { c.PriceMultiplier = -0.5 }},
		{"peak hour out of range", func(c *VenuePricingConfig) { c.PeakHourStart = 24 }},
		{"negative peak multiplier", func(c *VenuePricingConfig) { c.PeakMultiplier = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPricingConfig("venue-1")
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
