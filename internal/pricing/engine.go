// Package pricing computes quotes for queue positions from live demand
// signals. The engine is a pure function of its inputs: callers take one
// activity snapshot per operation and reuse it, so a quote and any re-pricing
// moments later agree with each other.
package pricing

import (
	"math"
	"time"

	"github.com/crowdjuke/crowdjuke/internal/models"
)

const (
	// ActiveWindow is how far back a submitter's last add counts toward the
	// active-participant factor.
	ActiveWindow = 5 * time.Minute

	// VelocityWindow is the trailing window over which add velocity is
	// averaged.
	VelocityWindow = 10 * time.Minute

	userFactorStep = 0.03
	userFactorCap  = 2.0

	velocityFactorStep = 0.05
	velocityFactorCap  = 1.5

	// positionK tunes how much earlier positions cost: factor = 1 + k/p.
	positionK = 0.5

	totalMultiplierCap = 10.0
)

// Snapshot is the session activity sample the demand factors are computed
// from. Take it once at the start of an operation and pass the same value to
// every quote within that operation.
type Snapshot struct {
	// ActiveSubmitters counts distinct submitters who added an entry within
	// ActiveWindow of the snapshot time.
	ActiveSubmitters int

	// RecentAdds counts entries added within VelocityWindow of the snapshot
	// time.
	RecentAdds int
}

// Velocity is entries added per minute over the trailing window.
func (s Snapshot) Velocity() float64 {
	return float64(s.RecentAdds) / VelocityWindow.Minutes()
}

// Quote is the priced outcome for one position, with the component factors
// retained for auditability.
type Quote struct {
	PriceCents int64   `json:"price_cents"`
	Factors    Factors `json:"factors"`
}

type Factors struct {
	ActiveSubmitters int     `json:"active_submitters"`
	Velocity         float64 `json:"velocity"`
	UserFactor       float64 `json:"user_factor"`
	VelocityFactor   float64 `json:"velocity_factor"`
	PositionFactor   float64 `json:"position_factor"`
	VenueMultiplier  float64 `json:"venue_multiplier"`
	TimeFactor       float64 `json:"time_factor"`
	TotalMultiplier  float64 `json:"total_multiplier"`
	BasePriceCents   int64   `json:"base_price_cents"`
}

// QuotePosition prices the given 1-indexed position. A nil config or disabled
// pricing yields a zero quote; that is a normal outcome, not an error.
func QuotePosition(cfg *models.VenuePricingConfig, snap Snapshot, position int, now time.Time) Quote {
	if cfg == nil || !cfg.PricingEnabled {
		return Quote{}
	}

	f := Factors{
		ActiveSubmitters: snap.ActiveSubmitters,
		Velocity:         snap.Velocity(),
		UserFactor:       userFactor(snap.ActiveSubmitters),
		VelocityFactor:   velocityFactor(snap.Velocity()),
		PositionFactor:   positionFactor(position),
		VenueMultiplier:  venueMultiplier(cfg),
		TimeFactor:       timeOfDayFactor(cfg, now),
		BasePriceCents:   cfg.BasePriceCents,
	}

	total := f.UserFactor * f.VelocityFactor * f.PositionFactor * f.VenueMultiplier * f.TimeFactor
	total = math.Min(total, totalMultiplierCap)
	f.TotalMultiplier = total

	price := int64(math.Round(float64(cfg.BasePriceCents) * total))
	price = clamp(price, cfg.MinPriceCents, cfg.MaxPriceCents)

	return Quote{PriceCents: price, Factors: f}
}

func userFactor(activeSubmitters int) float64 {
	if activeSubmitters <= 1 {
		return 1.0
	}
	return math.Min(1+float64(activeSubmitters-1)*userFactorStep, userFactorCap)
}

func velocityFactor(velocity float64) float64 {
	if velocity <= 0 {
		return 1.0
	}
	return math.Min(1+velocity*velocityFactorStep, velocityFactorCap)
}

func positionFactor(position int) float64 {
	if position < 1 {
		position = 1
	}
	return 1 + positionK/float64(position)
}

func venueMultiplier(cfg *models.VenuePricingConfig) float64 {
	if cfg.PriceMultiplier <= 0 {
		return 1.0
	}
	return cfg.PriceMultiplier
}

func timeOfDayFactor(cfg *models.VenuePricingConfig, now time.Time) float64 {
	if cfg.PeakMultiplier <= 0 || cfg.PeakHourStart == cfg.PeakHourEnd {
		return 1.0
	}

	hour := now.Hour()
	if cfg.PeakHourStart < cfg.PeakHourEnd {
		if hour >= cfg.PeakHourStart && hour < cfg.PeakHourEnd {
			return cfg.PeakMultiplier
		}
	} else {
		// Window wraps past midnight, e.g. 22 -> 2.
		if hour >= cfg.PeakHourStart || hour < cfg.PeakHourEnd {
			return cfg.PeakMultiplier
		}
	}

	return 1.0
}

func clamp(v, lo, hi int64) int64 {
	if lo > 0 && v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
