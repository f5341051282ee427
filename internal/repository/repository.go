// Package repository defines the persistence contracts the core depends on.
// Implementations live in redisrepo (production) and memory (tests, local
// development).
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/pricing"
)

// ErrNotFound is returned by all repositories for missing rows; services map
// it to their own sentinels.
var ErrNotFound = errors.New("not found")

type SessionRepository interface {
	Create(ctx context.Context, ss *models.QueueSession) error
	Get(ctx context.Context, ssID string) (*models.QueueSession, error)
	Update(ctx context.Context, ss *models.QueueSession) error
	GetByAccessCode(ctx context.Context, code string) (*models.QueueSession, error)

	// GetActiveByVenue returns the venue's current active session, or
	// ErrNotFound when the venue has none.
	GetActiveByVenue(ctx context.Context, venueID string) (*models.QueueSession, error)

	// ReserveAccessCode claims the code for the session; it reports false when
	// another live session already holds it.
	ReserveAccessCode(ctx context.Context, code, ssID string) (bool, error)
	ReleaseAccessCode(ctx context.Context, code string) error
}

type EntryRepository interface {
	Create(ctx context.Context, e *models.QueueEntry) error
	Get(ctx context.Context, entryID string) (*models.QueueEntry, error)
	Update(ctx context.Context, e *models.QueueEntry) error

	// ListPending returns the session's pending entries in storage order;
	// callers apply an ordering policy.
	ListPending(ctx context.Context, ssID string) ([]*models.QueueEntry, error)

	// IncrementVote atomically applies a vote delta to the entry's tally and
	// bumps its cast-vote count, returning the new tally.
	IncrementVote(ctx context.Context, entryID string, delta int64) (int64, error)

	// UpdatePriorities writes the given display priorities. Callers pass only
	// entries whose priority actually changed and hold the session lock.
	UpdatePriorities(ctx context.Context, ssID string, priorities map[string]int) error

	// ActivitySnapshot samples the session's recent add activity for the
	// pricing engine, relative to now.
	ActivitySnapshot(ctx context.Context, ssID string, now time.Time) (pricing.Snapshot, error)
}

type VenueRepository interface {
	// GetPricingConfig returns (nil, nil) for venues with no config; pricing
	// treats that as disabled.
	GetPricingConfig(ctx context.Context, venueID string) (*models.VenuePricingConfig, error)
	UpsertPricingConfig(ctx context.Context, cfg *models.VenuePricingConfig) error
}
