package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/repository"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

type redisVenueRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewVenueRepository(cli *redis.Client, l logger.Logger) repository.VenueRepository {
	return &redisVenueRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisVenueRepository) GetPricingConfig(ctx context.Context, venueID string) (*models.VenuePricingConfig, error) {
	data, err := r.cli.Get(ctx, r.pricingKey(venueID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Missing config is not an error: pricing quotes zero for it.
			return nil, nil
		}
		r.l.Errorf(ctx, "redisVenueRepository.GetPricingConfig: %v", err)
		return nil, err
	}

	var cfg models.VenuePricingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		r.l.Errorf(ctx, "redisVenueRepository.GetPricingConfig: %v", err)
		return nil, err
	}

	return &cfg, nil
}

func (r *redisVenueRepository) UpsertPricingConfig(ctx context.Context, cfg *models.VenuePricingConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal pricing config: %w", err)
	}

	if err := r.cli.Set(ctx, r.pricingKey(cfg.VenueID), data, 0).Err(); err != nil {
		r.l.Errorf(ctx, "redisVenueRepository.UpsertPricingConfig: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Pricing config updated venue_id=%s", cfg.VenueID)

	return nil
}

func (r *redisVenueRepository) pricingKey(venueID string) string {
	return fmt.Sprintf("crowdjuke:venue:%s:pricing", venueID)
}
