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

type redisSessionRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewSessionRepository(cli *redis.Client, l logger.Logger) repository.SessionRepository {
	return &redisSessionRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisSessionRepository) Create(ctx context.Context, ss *models.QueueSession) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.cli.TxPipeline()
	pipe.Set(ctx, r.sessionKey(ss.ID), data, 0)
	if ss.Status == models.SessionStatusActive {
		pipe.Set(ctx, r.venueActiveKey(ss.VenueID), ss.ID, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Create: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Session created session_id=%s venue_id=%s", ss.ID, ss.VenueID)

	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, ssID string) (*models.QueueSession, error) {
	data, err := r.cli.Get(ctx, r.sessionKey(ssID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		return nil, err
	}

	var ss models.QueueSession
	if err := json.Unmarshal(data, &ss); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		return nil, err
	}

	return &ss, nil
}

func (r *redisSessionRepository) Update(ctx context.Context, ss *models.QueueSession) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.cli.TxPipeline()
	pipe.Set(ctx, r.sessionKey(ss.ID), data, 0)
	if ss.Status == models.SessionStatusEnded {
		// An ended session no longer owns the venue's active slot; only clear
		// it when it still points at us.
		cur, err := r.cli.Get(ctx, r.venueActiveKey(ss.VenueID)).Result()
		if err == nil && cur == ss.ID {
			pipe.Del(ctx, r.venueActiveKey(ss.VenueID))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Update: %v", err)
		return err
	}

	return nil
}

func (r *redisSessionRepository) GetByAccessCode(ctx context.Context, code string) (*models.QueueSession, error) {
	ssID, err := r.cli.Get(ctx, r.accessCodeKey(code)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		r.l.Errorf(ctx, "redisSessionRepository.GetByAccessCode: %v", err)
		return nil, err
	}

	return r.Get(ctx, ssID)
}

func (r *redisSessionRepository) GetActiveByVenue(ctx context.Context, venueID string) (*models.QueueSession, error) {
	ssID, err := r.cli.Get(ctx, r.venueActiveKey(venueID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		r.l.Errorf(ctx, "redisSessionRepository.GetActiveByVenue: %v", err)
		return nil, err
	}

	return r.Get(ctx, ssID)
}

func (r *redisSessionRepository) ReserveAccessCode(ctx context.Context, code, ssID string) (bool, error) {
	ok, err := r.cli.SetNX(ctx, r.accessCodeKey(code), ssID, 0).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ReserveAccessCode: %v", err)
		return false, err
	}
	return ok, nil
}

func (r *redisSessionRepository) ReleaseAccessCode(ctx context.Context, code string) error {
	if err := r.cli.Del(ctx, r.accessCodeKey(code)).Err(); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ReleaseAccessCode: %v", err)
		return err
	}
	return nil
}

func (r *redisSessionRepository) sessionKey(ssID string) string {
	return fmt.Sprintf("crowdjuke:session:%s", ssID)
}

func (r *redisSessionRepository) accessCodeKey(code string) string {
	return fmt.Sprintf("crowdjuke:access_code:%s", code)
}

func (r *redisSessionRepository) venueActiveKey(venueID string) string {
	return fmt.Sprintf("crowdjuke:venue:%s:active_session", venueID)
}
