package redisrepo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/pricing"
	"github.com/crowdjuke/crowdjuke/internal/repository"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

// Entries are stored as hashes so vote deltas can use HIncrBy without racing
// the rest of the row. Two activity zsets per session back the pricing
// windows: one scored by entry add time, one by each submitter's last add.
//
// Activity members older than this are useless to every pricing window and
// get pruned on each add, so long-lived sessions stay bounded.
const activityRetention = time.Hour

type redisEntryRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewEntryRepository(cli *redis.Client, l logger.Logger) repository.EntryRepository {
	return &redisEntryRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisEntryRepository) Create(ctx context.Context, e *models.QueueEntry) error {
	pipe := r.cli.TxPipeline()
	pipe.HSet(ctx, r.entryKey(e.ID), entryFields(e))
	pipe.SAdd(ctx, r.sessionEntriesKey(e.SessionID), e.ID)
	pipe.ZAdd(ctx, r.addsKey(e.SessionID), redis.Z{
		Score:  float64(e.CreatedAt.Unix()),
		Member: e.ID,
	})
	if e.SubmitterID != "" {
		pipe.ZAdd(ctx, r.submittersKey(e.SessionID), redis.Z{
			Score:  float64(e.CreatedAt.Unix()),
			Member: e.SubmitterID,
		})
	}

	cutoff := strconv.FormatInt(e.CreatedAt.Add(-activityRetention).Unix(), 10)
	pipe.ZRemRangeByScore(ctx, r.addsKey(e.SessionID), "-inf", cutoff)
	pipe.ZRemRangeByScore(ctx, r.submittersKey(e.SessionID), "-inf", cutoff)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Create: %v", err)
		return err
	}

	return nil
}

func (r *redisEntryRepository) Get(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	fields, err := r.cli.HGetAll(ctx, r.entryKey(entryID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Get: %v", err)
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}

	return entryFromFields(fields)
}

func (r *redisEntryRepository) Update(ctx context.Context, e *models.QueueEntry) error {
	if err := r.cli.HSet(ctx, r.entryKey(e.ID), entryFields(e)).Err(); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Update: %v", err)
		return err
	}
	return nil
}

func (r *redisEntryRepository) ListPending(ctx context.Context, ssID string) ([]*models.QueueEntry, error) {
	ids, err := r.cli.SMembers(ctx, r.sessionEntriesKey(ssID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.ListPending: %v", err)
		return nil, err
	}

	entries := make([]*models.QueueEntry, 0, len(ids))
	for _, id := range ids {
		fields, err := r.cli.HGetAll(ctx, r.entryKey(id)).Result()
		if err != nil {
			r.l.Errorf(ctx, "redisEntryRepository.ListPending: %v", err)
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}

		e, err := entryFromFields(fields)
		if err != nil {
			return nil, err
		}
		if e.IsPending() {
			entries = append(entries, e)
		}
	}

	return entries, nil
}

func (r *redisEntryRepository) IncrementVote(ctx context.Context, entryID string, delta int64) (int64, error) {
	key := r.entryKey(entryID)

	exists, err := r.cli.Exists(ctx, key).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.IncrementVote: %v", err)
		return 0, err
	}
	if exists == 0 {
		return 0, repository.ErrNotFound
	}

	pipe := r.cli.TxPipeline()
	tally := pipe.HIncrBy(ctx, key, "vote_tally", delta)
	pipe.HIncrBy(ctx, key, "vote_count", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.IncrementVote: %v", err)
		return 0, err
	}

	return tally.Val(), nil
}

func (r *redisEntryRepository) UpdatePriorities(ctx context.Context, ssID string, priorities map[string]int) error {
	if len(priorities) == 0 {
		return nil
	}

	pipe := r.cli.TxPipeline()
	for entryID, prio := range priorities {
		pipe.HSet(ctx, r.entryKey(entryID), "display_priority", prio)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.UpdatePriorities: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Updated display priorities session_id=%s count=%d", ssID, len(priorities))

	return nil
}

func (r *redisEntryRepository) ActivitySnapshot(ctx context.Context, ssID string, now time.Time) (pricing.Snapshot, error) {
	addsMin := strconv.FormatInt(now.Add(-pricing.VelocityWindow).Unix(), 10)
	submittersMin := strconv.FormatInt(now.Add(-pricing.ActiveWindow).Unix(), 10)
	max := strconv.FormatInt(now.Unix(), 10)

	pipe := r.cli.Pipeline()
	adds := pipe.ZCount(ctx, r.addsKey(ssID), addsMin, max)
	submitters := pipe.ZCount(ctx, r.submittersKey(ssID), submittersMin, max)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.ActivitySnapshot: %v", err)
		return pricing.Snapshot{}, err
	}

	return pricing.Snapshot{
		ActiveSubmitters: int(submitters.Val()),
		RecentAdds:       int(adds.Val()),
	}, nil
}

func (r *redisEntryRepository) entryKey(entryID string) string {
	return fmt.Sprintf("crowdjuke:entry:%s", entryID)
}

func (r *redisEntryRepository) sessionEntriesKey(ssID string) string {
	return fmt.Sprintf("crowdjuke:session:%s:entries", ssID)
}

func (r *redisEntryRepository) addsKey(ssID string) string {
	return fmt.Sprintf("crowdjuke:session:%s:activity:adds", ssID)
}

func (r *redisEntryRepository) submittersKey(ssID string) string {
	return fmt.Sprintf("crowdjuke:session:%s:activity:submitters", ssID)
}

func entryFields(e *models.QueueEntry) map[string]any {
	fields := map[string]any{
		"id":                  e.ID,
		"session_id":          e.SessionID,
		"submitter_id":        e.SubmitterID,
		"title":               e.Title,
		"artist":              e.Artist,
		"media_url":           e.MediaURL,
		"cover_url":           e.CoverURL,
		"duration_ms":         e.DurationMs,
		"status":              string(e.Status),
		"vote_tally":          e.VoteTally,
		"vote_count":          e.VoteCount,
		"display_priority":    e.DisplayPriority,
		"position_paid_cents": e.PositionPaidCents,
		"position_guaranteed": e.PositionGuaranteed,
		"refunded_cents":      e.RefundedCents,
		"created_at":          e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":          e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if e.PlayedAt != nil {
		fields["played_at"] = e.PlayedAt.Format(time.RFC3339Nano)
	} else {
		fields["played_at"] = ""
	}
	return fields
}

func entryFromFields(fields map[string]string) (*models.QueueEntry, error) {
	e := &models.QueueEntry{
		ID:          fields["id"],
		SessionID:   fields["session_id"],
		SubmitterID: fields["submitter_id"],
		Title:       fields["title"],
		Artist:      fields["artist"],
		MediaURL:    fields["media_url"],
		CoverURL:    fields["cover_url"],
		Status:      models.EntryStatus(fields["status"]),
	}

	var err error
	if e.DurationMs, err = parseInt(fields["duration_ms"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry duration_ms: %w", err)
	}
	if e.VoteTally, err = parseInt64(fields["vote_tally"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry vote_tally: %w", err)
	}
	if e.VoteCount, err = parseInt64(fields["vote_count"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry vote_count: %w", err)
	}
	if e.DisplayPriority, err = parseInt(fields["display_priority"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry display_priority: %w", err)
	}
	if e.PositionPaidCents, err = parseInt64(fields["position_paid_cents"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry position_paid_cents: %w", err)
	}
	if e.PositionGuaranteed, err = parseInt(fields["position_guaranteed"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry position_guaranteed: %w", err)
	}
	if e.RefundedCents, err = parseInt64(fields["refunded_cents"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry refunded_cents: %w", err)
	}
	if e.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse entry updated_at: %w", err)
	}
	if fields["played_at"] != "" {
		t, err := parseTime(fields["played_at"])
		if err != nil {
			return nil, fmt.Errorf("failed to parse entry played_at: %w", err)
		}
		e.PlayedAt = &t
	}

	return e, nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
