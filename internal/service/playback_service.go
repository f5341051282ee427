package service

import (
	"context"
	"errors"
	"time"

	"github.com/crowdjuke/crowdjuke/internal/delivery/kafka"
	"github.com/crowdjuke/crowdjuke/internal/delivery/kafka/producer"
	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/ordering"
	"github.com/crowdjuke/crowdjuke/internal/repository"
	"github.com/crowdjuke/crowdjuke/pkg/clock"
	"github.com/crowdjuke/crowdjuke/pkg/lock"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

// PlaybackService drives the session's playback state machine. At most one
// entry per session is ever playing; transitions run under the same session
// lock as bidding so a reorder never races an advance.
type PlaybackService interface {
	// Start begins playing the head of the playback order. If something is
	// already playing it is force-stopped back to pending first.
	Start(ctx context.Context, ssID string) (*models.QueueEntry, error)

	// Next marks the current entry played and starts the following one. An
	// exhausted queue leaves the session idle and reports QueueFinished.
	Next(ctx context.Context, ssID string) (*AdvanceOutput, error)

	// Stop halts playback and returns the current entry to pending at its
	// old position. Stopping an idle session is a no-op.
	Stop(ctx context.Context, ssID string) error
}

type playbackService struct {
	ssRepo      repository.SessionRepository
	eRepo       repository.EntryRepository
	locks       *lock.Keyed
	lockTimeout time.Duration
	prod        producer.Producer
	clk         clock.Clock
	l           logger.Logger
}

func NewPlaybackService(
	ssRepo repository.SessionRepository,
	eRepo repository.EntryRepository,
	locks *lock.Keyed,
	lockTimeout time.Duration,
	prod producer.Producer,
	clk clock.Clock,
	l logger.Logger,
) PlaybackService {
	return &playbackService{
		ssRepo:      ssRepo,
		eRepo:       eRepo,
		locks:       locks,
		lockTimeout: lockTimeout,
		prod:        prod,
		clk:         clk,
		l:           l,
	}
}

func (s *playbackService) Start(ctx context.Context, ssID string) (*models.QueueEntry, error) {
	release, err := acquireSession(ctx, s.locks, s.lockTimeout, ssID)
	if err != nil {
		return nil, err
	}
	defer release()

	ss, err := s.loadSession(ctx, ssID)
	if err != nil {
		return nil, err
	}
	if !ss.IsActive() {
		return nil, ErrSessionEnded
	}

	now := s.clk.Now()
	if ss.IsPlaying() {
		if err := s.returnToPending(ctx, ss.CurrentlyPlayingID, now); err != nil {
			return nil, err
		}
		if err := s.clearPointer(ctx, ss, now); err != nil {
			return nil, err
		}
	}

	e, err := s.startHead(ctx, ss, now)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicPlaybackStarted, ss.ID, e, false)
	s.l.Infof(ctx, "Playback started session_id=%s entry_id=%s", ss.ID, e.ID)
	return e, nil
}

func (s *playbackService) Next(ctx context.Context, ssID string) (*AdvanceOutput, error) {
	release, err := acquireSession(ctx, s.locks, s.lockTimeout, ssID)
	if err != nil {
		return nil, err
	}
	defer release()

	ss, err := s.loadSession(ctx, ssID)
	if err != nil {
		return nil, err
	}
	if !ss.IsActive() {
		return nil, ErrSessionEnded
	}

	now := s.clk.Now()
	if ss.IsPlaying() {
		cur, err := s.eRepo.Get(ctx, ss.CurrentlyPlayingID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if cur != nil {
			cur.Status = models.EntryStatusPlayed
			cur.UpdatedAt = now
			if err := s.eRepo.Update(ctx, cur); err != nil {
				s.l.Errorf(ctx, "playbackService.Next: failed to mark played entry_id=%s: %v", cur.ID, err)
				return nil, err
			}
		}
		if err := s.clearPointer(ctx, ss, now); err != nil {
			return nil, err
		}
	}

	e, err := s.startHead(ctx, ss, now)
	if errors.Is(err, ErrEmptyQueue) {
		s.publish(ctx, kafka.TopicPlaybackAdvanced, ss.ID, nil, true)
		s.l.Infof(ctx, "Queue finished session_id=%s", ss.ID)
		return &AdvanceOutput{QueueFinished: true}, nil
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicPlaybackAdvanced, ss.ID, e, false)
	s.l.Infof(ctx, "Playback advanced session_id=%s entry_id=%s", ss.ID, e.ID)
	return &AdvanceOutput{Entry: e}, nil
}

func (s *playbackService) Stop(ctx context.Context, ssID string) error {
	release, err := acquireSession(ctx, s.locks, s.lockTimeout, ssID)
	if err != nil {
		return err
	}
	defer release()

	ss, err := s.loadSession(ctx, ssID)
	if err != nil {
		return err
	}
	if !ss.IsPlaying() {
		return nil
	}

	now := s.clk.Now()
	if err := s.returnToPending(ctx, ss.CurrentlyPlayingID, now); err != nil {
		return err
	}

	entryID := ss.CurrentlyPlayingID
	if err := s.clearPointer(ctx, ss, now); err != nil {
		return err
	}

	if s.prod != nil {
		if err := s.prod.PublishPlayback(ctx, kafka.TopicPlaybackStopped, kafka.PlaybackEvent{
			SessionID: ss.ID,
			EntryID:   entryID,
		}); err != nil {
			s.l.Errorf(ctx, "Failed to publish playback stopped event: %v", err)
		}
	}

	s.l.Infof(ctx, "Playback stopped session_id=%s entry_id=%s", ss.ID, entryID)
	return nil
}

// startHead picks the playback-order head, marks it playing and persists the
// session pointer. Entries without playable media fail the transition rather
// than being skipped silently; the operator cancels or fixes the entry and
// retries.
func (s *playbackService) startHead(ctx context.Context, ss *models.QueueSession, now time.Time) (*models.QueueEntry, error) {
	pendingEntries, err := s.eRepo.ListPending(ctx, ss.ID)
	if err != nil {
		return nil, err
	}

	head := ordering.Head(pendingEntries)
	if head == nil {
		return nil, ErrEmptyQueue
	}
	if !head.HasPlayableMedia() {
		return nil, ErrNoPlayableMedia
	}

	head.Status = models.EntryStatusPlaying
	head.PlayedAt = &now
	head.UpdatedAt = now
	if err := s.eRepo.Update(ctx, head); err != nil {
		s.l.Errorf(ctx, "playbackService.startHead: %v", err)
		return nil, err
	}

	ss.CurrentlyPlayingID = head.ID
	ss.Touch(now)
	if err := s.ssRepo.Update(ctx, ss); err != nil {
		s.l.Errorf(ctx, "playbackService.startHead: %v", err)
		return nil, err
	}

	return head, nil
}

// clearPointer persists the session with no current entry. The stored session
// must never reference an entry that is not playing, including when starting
// the next head fails afterwards.
func (s *playbackService) clearPointer(ctx context.Context, ss *models.QueueSession, now time.Time) error {
	ss.CurrentlyPlayingID = ""
	ss.Touch(now)
	if err := s.ssRepo.Update(ctx, ss); err != nil {
		s.l.Errorf(ctx, "playbackService.clearPointer: %v", err)
		return err
	}
	return nil
}

// returnToPending reverses a playing entry back to pending, clearing its
// played timestamp so ordering treats it as never started.
func (s *playbackService) returnToPending(ctx context.Context, entryID string, now time.Time) error {
	e, err := s.eRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	e.Status = models.EntryStatusPending
	e.PlayedAt = nil
	e.UpdatedAt = now
	if err := s.eRepo.Update(ctx, e); err != nil {
		s.l.Errorf(ctx, "playbackService.returnToPending: %v", err)
		return err
	}
	return nil
}

func (s *playbackService) loadSession(ctx context.Context, ssID string) (*models.QueueSession, error) {
	ss, err := s.ssRepo.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return ss, nil
}

func (s *playbackService) publish(ctx context.Context, topic, ssID string, e *models.QueueEntry, finished bool) {
	if s.prod == nil {
		return
	}

	ev := kafka.PlaybackEvent{SessionID: ssID, Finished: finished}
	if e != nil {
		ev.EntryID = e.ID
		ev.Title = e.Title
	}
	if err := s.prod.PublishPlayback(ctx, topic, ev); err != nil {
		s.l.Errorf(ctx, "Failed to publish playback event topic=%s: %v", topic, err)
	}
}
