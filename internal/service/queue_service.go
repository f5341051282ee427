package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/crowdjuke/crowdjuke/internal/delivery/kafka"
	"github.com/crowdjuke/crowdjuke/internal/delivery/kafka/producer"
	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/ordering"
	"github.com/crowdjuke/crowdjuke/internal/pricing"
	"github.com/crowdjuke/crowdjuke/internal/repository"
	"github.com/crowdjuke/crowdjuke/pkg/clock"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

type QueueService interface {
	AddEntry(ctx context.Context, in *AddEntryInput) (*AddEntryOutput, error)
	GetEntry(ctx context.Context, entryID string) (*models.QueueEntry, error)
	Vote(ctx context.Context, entryID string, delta int64) (*VoteOutput, error)
	GetQueue(ctx context.Context, ssID string) (*QueueView, error)
	GetState(ctx context.Context, ssID string) (*StateView, error)
	QuotePosition(ctx context.Context, ssID string, position int) (*QuoteOutput, error)
	UpdatePricingConfig(ctx context.Context, cfg *models.VenuePricingConfig) error
}

type queueService struct {
	ssRepo  repository.SessionRepository
	eRepo   repository.EntryRepository
	vRepo   repository.VenueRepository
	bidding BiddingService
	prod    producer.Producer
	clk     clock.Clock
	l       logger.Logger
}

func NewQueueService(
	ssRepo repository.SessionRepository,
	eRepo repository.EntryRepository,
	vRepo repository.VenueRepository,
	bidding BiddingService,
	prod producer.Producer,
	clk clock.Clock,
	l logger.Logger,
) QueueService {
	return &queueService{
		ssRepo:  ssRepo,
		eRepo:   eRepo,
		vRepo:   vRepo,
		bidding: bidding,
		prod:    prod,
		clk:     clk,
		l:       l,
	}
}

// AddEntry submits a song to the session's queue. Unpaid entries append to
// the end of the display order; a desired position plus an amount turns the
// add into a position bid executed right after the insert. A failed bid
// cancels the fresh entry so the queue is left exactly as it was.
func (s *queueService) AddEntry(ctx context.Context, in *AddEntryInput) (*AddEntryOutput, error) {
	ss, err := s.getSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if !ss.IsActive() {
		return nil, ErrSessionEnded
	}

	now := s.clk.Now()
	e := models.NewEntry(in.SessionID, in.SubmitterID, in.Title, in.Artist, now)
	e.MediaURL = in.MediaURL
	e.CoverURL = in.CoverURL
	e.DurationMs = in.DurationMs

	pendingEntries, err := s.eRepo.ListPending(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	e.DisplayPriority = nextPriority(pendingEntries)

	if err := s.eRepo.Create(ctx, e); err != nil {
		s.l.Errorf(ctx, "queueService.AddEntry: %v", err)
		return nil, err
	}

	ss.Touch(now)
	if err := s.ssRepo.Update(ctx, ss); err != nil {
		s.l.Warnf(ctx, "Failed to touch session session_id=%s: %v", ss.ID, err)
	}

	out := &AddEntryOutput{
		Entry:    e,
		Position: len(pendingEntries) + 1,
	}

	if in.DesiredPosition > 0 && in.AmountCents > 0 {
		bid, err := s.bidding.PlaceBid(ctx, e.ID, in.DesiredPosition, in.AmountCents)
		if err != nil || !bid.WasAccepted {
			// Roll the add back so a rejected paid submission leaves no trace.
			if cErr := s.bidding.CancelEntry(ctx, e.ID); cErr != nil {
				s.l.Errorf(ctx, "Failed to cancel entry after rejected bid entry_id=%s: %v", e.ID, cErr)
			}
			if err != nil {
				return nil, err
			}
			return nil, ErrInsufficientFunds
		}
		out.PaidCents = in.AmountCents
		out.QuoteCents = bid.FinalPriceCents
		out.Position = bid.Position

		updated, err := s.eRepo.Get(ctx, e.ID)
		if err == nil {
			out.Entry = updated
		}
	}

	if s.prod != nil {
		if err := s.prod.PublishEntryAdded(ctx, kafka.EntryAddedEvent{
			EntryID:     e.ID,
			SessionID:   e.SessionID,
			SubmitterID: e.SubmitterID,
			Title:       e.Title,
			Artist:      e.Artist,
			Position:    out.Position,
			PaidCents:   out.PaidCents,
		}); err != nil {
			s.l.Errorf(ctx, "Failed to publish entry added event: %v", err)
		}
	}

	s.l.Infof(ctx, "Entry added entry_id=%s session_id=%s position=%d paid=%d",
		e.ID, e.SessionID, out.Position, out.PaidCents)

	return out, nil
}

func (s *queueService) GetEntry(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	e, err := s.eRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		s.l.Errorf(ctx, "queueService.GetEntry: %v", err)
		return nil, err
	}
	return e, nil
}

// Vote applies a vote delta to an entry's tally. Tallies may go negative and
// the entry's display priority is never touched; the increment is atomic per
// entry, so votes need no session lock.
func (s *queueService) Vote(ctx context.Context, entryID string, delta int64) (*VoteOutput, error) {
	if delta == 0 {
		return nil, ErrInvalidVoteDelta
	}

	tally, err := s.eRepo.IncrementVote(ctx, entryID, delta)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		s.l.Errorf(ctx, "queueService.Vote: %v", err)
		return nil, err
	}

	e, err := s.eRepo.Get(ctx, entryID)
	if err == nil {
		s.touchSession(ctx, e.SessionID)
		if s.prod != nil {
			if err := s.prod.PublishVoteCast(ctx, kafka.VoteCastEvent{
				EntryID:   entryID,
				SessionID: e.SessionID,
				Delta:     delta,
				NewTally:  tally,
			}); err != nil {
				s.l.Errorf(ctx, "Failed to publish vote cast event: %v", err)
			}
		}
	}

	return &VoteOutput{EntryID: entryID, NewTally: tally}, nil
}

// GetQueue returns the audience-facing display order with a jump-ahead quote
// attached to every position. Read-only; safe to poll.
func (s *queueService) GetQueue(ctx context.Context, ssID string) (*QueueView, error) {
	ss, err := s.getSession(ctx, ssID)
	if err != nil {
		return nil, err
	}

	entries, err := s.eRepo.ListPending(ctx, ssID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	ordered := ordering.DisplayOrder(entries)

	now := s.clk.Now()
	cfg, err := s.vRepo.GetPricingConfig(ctx, ss.VenueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing config: %w", err)
	}
	snap, err := s.eRepo.ActivitySnapshot(ctx, ssID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sample activity: %w", err)
	}

	views := make([]EntryView, 0, len(ordered))
	for i, e := range ordered {
		pos := i + 1
		views = append(views, EntryView{
			EntryID:             e.ID,
			Title:               e.Title,
			Artist:              e.Artist,
			CoverURL:            e.CoverURL,
			SubmitterID:         e.SubmitterID,
			VoteTally:           e.VoteTally,
			DisplayPriority:     e.DisplayPriority,
			Position:            pos,
			JumpAheadPriceCents: pricing.QuotePosition(cfg, snap, pos, now).PriceCents,
		})
	}

	view := &QueueView{
		SessionID:  ss.ID,
		AccessCode: ss.AccessCode,
		Entries:    views,
	}
	view.NowPlaying, err = s.nowPlaying(ctx, ss)
	if err != nil {
		return nil, err
	}

	return view, nil
}

// GetState is the polling endpoint's shape: now playing plus the upcoming
// list, without per-position quotes.
func (s *queueService) GetState(ctx context.Context, ssID string) (*StateView, error) {
	ss, err := s.getSession(ctx, ssID)
	if err != nil {
		return nil, err
	}

	entries, err := s.eRepo.ListPending(ctx, ssID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	ordered := ordering.DisplayOrder(entries)

	views := make([]EntryView, 0, len(ordered))
	for i, e := range ordered {
		views = append(views, EntryView{
			EntryID:         e.ID,
			Title:           e.Title,
			Artist:          e.Artist,
			CoverURL:        e.CoverURL,
			VoteTally:       e.VoteTally,
			DisplayPriority: e.DisplayPriority,
			Position:        i + 1,
		})
	}

	state := &StateView{
		SessionID: ss.ID,
		IsPlaying: ss.IsPlaying(),
		Queue:     views,
	}
	state.NowPlaying, err = s.nowPlaying(ctx, ss)
	if err != nil {
		return nil, err
	}

	return state, nil
}

func (s *queueService) QuotePosition(ctx context.Context, ssID string, position int) (*QuoteOutput, error) {
	if position < 1 {
		return nil, ErrInvalidPosition
	}

	ss, err := s.getSession(ctx, ssID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.vRepo.GetPricingConfig(ctx, ss.VenueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing config: %w", err)
	}

	now := s.clk.Now()
	snap, err := s.eRepo.ActivitySnapshot(ctx, ssID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sample activity: %w", err)
	}

	q := pricing.QuotePosition(cfg, snap, position, now)

	return &QuoteOutput{
		SessionID:  ssID,
		Position:   position,
		PriceCents: q.PriceCents,
		Factors:    q.Factors,
	}, nil
}

func (s *queueService) UpdatePricingConfig(ctx context.Context, cfg *models.VenuePricingConfig) error {
	if err := s.vRepo.UpsertPricingConfig(ctx, cfg); err != nil {
		s.l.Errorf(ctx, "queueService.UpdatePricingConfig: %v", err)
		return err
	}
	return nil
}

// touchSession bumps last-activity; failures only log, activity tracking is
// advisory.
func (s *queueService) touchSession(ctx context.Context, ssID string) {
	ss, err := s.ssRepo.Get(ctx, ssID)
	if err != nil {
		return
	}
	ss.Touch(s.clk.Now())
	if err := s.ssRepo.Update(ctx, ss); err != nil {
		s.l.Warnf(ctx, "Failed to touch session session_id=%s: %v", ssID, err)
	}
}

func (s *queueService) getSession(ctx context.Context, ssID string) (*models.QueueSession, error) {
	ss, err := s.ssRepo.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return ss, nil
}

func (s *queueService) nowPlaying(ctx context.Context, ss *models.QueueSession) (*NowPlayingView, error) {
	if !ss.IsPlaying() {
		return nil, nil
	}

	e, err := s.eRepo.Get(ctx, ss.CurrentlyPlayingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &NowPlayingView{
		EntryID:  e.ID,
		Title:    e.Title,
		Artist:   e.Artist,
		MediaURL: e.MediaURL,
		CoverURL: e.CoverURL,
		PlayedAt: e.PlayedAt,
	}, nil
}

// nextPriority appends after the current tail of the display order.
func nextPriority(pendingEntries []*models.QueueEntry) int {
	next := 0
	for _, e := range pendingEntries {
		if e.DisplayPriority >= next {
			next = e.DisplayPriority + 1
		}
	}
	return next
}
