package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crowdjuke/crowdjuke/internal/delivery/kafka"
	"github.com/crowdjuke/crowdjuke/internal/delivery/kafka/producer"
	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/ordering"
	"github.com/crowdjuke/crowdjuke/internal/pricing"
	"github.com/crowdjuke/crowdjuke/internal/repository"
	"github.com/crowdjuke/crowdjuke/pkg/clock"
	"github.com/crowdjuke/crowdjuke/pkg/ledger"
	"github.com/crowdjuke/crowdjuke/pkg/lock"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

const (
	reasonPositionBid = "position_bid"
	reasonBumpRefund  = "bump_refund"
)

type BiddingService interface {
	// PlaceBid moves a pending entry to a paid position. The price is quoted
	// at execution time; an amount below the quote rejects the bid without
	// touching the queue or the bidder's balance.
	PlaceBid(ctx context.Context, entryID string, desiredPosition int, amountCents int64) (*BidOutput, error)

	// CancelEntry withdraws a pending entry and closes the gap it leaves.
	// Paid positions are not refunded on voluntary cancellation.
	CancelEntry(ctx context.Context, entryID string) error
}

type biddingService struct {
	ssRepo      repository.SessionRepository
	eRepo       repository.EntryRepository
	vRepo       repository.VenueRepository
	ledger      ledger.Ledger
	locks       *lock.Keyed
	lockTimeout time.Duration
	prod        producer.Producer
	clk         clock.Clock
	l           logger.Logger
}

func NewBiddingService(
	ssRepo repository.SessionRepository,
	eRepo repository.EntryRepository,
	vRepo repository.VenueRepository,
	ldg ledger.Ledger,
	locks *lock.Keyed,
	lockTimeout time.Duration,
	prod producer.Producer,
	clk clock.Clock,
	l logger.Logger,
) BiddingService {
	return &biddingService{
		ssRepo:      ssRepo,
		eRepo:       eRepo,
		vRepo:       vRepo,
		ledger:      ldg,
		locks:       locks,
		lockTimeout: lockTimeout,
		prod:        prod,
		clk:         clk,
		l:           l,
	}
}

// acquireSession takes the per-session mutex that serializes bidding and
// playback transitions. A timeout maps to ErrConcurrentModification so
// callers can retry.
func acquireSession(ctx context.Context, locks *lock.Keyed, timeout time.Duration, ssID string) (func(), error) {
	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	release, err := locks.Acquire(lockCtx, ssID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrConcurrentModification
		}
		return nil, err
	}
	return release, nil
}

type bumpRefund struct {
	entry       *models.QueueEntry
	amountCents int64
	fromPos     int
	toPos       int
}

func (s *biddingService) PlaceBid(ctx context.Context, entryID string, desiredPosition int, amountCents int64) (*BidOutput, error) {
	if desiredPosition < 1 {
		return nil, ErrInvalidPosition
	}
	if amountCents < 0 {
		return nil, ErrInsufficientFunds
	}

	e, err := s.eRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	release, err := acquireSession(ctx, s.locks, s.lockTimeout, e.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Reload under the lock; the entry may have been cancelled or played
	// while we waited.
	e, err = s.eRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	if !e.IsPending() {
		return nil, ErrEntryNotPending
	}
	if amountCents > 0 && e.SubmitterID == "" {
		return nil, ErrAnonymousBid
	}

	ss, err := s.ssRepo.Get(ctx, e.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !ss.IsActive() {
		return nil, ErrSessionEnded
	}

	now := s.clk.Now()
	cfg, err := s.vRepo.GetPricingConfig(ctx, ss.VenueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing config: %w", err)
	}
	// One snapshot prices the bid and every refund in this reorder, so a
	// bumped entry is never charged and refunded against different demand.
	snap, err := s.eRepo.ActivitySnapshot(ctx, e.SessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sample activity: %w", err)
	}

	pendingEntries, err := s.eRepo.ListPending(ctx, e.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}

	rest := make([]*models.QueueEntry, 0, len(pendingEntries))
	for _, p := range pendingEntries {
		if p.ID != e.ID {
			rest = append(rest, p)
		}
	}
	ordered := ordering.DisplayOrder(rest)

	// A request past the tail lands at the tail, and the quote is for the
	// position the entry actually lands in, not the cheaper requested one.
	spliceIdx := desiredPosition - 1
	if spliceIdx > len(ordered) {
		spliceIdx = len(ordered)
	}
	finalPos := spliceIdx + 1

	quote := pricing.QuotePosition(cfg, snap, finalPos, now).PriceCents

	if amountCents < quote {
		s.publishBid(ctx, e, desiredPosition, amountCents, quote, false)
		return &BidOutput{
			EntryID:         entryID,
			WasAccepted:     false,
			FinalPriceCents: quote,
		}, nil
	}

	reordered := make([]*models.QueueEntry, 0, len(ordered)+1)
	reordered = append(reordered, ordered[:spliceIdx]...)
	reordered = append(reordered, e)
	reordered = append(reordered, ordered[spliceIdx:]...)

	refunds := s.planRefunds(cfg, snap, now, reordered, spliceIdx)

	if amountCents > 0 {
		if err := s.ledger.Debit(ctx, e.SubmitterID, amountCents, reasonPositionBid, e.ID); err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				return nil, ErrInsufficientFunds
			}
			return nil, fmt.Errorf("failed to debit bidder: %w", err)
		}
	}

	for i, r := range refunds {
		if err := s.ledger.Credit(ctx, r.entry.SubmitterID, r.amountCents, reasonBumpRefund, r.entry.ID); err != nil {
			s.compensate(ctx, e, amountCents, refunds[:i])
			return nil, fmt.Errorf("failed to credit bump refund: %w", err)
		}
	}

	// Ledger movements are done; everything below only mutates queue state.
	e.PositionPaidCents = amountCents
	e.PositionGuaranteed = finalPos
	e.UpdatedAt = now
	for _, r := range refunds {
		r.entry.RefundedCents += r.amountCents
		r.entry.UpdatedAt = now
	}

	changed := make(map[string]int)
	for i, re := range reordered {
		if re.DisplayPriority != i {
			re.DisplayPriority = i
			changed[re.ID] = i
		}
	}

	if err := s.eRepo.Update(ctx, e); err != nil {
		s.l.Errorf(ctx, "biddingService.PlaceBid: failed to persist bid entry_id=%s: %v", e.ID, err)
		return nil, err
	}
	delete(changed, e.ID)
	for _, r := range refunds {
		if err := s.eRepo.Update(ctx, r.entry); err != nil {
			s.l.Errorf(ctx, "biddingService.PlaceBid: failed to persist refund entry_id=%s: %v", r.entry.ID, err)
			return nil, err
		}
		delete(changed, r.entry.ID)
	}
	if len(changed) > 0 {
		if err := s.eRepo.UpdatePriorities(ctx, e.SessionID, changed); err != nil {
			s.l.Errorf(ctx, "biddingService.PlaceBid: failed to renumber priorities: %v", err)
			return nil, err
		}
	}

	ss.Touch(now)
	if err := s.ssRepo.Update(ctx, ss); err != nil {
		s.l.Warnf(ctx, "Failed to touch session session_id=%s: %v", ss.ID, err)
	}

	s.publishBid(ctx, e, desiredPosition, amountCents, quote, true)
	for _, r := range refunds {
		s.publishRefund(ctx, r)
	}

	s.l.Infof(ctx, "Bid accepted entry_id=%s session_id=%s position=%d paid=%d quote=%d refunds=%d",
		e.ID, e.SessionID, finalPos, amountCents, quote, len(refunds))

	return &BidOutput{
		EntryID:         entryID,
		WasAccepted:     true,
		FinalPriceCents: quote,
		Position:        finalPos,
		RefundedEntries: len(refunds),
	}, nil
}

// planRefunds walks the entries displaced by the splice and computes what
// each paid guarantee is owed. A bump never claws money back and never pays
// out more than the holder originally paid.
func (s *biddingService) planRefunds(
	cfg *models.VenuePricingConfig,
	snap pricing.Snapshot,
	now time.Time,
	reordered []*models.QueueEntry,
	spliceIdx int,
) []bumpRefund {
	var refunds []bumpRefund
	for i := spliceIdx + 1; i < len(reordered); i++ {
		bumped := reordered[i]
		newPos := i + 1
		if !bumped.HasPositionGuarantee() || newPos <= bumped.PositionGuaranteed {
			continue
		}

		newPrice := pricing.QuotePosition(cfg, snap, newPos, now).PriceCents
		amount := bumped.PositionPaidCents - newPrice
		if remaining := bumped.PositionPaidCents - bumped.RefundedCents; amount > remaining {
			amount = remaining
		}
		if amount <= 0 {
			continue
		}

		refunds = append(refunds, bumpRefund{
			entry:       bumped,
			amountCents: amount,
			fromPos:     bumped.PositionGuaranteed,
			toPos:       newPos,
		})
	}
	return refunds
}

// compensate unwinds ledger movements after a partial failure: the bidder's
// debit comes back and any refunds already paid out are debited again.
func (s *biddingService) compensate(ctx context.Context, bidder *models.QueueEntry, amountCents int64, paid []bumpRefund) {
	if amountCents > 0 {
		if err := s.ledger.Credit(ctx, bidder.SubmitterID, amountCents, reasonPositionBid, bidder.ID); err != nil {
			s.l.Errorf(ctx, "Failed to reverse bid debit entry_id=%s amount=%d: %v", bidder.ID, amountCents, err)
		}
	}
	for _, r := range paid {
		if err := s.ledger.Debit(ctx, r.entry.SubmitterID, r.amountCents, reasonBumpRefund, r.entry.ID); err != nil {
			s.l.Errorf(ctx, "Failed to reverse bump refund entry_id=%s amount=%d: %v", r.entry.ID, r.amountCents, err)
		}
	}
}

func (s *biddingService) CancelEntry(ctx context.Context, entryID string) error {
	e, err := s.eRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEntryNotFound
		}
		return err
	}

	release, err := acquireSession(ctx, s.locks, s.lockTimeout, e.SessionID)
	if err != nil {
		return err
	}
	defer release()

	e, err = s.eRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEntryNotFound
		}
		return err
	}
	if e.Status == models.EntryStatusCancelled {
		return nil
	}
	if !e.IsPending() {
		return ErrEntryNotPending
	}

	now := s.clk.Now()
	e.Status = models.EntryStatusCancelled
	e.UpdatedAt = now
	if err := s.eRepo.Update(ctx, e); err != nil {
		s.l.Errorf(ctx, "biddingService.CancelEntry: %v", err)
		return err
	}

	if err := s.renumber(ctx, e.SessionID); err != nil {
		return err
	}

	ss, err := s.ssRepo.Get(ctx, e.SessionID)
	if err == nil {
		ss.Touch(now)
		if uErr := s.ssRepo.Update(ctx, ss); uErr != nil {
			s.l.Warnf(ctx, "Failed to touch session session_id=%s: %v", ss.ID, uErr)
		}
	}

	if s.prod != nil {
		if err := s.prod.PublishEntryCancelled(ctx, kafka.EntryCancelledEvent{
			EntryID:   e.ID,
			SessionID: e.SessionID,
		}); err != nil {
			s.l.Errorf(ctx, "Failed to publish entry cancelled event: %v", err)
		}
	}

	s.l.Infof(ctx, "Entry cancelled entry_id=%s session_id=%s", e.ID, e.SessionID)
	return nil
}

// renumber closes the gaps in the display order, writing only the priorities
// that actually changed.
func (s *biddingService) renumber(ctx context.Context, ssID string) error {
	pendingEntries, err := s.eRepo.ListPending(ctx, ssID)
	if err != nil {
		return fmt.Errorf("failed to list pending entries: %w", err)
	}

	changed := make(map[string]int)
	for i, e := range ordering.DisplayOrder(pendingEntries) {
		if e.DisplayPriority != i {
			changed[e.ID] = i
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := s.eRepo.UpdatePriorities(ctx, ssID, changed); err != nil {
		s.l.Errorf(ctx, "biddingService.renumber: %v", err)
		return err
	}
	return nil
}

func (s *biddingService) publishBid(ctx context.Context, e *models.QueueEntry, desired int, amount, quote int64, accepted bool) {
	if s.prod == nil {
		return
	}
	if err := s.prod.PublishBidPlaced(ctx, kafka.BidPlacedEvent{
		EntryID:         e.ID,
		SessionID:       e.SessionID,
		SubmitterID:     e.SubmitterID,
		DesiredPosition: desired,
		AmountCents:     amount,
		QuoteCents:      quote,
		Accepted:        accepted,
	}); err != nil {
		s.l.Errorf(ctx, "Failed to publish bid placed event: %v", err)
	}
}

func (s *biddingService) publishRefund(ctx context.Context, r bumpRefund) {
	if s.prod == nil {
		return
	}
	if err := s.prod.PublishRefundIssued(ctx, kafka.RefundIssuedEvent{
		EntryID:      r.entry.ID,
		SessionID:    r.entry.SessionID,
		SubmitterID:  r.entry.SubmitterID,
		AmountCents:  r.amountCents,
		FromPosition: r.fromPos,
		ToPosition:   r.toPos,
	}); err != nil {
		s.l.Errorf(ctx, "Failed to publish refund issued event: %v", err)
	}
}
