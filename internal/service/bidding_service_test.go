package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceBidMovesEntry(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	a := env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")
	c := env.addEntry(t, ss.ID, "guest-c", "third")

	env.ledger.Seed("guest-c", 100000)

	out, err := env.bidding.PlaceBid(context.Background(), c.ID, 1, 100000)
	require.NoError(t, err)
	assert.True(t, out.WasAccepted)
	assert.Equal(t, 1, out.Position)
	assert.Positive(t, out.FinalPriceCents)

	assert.Equal(t, []string{c.ID, a.ID, b.ID}, env.displayPositions(t, ss.ID))

	moved, err := env.eRepo.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), moved.PositionPaidCents)
	assert.Equal(t, 1, moved.PositionGuaranteed)

	assert.Equal(t, int64(0), env.ledger.Balance("guest-c"))
}

func TestPlaceBidUnderQuoteRejectedWithoutMutation(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	a := env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")

	env.ledger.Seed("guest-b", 500)

	out, err := env.bidding.PlaceBid(context.Background(), b.ID, 1, 1)
	require.NoError(t, err)
	assert.False(t, out.WasAccepted)
	assert.Positive(t, out.FinalPriceCents)

	// Nothing moved, nothing charged.
	assert.Equal(t, []string{a.ID, b.ID}, env.displayPositions(t, ss.ID))
	assert.Equal(t, int64(500), env.ledger.Balance("guest-b"))
}

func TestPlaceBidInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	a := env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")

	env.ledger.Seed("guest-b", 10)

	_, err := env.bidding.PlaceBid(context.Background(), b.ID, 1, 100000)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, []string{a.ID, b.ID}, env.displayPositions(t, ss.ID))
	assert.Equal(t, int64(10), env.ledger.Balance("guest-b"))
}

func TestPlaceBidRefundsBumpedGuarantees(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")
	c := env.addEntry(t, ss.ID, "guest-c", "third")

	env.ledger.Seed("guest-b", 100000)
	env.ledger.Seed("guest-c", 100000)

	// guest-b pays well over the quote for position 1.
	first, err := env.bidding.PlaceBid(context.Background(), b.ID, 1, 50000)
	require.NoError(t, err)
	require.True(t, first.WasAccepted)

	// guest-c outbids for the same position, bumping b to position 2.
	second, err := env.bidding.PlaceBid(context.Background(), c.ID, 1, 50000)
	require.NoError(t, err)
	require.True(t, second.WasAccepted)
	assert.Equal(t, 1, second.RefundedEntries)

	bumped, err := env.eRepo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Positive(t, bumped.RefundedCents)
	// A refund never exceeds what was paid.
	assert.LessOrEqual(t, bumped.RefundedCents, bumped.PositionPaidCents)

	// guest-b got the refund back on their balance.
	assert.Equal(t, int64(50000)+bumped.RefundedCents, env.ledger.Balance("guest-b"))
}

func TestPlaceBidNoRefundWithinGuarantee(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	a := env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")
	env.addEntry(t, ss.ID, "guest-c", "third")
	d := env.addEntry(t, ss.ID, "guest-d", "fourth")

	env.ledger.Seed("guest-b", 100000)
	env.ledger.Seed("guest-d", 100000)

	// guest-b buys position 3, then a cancellation moves them up to 2. A
	// later bid that pushes them back to 3 stays within the guarantee, so
	// nothing is owed.
	first, err := env.bidding.PlaceBid(context.Background(), b.ID, 3, 10000)
	require.NoError(t, err)
	require.True(t, first.WasAccepted)
	require.NoError(t, env.bidding.CancelEntry(context.Background(), a.ID))

	second, err := env.bidding.PlaceBid(context.Background(), d.ID, 1, 10000)
	require.NoError(t, err)
	require.True(t, second.WasAccepted)
	assert.Zero(t, second.RefundedEntries)

	held, err := env.eRepo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Zero(t, held.RefundedCents)
	assert.Equal(t, int64(90000), env.ledger.Balance("guest-b"))
}

func TestPlaceBidRefundFailureRollsBackDebit(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")
	c := env.addEntry(t, ss.ID, "guest-c", "third")

	env.ledger.Seed("guest-b", 100000)
	env.ledger.Seed("guest-c", 100000)

	first, err := env.bidding.PlaceBid(context.Background(), b.ID, 1, 50000)
	require.NoError(t, err)
	require.True(t, first.WasAccepted)

	order := env.displayPositions(t, ss.ID)
	balanceC := env.ledger.Balance("guest-c")

	// Credits start failing; guest-c's bid would owe guest-b a refund.
	env.ledger.FailCredits = errors.New("ledger unavailable")
	_, err = env.bidding.PlaceBid(context.Background(), c.ID, 1, 50000)
	require.Error(t, err)
	env.ledger.FailCredits = nil

	// Queue order unchanged and the bidder's debit was reversed.
	assert.Equal(t, order, env.displayPositions(t, ss.ID))
	assert.Equal(t, balanceC, env.ledger.Balance("guest-c"))
}

func TestPlaceBidBeyondQueueLengthAppends(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	a := env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")

	env.ledger.Seed("guest-a", 100000)

	out, err := env.bidding.PlaceBid(context.Background(), a.ID, 50, 100000)
	require.NoError(t, err)
	require.True(t, out.WasAccepted)
	assert.Equal(t, 2, out.Position)

	assert.Equal(t, []string{b.ID, a.ID}, env.displayPositions(t, ss.ID))

	// The quote is for the landing position, not the cheaper requested one.
	landed, err := env.queue.QuotePosition(context.Background(), ss.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, landed.PriceCents, out.FinalPriceCents)

	requested, err := env.queue.QuotePosition(context.Background(), ss.ID, 50)
	require.NoError(t, err)
	assert.Greater(t, out.FinalPriceCents, requested.PriceCents)
}

func TestPlaceBidValidation(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")
	e := env.addEntry(t, ss.ID, "guest-a", "song")

	_, err := env.bidding.PlaceBid(context.Background(), e.ID, 0, 100)
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = env.bidding.PlaceBid(context.Background(), "no-such-entry", 1, 100)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	anon := env.addEntry(t, ss.ID, "", "anonymous")
	_, err = env.bidding.PlaceBid(context.Background(), anon.ID, 1, 100)
	assert.ErrorIs(t, err, ErrAnonymousBid)
}

func TestPlaceBidOnPlayedEntry(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")
	e := env.addEntry(t, ss.ID, "guest-a", "song")
	env.addEntry(t, ss.ID, "guest-b", "next")

	_, err := env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)

	env.ledger.Seed("guest-a", 100000)
	_, err = env.bidding.PlaceBid(context.Background(), e.ID, 1, 100000)
	assert.ErrorIs(t, err, ErrEntryNotPending)
}

func TestCancelEntryClosesGap(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	a := env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")
	c := env.addEntry(t, ss.ID, "guest-c", "third")

	require.NoError(t, env.bidding.CancelEntry(context.Background(), b.ID))

	assert.Equal(t, []string{a.ID, c.ID}, env.displayPositions(t, ss.ID))

	// Cancelling again is a no-op.
	require.NoError(t, env.bidding.CancelEntry(context.Background(), b.ID))
}

func TestCancelPaidEntryNoRefund(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	env.addEntry(t, ss.ID, "guest-a", "first")
	b := env.addEntry(t, ss.ID, "guest-b", "second")

	env.ledger.Seed("guest-b", 100000)
	out, err := env.bidding.PlaceBid(context.Background(), b.ID, 1, 50000)
	require.NoError(t, err)
	require.True(t, out.WasAccepted)

	balance := env.ledger.Balance("guest-b")
	require.NoError(t, env.bidding.CancelEntry(context.Background(), b.ID))
	assert.Equal(t, balance, env.ledger.Balance("guest-b"))
}

func TestBusySessionTimesOut(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")
	e := env.addEntry(t, ss.ID, "guest-a", "song")
	env.ledger.Seed("guest-a", 100000)

	// Another operation holds the session's critical section.
	release, err := env.locks.Acquire(context.Background(), ss.ID)
	require.NoError(t, err)
	defer release()

	_, err = env.bidding.PlaceBid(context.Background(), e.ID, 1, 100000)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	_, err = env.playback.Start(context.Background(), ss.ID)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestConcurrentBidsSerialize(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	env.addEntry(t, ss.ID, "guest-seed", "seed")

	const n = 8
	entries := make([]string, n)
	for i := 0; i < n; i++ {
		id := "guest-" + string(rune('a'+i))
		env.ledger.Seed(id, 1000000)
		entries[i] = env.addEntry(t, ss.ID, id, "song").ID
	}

	var wg sync.WaitGroup
	for _, entryID := range entries {
		wg.Add(1)
		go func(entryID string) {
			defer wg.Done()
			_, err := env.bidding.PlaceBid(context.Background(), entryID, 1, 1000000)
			assert.NoError(t, err)
		}(entryID)
	}
	wg.Wait()

	// Every bid landed; priorities stay a clean 0..n sequence.
	positions := env.displayPositions(t, ss.ID)
	assert.Len(t, positions, n+1)

	view, err := env.queue.GetQueue(context.Background(), ss.ID)
	require.NoError(t, err)
	for i, e := range view.Entries {
		assert.Equal(t, i, e.DisplayPriority)
	}
}
