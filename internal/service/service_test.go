package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crowdjuke/crowdjuke/config"
	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/repository/memory"
	"github.com/crowdjuke/crowdjuke/pkg/clock"
	"github.com/crowdjuke/crowdjuke/pkg/ledger"
	"github.com/crowdjuke/crowdjuke/pkg/lock"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

// testEnv wires the full service stack against in-memory storage, a seeded
// ledger and a fixed clock. No producer: event publishing is best-effort and
// nil-tolerated.
type testEnv struct {
	sessions SessionService
	queue    QueueService
	bidding  BiddingService
	playback PlaybackService

	ssRepo *memory.SessionRepository
	eRepo  *memory.EntryRepository
	vRepo  *memory.VenueRepository
	ledger *ledger.Memory
	clk    *clock.Fixed
	locks  *lock.Keyed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		ssRepo: memory.NewSessionRepository(),
		eRepo:  memory.NewEntryRepository(),
		vRepo:  memory.NewVenueRepository(),
		ledger: ledger.NewMemory(),
		clk:    clock.NewFixed(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)),
	}

	l := logger.InitializeTestZapLogger()
	env.locks = lock.NewKeyed()
	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
	lockTimeout := 100 * time.Millisecond

	env.sessions = NewSessionService(env.ssRepo, env.eRepo, env.locks, lockTimeout, jwtCfg, env.clk, l)
	env.bidding = NewBiddingService(env.ssRepo, env.eRepo, env.vRepo, env.ledger, env.locks, lockTimeout, nil, env.clk, l)
	env.queue = NewQueueService(env.ssRepo, env.eRepo, env.vRepo, env.bidding, nil, env.clk, l)
	env.playback = NewPlaybackService(env.ssRepo, env.eRepo, env.locks, lockTimeout, nil, env.clk, l)

	return env
}

// newSession creates an active session with default pricing for its venue.
func (env *testEnv) newSession(t *testing.T, venueID string) *models.QueueSession {
	t.Helper()

	require.NoError(t, env.vRepo.UpsertPricingConfig(context.Background(), models.DefaultPricingConfig(venueID)))
	ss, err := env.sessions.CreateSession(context.Background(), venueID)
	require.NoError(t, err)
	return ss
}

// addEntry submits a plain unpaid entry and advances the clock a second so
// created-at tie-breaks stay deterministic.
func (env *testEnv) addEntry(t *testing.T, ssID, submitterID, title string) *models.QueueEntry {
	t.Helper()

	out, err := env.queue.AddEntry(context.Background(), &AddEntryInput{
		SessionID:   ssID,
		SubmitterID: submitterID,
		Title:       title,
		Artist:      "artist",
		MediaURL:    "https://media.example/" + title,
	})
	require.NoError(t, err)
	env.clk.Advance(time.Second)
	return out.Entry
}

func (env *testEnv) displayPositions(t *testing.T, ssID string) []string {
	t.Helper()

	view, err := env.queue.GetQueue(context.Background(), ssID)
	require.NoError(t, err)

	ids := make([]string, 0, len(view.Entries))
	for _, e := range view.Entries {
		ids = append(ids, e.EntryID)
	}
	return ids
}
