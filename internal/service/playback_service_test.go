package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdjuke/crowdjuke/internal/models"
)

func TestPlaybackLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	first := env.addEntry(t, ss.ID, "guest-a", "one")
	second := env.addEntry(t, ss.ID, "guest-b", "two")

	started, err := env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, started.ID)
	assert.Equal(t, models.EntryStatusPlaying, started.Status)
	require.NotNil(t, started.PlayedAt)

	cur, err := env.sessions.GetSession(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, cur.CurrentlyPlayingID)

	advanced, err := env.playback.Next(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.False(t, advanced.QueueFinished)
	assert.Equal(t, second.ID, advanced.Entry.ID)

	// The finished entry stays played, not pending.
	done, err := env.eRepo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPlayed, done.Status)
	assert.NotNil(t, done.PlayedAt)

	final, err := env.playback.Next(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.True(t, final.QueueFinished)
	assert.Nil(t, final.Entry)

	cur, err = env.sessions.GetSession(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.False(t, cur.IsPlaying())
}

func TestStartBreaksPriorityTieByVotes(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	// Two entries sharing a display priority; votes decide which plays.
	now := env.clk.Now()
	quiet := models.NewEntry(ss.ID, "guest-a", "quiet", "artist", now)
	quiet.MediaURL = "https://media.example/quiet"
	loud := models.NewEntry(ss.ID, "guest-b", "loud", "artist", now)
	loud.MediaURL = "https://media.example/loud"
	loud.VoteTally = 5
	require.NoError(t, env.eRepo.Create(context.Background(), quiet))
	require.NoError(t, env.eRepo.Create(context.Background(), loud))

	started, err := env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.Equal(t, loud.ID, started.ID)
}

func TestStartEmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	_, err := env.playback.Start(context.Background(), ss.ID)
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestStartNoPlayableMedia(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	out, err := env.queue.AddEntry(context.Background(), &AddEntryInput{
		SessionID: ss.ID,
		Title:     "no media",
		Artist:    "artist",
	})
	require.NoError(t, err)

	_, err = env.playback.Start(context.Background(), ss.ID)
	assert.ErrorIs(t, err, ErrNoPlayableMedia)

	// The entry stays pending; the operator resolves it and retries.
	e, err := env.eRepo.Get(context.Background(), out.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, e.Status)
}

func TestStartWhilePlayingForceStops(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	first := env.addEntry(t, ss.ID, "guest-a", "one")
	second := env.addEntry(t, ss.ID, "guest-b", "two")

	_, err := env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)

	// A second start force-stops the current entry; it lands back at the
	// head of the queue, so the restart resumes it.
	restarted, err := env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, restarted.ID)

	// At most one entry is playing.
	playing := 0
	for _, id := range []string{first.ID, second.ID} {
		e, err := env.eRepo.Get(context.Background(), id)
		require.NoError(t, err)
		if e.Status == models.EntryStatusPlaying {
			playing++
		}
	}
	assert.Equal(t, 1, playing)

	cur, err := env.sessions.GetSession(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, cur.CurrentlyPlayingID)
}

func TestNextOntoUnplayableMediaLeavesSessionIdle(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	first := env.addEntry(t, ss.ID, "guest-a", "one")
	out, err := env.queue.AddEntry(context.Background(), &AddEntryInput{
		SessionID: ss.ID,
		Title:     "no media",
		Artist:    "artist",
	})
	require.NoError(t, err)

	_, err = env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)

	_, err = env.playback.Next(context.Background(), ss.ID)
	assert.ErrorIs(t, err, ErrNoPlayableMedia)

	// The finished entry is played and the stored session no longer points
	// at it; the failure leaves the session idle, not half-advanced.
	done, err := env.eRepo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPlayed, done.Status)

	cur, err := env.sessions.GetSession(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.False(t, cur.IsPlaying())
	assert.Empty(t, cur.CurrentlyPlayingID)

	state, err := env.queue.GetState(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.False(t, state.IsPlaying)
	assert.Nil(t, state.NowPlaying)

	// Stopping now is a no-op and cannot resurrect the played entry.
	require.NoError(t, env.playback.Stop(context.Background(), ss.ID))
	done, err = env.eRepo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPlayed, done.Status)

	bad, err := env.eRepo.Get(context.Background(), out.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, bad.Status)
}

func TestStartOntoUnplayableMediaLeavesSessionIdle(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	first := env.addEntry(t, ss.ID, "guest-a", "one")

	_, err := env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)

	// The media link goes dead while the entry plays. A restart force-stops
	// it and then fails on the unplayable head.
	e, err := env.eRepo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	e.MediaURL = ""
	require.NoError(t, env.eRepo.Update(context.Background(), e))

	_, err = env.playback.Start(context.Background(), ss.ID)
	assert.ErrorIs(t, err, ErrNoPlayableMedia)

	cur, err := env.sessions.GetSession(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.False(t, cur.IsPlaying())
	assert.Empty(t, cur.CurrentlyPlayingID)

	e, err = env.eRepo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, e.Status)
}

func TestStopReturnsEntryToQueue(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	first := env.addEntry(t, ss.ID, "guest-a", "one")
	env.addEntry(t, ss.ID, "guest-b", "two")

	_, err := env.playback.Start(context.Background(), ss.ID)
	require.NoError(t, err)

	require.NoError(t, env.playback.Stop(context.Background(), ss.ID))

	cur, err := env.sessions.GetSession(context.Background(), ss.ID)
	require.NoError(t, err)
	assert.False(t, cur.IsPlaying())

	// Back at the head of the queue with its timestamp cleared.
	e, err := env.eRepo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, e.Status)
	assert.Nil(t, e.PlayedAt)

	positions := env.displayPositions(t, ss.ID)
	require.Len(t, positions, 2)
	assert.Equal(t, first.ID, positions[0])
}

func TestStopIdleIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")

	require.NoError(t, env.playback.Stop(context.Background(), ss.ID))
	require.NoError(t, env.playback.Stop(context.Background(), ss.ID))
}

func TestPlaybackOnEndedSession(t *testing.T) {
	env := newTestEnv(t)
	ss := env.newSession(t, "venue-1")
	env.addEntry(t, ss.ID, "guest-a", "one")

	require.NoError(t, env.sessions.EndSession(context.Background(), ss.ID))

	_, err := env.playback.Start(context.Background(), ss.ID)
	assert.ErrorIs(t, err, ErrSessionEnded)

	_, err = env.playback.Next(context.Background(), ss.ID)
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestPlaybackUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.playback.Start(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
