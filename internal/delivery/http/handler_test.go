package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdjuke/crowdjuke/config"
	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/repository/memory"
	"github.com/crowdjuke/crowdjuke/internal/service"
	"github.com/crowdjuke/crowdjuke/pkg/clock"
	"github.com/crowdjuke/crowdjuke/pkg/ledger"
	"github.com/crowdjuke/crowdjuke/pkg/lock"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

// handlerEnv serves the full router over in-memory storage so tests exercise
// routing, middleware and handlers together.
type handlerEnv struct {
	router   *chi.Mux
	sessions service.SessionService
	queue    service.QueueService
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	ssRepo := memory.NewSessionRepository()
	eRepo := memory.NewEntryRepository()
	vRepo := memory.NewVenueRepository()
	ldg := ledger.NewMemory()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	locks := lock.NewKeyed()
	l := logger.InitializeTestZapLogger()
	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
	lockTimeout := 100 * time.Millisecond

	ssSvc := service.NewSessionService(ssRepo, eRepo, locks, lockTimeout, jwtCfg, clk, l)
	bidSvc := service.NewBiddingService(ssRepo, eRepo, vRepo, ldg, locks, lockTimeout, nil, clk, l)
	qSvc := service.NewQueueService(ssRepo, eRepo, vRepo, bidSvc, nil, clk, l)
	pbSvc := service.NewPlaybackService(ssRepo, eRepo, locks, lockTimeout, nil, clk, l)

	require.NoError(t, vRepo.UpsertPricingConfig(context.Background(), models.DefaultPricingConfig("venue-1")))
	require.NoError(t, vRepo.UpsertPricingConfig(context.Background(), models.DefaultPricingConfig("venue-2")))

	h := NewHTTPHandler(ssSvc, qSvc, bidSvc, pbSvc, l)
	return &handlerEnv{
		router:   NewRouter(h, ssSvc),
		sessions: ssSvc,
		queue:    qSvc,
	}
}

func (env *handlerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestAddEntryRejectsForeignToken(t *testing.T) {
	env := newHandlerEnv(t)

	a, err := env.sessions.CreateSession(context.Background(), "venue-1")
	require.NoError(t, err)
	b, err := env.sessions.CreateSession(context.Background(), "venue-2")
	require.NoError(t, err)

	join, err := env.sessions.JoinByAccessCode(context.Background(), a.AccessCode)
	require.NoError(t, err)

	body := map[string]any{"title": "song", "artist": "artist"}

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+b.ID+"/entries", join.JoinToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+a.ID+"/entries", join.JoinToken, body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Anonymous adds carry no binding and still pass.
	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+b.ID+"/entries", "", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestEntryWritesRejectForeignToken(t *testing.T) {
	env := newHandlerEnv(t)

	a, err := env.sessions.CreateSession(context.Background(), "venue-1")
	require.NoError(t, err)
	b, err := env.sessions.CreateSession(context.Background(), "venue-2")
	require.NoError(t, err)

	joinA, err := env.sessions.JoinByAccessCode(context.Background(), a.AccessCode)
	require.NoError(t, err)
	joinB, err := env.sessions.JoinByAccessCode(context.Background(), b.AccessCode)
	require.NoError(t, err)

	out, err := env.queue.AddEntry(context.Background(), &service.AddEntryInput{
		SessionID:   b.ID,
		SubmitterID: joinB.GuestID,
		Title:       "song",
		Artist:      "artist",
	})
	require.NoError(t, err)
	entryID := out.Entry.ID

	vote := map[string]any{"delta": 1}
	bid := map[string]any{"position": 1, "amount_cents": 100}

	rec := env.do(t, http.MethodPost, "/api/v1/entries/"+entryID+"/vote", joinA.JoinToken, vote)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/entries/"+entryID+"/bid", joinA.JoinToken, bid)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/entries/"+entryID, joinA.JoinToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The token the entry's own session issued is accepted.
	rec = env.do(t, http.MethodPost, "/api/v1/entries/"+entryID+"/vote", joinB.JoinToken, vote)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJoinTokenMiddlewareRejectsGarbage(t *testing.T) {
	env := newHandlerEnv(t)

	a, err := env.sessions.CreateSession(context.Background(), "venue-1")
	require.NoError(t, err)

	body := map[string]any{"title": "song", "artist": "artist"}

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+a.ID+"/entries", "not-a-token", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
