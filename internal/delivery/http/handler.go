package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/service"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

type HTTPHandler struct {
	sessionService  service.SessionService
	queueService    service.QueueService
	biddingService  service.BiddingService
	playbackService service.PlaybackService
	logger          logger.Logger
	validator       *validator.Validate
}

func NewHTTPHandler(
	sessionService service.SessionService,
	queueService service.QueueService,
	biddingService service.BiddingService,
	playbackService service.PlaybackService,
	l logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		sessionService:  sessionService,
		queueService:    queueService,
		biddingService:  biddingService,
		playbackService: playbackService,
		logger:          l,
		validator:       validator.New(),
	}
}

// HealthCheck handles health check requests
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "crowdjuke",
	}
	h.respondJSON(w, http.StatusOK, response)
}

type createSessionRequest struct {
	VenueID string `json:"venue_id" validate:"required"`
}

// CreateSession opens a new live queue for a venue.
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	ss, err := h.sessionService.CreateSession(r.Context(), req.VenueID)
	if err != nil {
		h.logger.Errorf(r.Context(), "Failed to create session: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, ss)
}

// EndSession closes a session; its queue stops accepting writes.
func (h *HTTPHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	if err := h.sessionService.EndSession(r.Context(), ssID); err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			h.respondError(w, http.StatusNotFound, "Session not found", err)
		case errors.Is(err, service.ErrConcurrentModification):
			h.respondError(w, http.StatusConflict, "Queue is busy, retry", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to end session session_id=%s: %v", ssID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to end session", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"session_id": ssID, "status": "ended"})
}

type joinSessionRequest struct {
	AccessCode string `json:"access_code" validate:"required,len=6"`
}

// JoinSession exchanges a venue access code for a guest join token.
func (h *HTTPHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	out, err := h.sessionService.JoinByAccessCode(r.Context(), req.AccessCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			h.respondError(w, http.StatusNotFound, "Unknown access code", err)
		case errors.Is(err, service.ErrSessionEnded):
			h.respondError(w, http.StatusGone, "Session has ended", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to join session: %v", err)
			h.respondError(w, http.StatusInternalServerError, "Failed to join session", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, out)
}

// GetQueue returns the display order with jump-ahead quotes.
func (h *HTTPHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	view, err := h.queueService.GetQueue(r.Context(), ssID)
	if err != nil {
		h.respondQueueError(w, r, ssID, err, "Failed to load queue")
		return
	}

	h.respondJSON(w, http.StatusOK, view)
}

// GetState is the cheap polling endpoint for audience screens.
func (h *HTTPHandler) GetState(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	state, err := h.queueService.GetState(r.Context(), ssID)
	if err != nil {
		h.respondQueueError(w, r, ssID, err, "Failed to load state")
		return
	}

	h.respondJSON(w, http.StatusOK, state)
}

// GetQuote prices a jump to the requested position without committing.
func (h *HTTPHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	position, err := strconv.Atoi(r.URL.Query().Get("position"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Position must be an integer", err)
		return
	}

	quote, err := h.queueService.QuotePosition(r.Context(), ssID, position)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPosition):
			h.respondError(w, http.StatusBadRequest, "Position must be a positive integer", err)
		case errors.Is(err, service.ErrSessionNotFound):
			h.respondError(w, http.StatusNotFound, "Session not found", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to quote position session_id=%s: %v", ssID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to quote position", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, quote)
}

// AddEntry submits a song, optionally bidding for a position in the same
// request. The submitter comes from the join token when one is presented.
func (h *HTTPHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}
	if tokenSS := TokenSessionID(r.Context()); tokenSS != "" && tokenSS != ssID {
		h.respondError(w, http.StatusForbidden, "Join token is for a different session", nil)
		return
	}

	var req service.AddEntryInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.SessionID = ssID
	if guestID := GuestID(r.Context()); guestID != "" {
		req.SubmitterID = guestID
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	out, err := h.queueService.AddEntry(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			h.respondError(w, http.StatusNotFound, "Session not found", err)
		case errors.Is(err, service.ErrSessionEnded):
			h.respondError(w, http.StatusGone, "Session has ended", err)
		case errors.Is(err, service.ErrInsufficientFunds):
			h.respondError(w, http.StatusPaymentRequired, "Insufficient funds", err)
		case errors.Is(err, service.ErrAnonymousBid):
			h.respondError(w, http.StatusUnauthorized, "Paid bids require a join token", err)
		case errors.Is(err, service.ErrInvalidPosition):
			h.respondError(w, http.StatusBadRequest, "Position must be a positive integer", err)
		case errors.Is(err, service.ErrConcurrentModification):
			h.respondError(w, http.StatusConflict, "Queue is busy, retry", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to add entry session_id=%s: %v", ssID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to add entry", err)
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, out)
}

type voteRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

// Vote applies an up or down vote to an entry.
func (h *HTTPHandler) Vote(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	if entryID == "" {
		h.respondError(w, http.StatusBadRequest, "Entry ID is required", nil)
		return
	}

	if !h.entryMatchesToken(w, r, entryID) {
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	out, err := h.queueService.Vote(r.Context(), entryID, req.Delta)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEntryNotFound):
			h.respondError(w, http.StatusNotFound, "Entry not found", err)
		case errors.Is(err, service.ErrInvalidVoteDelta):
			h.respondError(w, http.StatusBadRequest, "Vote delta must be non-zero", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to vote entry_id=%s: %v", entryID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to vote", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, out)
}

type bidRequest struct {
	Position    int   `json:"position" validate:"required,min=1"`
	AmountCents int64 `json:"amount_cents" validate:"required,min=1"`
}

// PlaceBid pays to move an existing entry to a position.
func (h *HTTPHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	if entryID == "" {
		h.respondError(w, http.StatusBadRequest, "Entry ID is required", nil)
		return
	}

	if !h.entryMatchesToken(w, r, entryID) {
		return
	}

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	out, err := h.biddingService.PlaceBid(r.Context(), entryID, req.Position, req.AmountCents)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEntryNotFound):
			h.respondError(w, http.StatusNotFound, "Entry not found", err)
		case errors.Is(err, service.ErrEntryNotPending):
			h.respondError(w, http.StatusConflict, "Entry is no longer pending", err)
		case errors.Is(err, service.ErrSessionEnded):
			h.respondError(w, http.StatusGone, "Session has ended", err)
		case errors.Is(err, service.ErrInsufficientFunds):
			h.respondError(w, http.StatusPaymentRequired, "Insufficient funds", err)
		case errors.Is(err, service.ErrAnonymousBid):
			h.respondError(w, http.StatusUnauthorized, "Paid bids require a join token", err)
		case errors.Is(err, service.ErrInvalidPosition):
			h.respondError(w, http.StatusBadRequest, "Position must be a positive integer", err)
		case errors.Is(err, service.ErrConcurrentModification):
			h.respondError(w, http.StatusConflict, "Queue is busy, retry", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to place bid entry_id=%s: %v", entryID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to place bid", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, out)
}

// CancelEntry withdraws a pending entry.
func (h *HTTPHandler) CancelEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	if entryID == "" {
		h.respondError(w, http.StatusBadRequest, "Entry ID is required", nil)
		return
	}

	if !h.entryMatchesToken(w, r, entryID) {
		return
	}

	if err := h.biddingService.CancelEntry(r.Context(), entryID); err != nil {
		switch {
		case errors.Is(err, service.ErrEntryNotFound):
			h.respondError(w, http.StatusNotFound, "Entry not found", err)
		case errors.Is(err, service.ErrEntryNotPending):
			h.respondError(w, http.StatusConflict, "Entry is no longer pending", err)
		case errors.Is(err, service.ErrConcurrentModification):
			h.respondError(w, http.StatusConflict, "Queue is busy, retry", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to cancel entry entry_id=%s: %v", entryID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to cancel entry", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"entry_id": entryID, "status": "cancelled"})
}

// StartPlayback begins playing the head of the queue.
func (h *HTTPHandler) StartPlayback(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	e, err := h.playbackService.Start(r.Context(), ssID)
	if err != nil {
		h.respondPlaybackError(w, r, ssID, err, "Failed to start playback")
		return
	}

	h.respondJSON(w, http.StatusOK, e)
}

// AdvancePlayback finishes the current entry and starts the next one.
func (h *HTTPHandler) AdvancePlayback(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	out, err := h.playbackService.Next(r.Context(), ssID)
	if err != nil {
		h.respondPlaybackError(w, r, ssID, err, "Failed to advance playback")
		return
	}

	h.respondJSON(w, http.StatusOK, out)
}

// StopPlayback halts the session, returning the current entry to the queue.
func (h *HTTPHandler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	ssID := chi.URLParam(r, "sessionId")
	if ssID == "" {
		h.respondError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	if err := h.playbackService.Stop(r.Context(), ssID); err != nil {
		h.respondPlaybackError(w, r, ssID, err, "Failed to stop playback")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"session_id": ssID, "status": "stopped"})
}

// UpdatePricing replaces a venue's pricing configuration.
func (h *HTTPHandler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueId")
	if venueID == "" {
		h.respondError(w, http.StatusBadRequest, "Venue ID is required", nil)
		return
	}

	var cfg models.VenuePricingConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg.VenueID = venueID

	if err := cfg.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid pricing config", err)
		return
	}

	if err := h.queueService.UpdatePricingConfig(r.Context(), &cfg); err != nil {
		h.logger.Errorf(r.Context(), "Failed to update pricing venue_id=%s: %v", venueID, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to update pricing", err)
		return
	}

	h.respondJSON(w, http.StatusOK, &cfg)
}

// Helper functions

// entryMatchesToken rejects writes against entries outside the session the
// request's join token was issued for. Anonymous requests carry no binding to
// enforce. Writes the error response itself and reports whether to proceed.
func (h *HTTPHandler) entryMatchesToken(w http.ResponseWriter, r *http.Request, entryID string) bool {
	tokenSS := TokenSessionID(r.Context())
	if tokenSS == "" {
		return true
	}

	e, err := h.queueService.GetEntry(r.Context(), entryID)
	if err != nil {
		if errors.Is(err, service.ErrEntryNotFound) {
			h.respondError(w, http.StatusNotFound, "Entry not found", err)
		} else {
			h.logger.Errorf(r.Context(), "Failed to load entry entry_id=%s: %v", entryID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to load entry", err)
		}
		return false
	}
	if e.SessionID != tokenSS {
		h.respondError(w, http.StatusForbidden, "Join token is for a different session", nil)
		return false
	}
	return true
}

func (h *HTTPHandler) respondQueueError(w http.ResponseWriter, r *http.Request, ssID string, err error, message string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, "Session not found", err)
	default:
		h.logger.Errorf(r.Context(), "%s session_id=%s: %v", message, ssID, err)
		h.respondError(w, http.StatusInternalServerError, message, err)
	}
}

func (h *HTTPHandler) respondPlaybackError(w http.ResponseWriter, r *http.Request, ssID string, err error, message string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, "Session not found", err)
	case errors.Is(err, service.ErrSessionEnded):
		h.respondError(w, http.StatusGone, "Session has ended", err)
	case errors.Is(err, service.ErrEmptyQueue):
		h.respondError(w, http.StatusConflict, "Queue is empty", err)
	case errors.Is(err, service.ErrNoPlayableMedia):
		h.respondError(w, http.StatusUnprocessableEntity, "Next entry has no playable media", err)
	case errors.Is(err, service.ErrConcurrentModification):
		h.respondError(w, http.StatusConflict, "Queue is busy, retry", err)
	default:
		h.logger.Errorf(r.Context(), "%s session_id=%s: %v", message, ssID, err)
		h.respondError(w, http.StatusInternalServerError, message, err)
	}
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf(context.Background(), "Failed to encode JSON response: %v", err)
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error": message,
		"code":  statusCode,
	}
	if err != nil {
		h.logger.Debugf(context.Background(), "Error response: %s: %v", message, err)
	}
	h.respondJSON(w, statusCode, response)
}
