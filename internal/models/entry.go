package models

import (
	"time"

	"github.com/google/uuid"
)

type QueueEntry struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	SubmitterID string      `json:"submitter_id,omitempty"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist"`
	MediaURL    string      `json:"media_url,omitempty"`
	CoverURL    string      `json:"cover_url,omitempty"`
	DurationMs  int         `json:"duration_ms,omitempty"`
	Status      EntryStatus `json:"status"`
	VoteTally   int64       `json:"vote_tally"`
	VoteCount   int64       `json:"vote_count"`

	// DisplayPriority controls paid/positional ordering; lower plays earlier.
	DisplayPriority int `json:"display_priority"`

	// Position-bid bookkeeping. PositionPaidCents and PositionGuaranteed are
	// set together when a bid is accepted; RefundedCents accumulates across
	// later bumps.
	PositionPaidCents  int64 `json:"position_paid_cents,omitempty"`
	PositionGuaranteed int   `json:"position_guaranteed,omitempty"`
	RefundedCents      int64 `json:"refunded_cents"`

	PlayedAt  *time.Time `json:"played_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusPlaying   EntryStatus = "playing"
	EntryStatusPlayed    EntryStatus = "played"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// NewEntry builds a pending entry with all ordering fields populated, so
// callers never depend on zero-value fallbacks.
func NewEntry(sessionID, submitterID, title, artist string, now time.Time) *QueueEntry {
	return &QueueEntry{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		SubmitterID: submitterID,
		Title:       title,
		Artist:      artist,
		Status:      EntryStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (e *QueueEntry) IsPending() bool {
	return e.Status == EntryStatusPending
}

// HasPositionGuarantee reports whether the entry paid for a position and is
// therefore eligible for a bump refund.
func (e *QueueEntry) HasPositionGuarantee() bool {
	return e.PositionPaidCents > 0 && e.PositionGuaranteed > 0
}

func (e *QueueEntry) HasPlayableMedia() bool {
	return e.MediaURL != ""
}
