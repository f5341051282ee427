package service

import (
	"time"

	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/pricing"
)

type AddEntryInput struct {
	SessionID   string `json:"session_id" validate:"required"`
	SubmitterID string `json:"submitter_id"`
	Title       string `json:"title" validate:"required"`
	Artist      string `json:"artist" validate:"required"`
	MediaURL    string `json:"media_url"`
	CoverURL    string `json:"cover_url"`
	DurationMs  int    `json:"duration_ms"`

	// DesiredPosition > 0 together with AmountCents > 0 turns the add into a
	// position bid executed in the same operation.
	DesiredPosition int   `json:"desired_position"`
	AmountCents     int64 `json:"amount_cents"`
}

type AddEntryOutput struct {
	Entry      *models.QueueEntry `json:"entry"`
	Position   int                `json:"position"`
	PaidCents  int64              `json:"paid_cents,omitempty"`
	QuoteCents int64              `json:"quote_cents,omitempty"`
}

type EntryView struct {
	EntryID             string `json:"entry_id"`
	Title               string `json:"title"`
	Artist              string `json:"artist"`
	CoverURL            string `json:"cover_url,omitempty"`
	SubmitterID         string `json:"submitter_id,omitempty"`
	VoteTally           int64  `json:"vote_tally"`
	DisplayPriority     int    `json:"display_priority"`
	Position            int    `json:"position"`
	IsPlaying           bool   `json:"is_playing"`
	JumpAheadPriceCents int64  `json:"jump_ahead_price_cents,omitempty"`
}

type NowPlayingView struct {
	EntryID  string     `json:"entry_id"`
	Title    string     `json:"title"`
	Artist   string     `json:"artist"`
	MediaURL string     `json:"media_url,omitempty"`
	CoverURL string     `json:"cover_url,omitempty"`
	PlayedAt *time.Time `json:"played_at,omitempty"`
}

type QueueView struct {
	SessionID  string          `json:"session_id"`
	AccessCode string          `json:"access_code,omitempty"`
	NowPlaying *NowPlayingView `json:"now_playing,omitempty"`
	Entries    []EntryView     `json:"entries"`
}

// StateView is the cheap polling shape for audience screens.
type StateView struct {
	SessionID  string          `json:"session_id"`
	IsPlaying  bool            `json:"is_playing"`
	NowPlaying *NowPlayingView `json:"now_playing,omitempty"`
	Queue      []EntryView     `json:"queue"`
}

type VoteOutput struct {
	EntryID  string `json:"entry_id"`
	NewTally int64  `json:"new_tally"`
}

type BidOutput struct {
	EntryID         string `json:"entry_id"`
	WasAccepted     bool   `json:"was_accepted"`
	FinalPriceCents int64  `json:"final_price_cents"`
	Position        int    `json:"position,omitempty"`
	RefundedEntries int    `json:"refunded_entries,omitempty"`
}

type QuoteOutput struct {
	SessionID  string          `json:"session_id"`
	Position   int             `json:"position"`
	PriceCents int64           `json:"price_cents"`
	Factors    pricing.Factors `json:"factors"`
}

type AdvanceOutput struct {
	Entry         *models.QueueEntry `json:"entry,omitempty"`
	QueueFinished bool               `json:"queue_finished"`
}

type JoinOutput struct {
	SessionID string `json:"session_id"`
	VenueID   string `json:"venue_id"`
	GuestID   string `json:"guest_id"`
	JoinToken string `json:"join_token"`
}
