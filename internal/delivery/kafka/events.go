package kafka

import "time"

// Events published by the queue service. Messages are partitioned by
// session_id so per-session ordering is preserved.

type EntryAddedEvent struct {
	EntryID     string    `json:"entry_id"`
	SessionID   string    `json:"session_id"`
	SubmitterID string    `json:"submitter_id,omitempty"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Position    int       `json:"position"`
	PaidCents   int64     `json:"paid_cents,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type EntryCancelledEvent struct {
	EntryID   string    `json:"entry_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

type VoteCastEvent struct {
	EntryID   string    `json:"entry_id"`
	SessionID string    `json:"session_id"`
	Delta     int64     `json:"delta"`
	NewTally  int64     `json:"new_tally"`
	Timestamp time.Time `json:"timestamp"`
}

type BidPlacedEvent struct {
	EntryID         string    `json:"entry_id"`
	SessionID       string    `json:"session_id"`
	SubmitterID     string    `json:"submitter_id,omitempty"`
	DesiredPosition int       `json:"desired_position"`
	AmountCents     int64     `json:"amount_cents"`
	QuoteCents      int64     `json:"quote_cents"`
	Accepted        bool      `json:"accepted"`
	Timestamp       time.Time `json:"timestamp"`
}

type RefundIssuedEvent struct {
	EntryID      string    `json:"entry_id"`
	SessionID    string    `json:"session_id"`
	SubmitterID  string    `json:"submitter_id"`
	AmountCents  int64     `json:"amount_cents"`
	FromPosition int       `json:"from_position"`
	ToPosition   int       `json:"to_position"`
	Timestamp    time.Time `json:"timestamp"`
}

type PlaybackEvent struct {
	SessionID string    `json:"session_id"`
	EntryID   string    `json:"entry_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Finished  bool      `json:"finished,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
