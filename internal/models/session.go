package models

import "time"

type QueueSession struct {
	ID                 string        `json:"id"`
	VenueID            string        `json:"venue_id"`
	Status             SessionStatus `json:"status"`
	CurrentlyPlayingID string        `json:"currently_playing_id,omitempty"`
	AccessCode         string        `json:"access_code"`
	LastActivityAt     time.Time     `json:"last_activity_at"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusPaused SessionStatus = "paused"
	SessionStatusEnded  SessionStatus = "ended"
)

func (s *QueueSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

func (s *QueueSession) IsPlaying() bool {
	return s.CurrentlyPlayingID != ""
}

func (s *QueueSession) Touch(now time.Time) {
	s.LastActivityAt = now
	s.UpdatedAt = now
}
