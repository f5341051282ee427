package service

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrEntryNotPending = errors.New("entry is not pending")
	ErrInvalidCode     = errors.New("invalid access code")
	ErrInvalidToken    = errors.New("invalid join token")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAnonymousBid      = errors.New("paid bids require an identified submitter")
	ErrInvalidPosition   = errors.New("requested position must be a positive integer")
	ErrInvalidVoteDelta  = errors.New("vote delta must be non-zero")

	ErrEmptyQueue      = errors.New("queue is empty")
	ErrNoPlayableMedia = errors.New("entry has no playable media")

	// ErrConcurrentModification means the session lock could not be acquired
	// in time; the operation is safe to retry.
	ErrConcurrentModification = errors.New("session is busy, retry")
)
