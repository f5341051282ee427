package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/crowdjuke/crowdjuke/config"
	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/repository"
	"github.com/crowdjuke/crowdjuke/pkg/clock"
	"github.com/crowdjuke/crowdjuke/pkg/lock"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
	"github.com/crowdjuke/crowdjuke/pkg/util"
)

const accessCodeAttempts = 10

type SessionService interface {
	CreateSession(ctx context.Context, venueID string) (*models.QueueSession, error)
	GetSession(ctx context.Context, ssID string) (*models.QueueSession, error)
	EndSession(ctx context.Context, ssID string) error
	JoinByAccessCode(ctx context.Context, code string) (*JoinOutput, error)
	VerifyJoinToken(token string) (sessionID, guestID string, err error)
}

type sessionService struct {
	ssRepo      repository.SessionRepository
	eRepo       repository.EntryRepository
	locks       *lock.Keyed
	lockTimeout time.Duration
	jwtCfg      config.JWTConfig
	clk         clock.Clock
	l           logger.Logger
}

func NewSessionService(
	ssRepo repository.SessionRepository,
	eRepo repository.EntryRepository,
	locks *lock.Keyed,
	lockTimeout time.Duration,
	jwtCfg config.JWTConfig,
	clk clock.Clock,
	l logger.Logger,
) SessionService {
	return &sessionService{
		ssRepo:      ssRepo,
		eRepo:       eRepo,
		locks:       locks,
		lockTimeout: lockTimeout,
		jwtCfg:      jwtCfg,
		clk:         clk,
		l:           l,
	}
}

// CreateSession starts a new live queue for the venue. A venue has at most
// one active session, so any previous one is ended first.
func (s *sessionService) CreateSession(ctx context.Context, venueID string) (*models.QueueSession, error) {
	now := s.clk.Now()

	prev, err := s.ssRepo.GetActiveByVenue(ctx, venueID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	if prev != nil {
		if err := s.EndSession(ctx, prev.ID); err != nil {
			return nil, fmt.Errorf("failed to end previous session: %w", err)
		}
	}

	ss := &models.QueueSession{
		ID:             uuid.NewString(),
		VenueID:        venueID,
		Status:         models.SessionStatusActive,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 0; ; attempt++ {
		code := util.GenerateAccessCode()
		ok, err := s.ssRepo.ReserveAccessCode(ctx, code, ss.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve access code: %w", err)
		}
		if ok {
			ss.AccessCode = code
			break
		}
		if attempt >= accessCodeAttempts {
			return nil, fmt.Errorf("failed to find a free access code after %d attempts", accessCodeAttempts)
		}
	}

	if err := s.ssRepo.Create(ctx, ss); err != nil {
		s.l.Errorf(ctx, "sessionService.CreateSession: %v", err)
		return nil, err
	}

	s.l.Infof(ctx, "Session created session_id=%s venue_id=%s access_code=%s", ss.ID, venueID, ss.AccessCode)

	return ss, nil
}

func (s *sessionService) GetSession(ctx context.Context, ssID string) (*models.QueueSession, error) {
	ss, err := s.ssRepo.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		s.l.Errorf(ctx, "sessionService.GetSession: %v", err)
		return nil, err
	}

	return ss, nil
}

// EndSession closes the session and stops playback. It runs under the same
// per-session lock as bidding and playback so an in-flight transition never
// races the shutdown.
func (s *sessionService) EndSession(ctx context.Context, ssID string) error {
	release, err := acquireSession(ctx, s.locks, s.lockTimeout, ssID)
	if err != nil {
		return err
	}
	defer release()

	ss, err := s.GetSession(ctx, ssID)
	if err != nil {
		return err
	}
	if ss.Status == models.SessionStatusEnded {
		return nil
	}

	now := s.clk.Now()
	if ss.IsPlaying() {
		if err := s.finishPlaying(ctx, ss.CurrentlyPlayingID, now); err != nil {
			return err
		}
	}

	ss.Status = models.SessionStatusEnded
	ss.CurrentlyPlayingID = ""
	ss.UpdatedAt = now

	if err := s.ssRepo.Update(ctx, ss); err != nil {
		s.l.Errorf(ctx, "sessionService.EndSession: %v", err)
		return err
	}

	if ss.AccessCode != "" {
		if err := s.ssRepo.ReleaseAccessCode(ctx, ss.AccessCode); err != nil {
			s.l.Warnf(ctx, "Failed to release access code session_id=%s: %v", ssID, err)
		}
	}

	s.l.Infof(ctx, "Session ended session_id=%s", ssID)

	return nil
}

// finishPlaying marks the session's current entry played so an ended session
// never leaves an entry stranded in the playing state.
func (s *sessionService) finishPlaying(ctx context.Context, entryID string, now time.Time) error {
	e, err := s.eRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if e.Status != models.EntryStatusPlaying {
		return nil
	}

	e.Status = models.EntryStatusPlayed
	e.UpdatedAt = now
	if err := s.eRepo.Update(ctx, e); err != nil {
		s.l.Errorf(ctx, "sessionService.finishPlaying: %v", err)
		return err
	}
	return nil
}

// JoinByAccessCode resolves a 6-digit code to its session and issues a signed
// join token identifying the (anonymous) guest.
func (s *sessionService) JoinByAccessCode(ctx context.Context, code string) (*JoinOutput, error) {
	ss, err := s.ssRepo.GetByAccessCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		s.l.Errorf(ctx, "sessionService.JoinByAccessCode: %v", err)
		return nil, err
	}
	if !ss.IsActive() {
		return nil, ErrSessionEnded
	}

	guestID := uuid.NewString()
	token, err := s.signJoinToken(ss.ID, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign join token: %w", err)
	}

	return &JoinOutput{
		SessionID: ss.ID,
		VenueID:   ss.VenueID,
		GuestID:   guestID,
		JoinToken: token,
	}, nil
}

func (s *sessionService) signJoinToken(ssID, guestID string) (string, error) {
	now := s.clk.Now()
	claims := jwt.MapClaims{
		"session_id": ssID,
		"guest_id":   guestID,
		"iat":        now.Unix(),
		"exp":        now.Add(s.jwtCfg.Expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtCfg.Secret))
}

func (s *sessionService) VerifyJoinToken(tokenStr string) (string, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.clk.Now))
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}

	ssID, _ := claims["session_id"].(string)
	guestID, _ := claims["guest_id"].(string)
	if ssID == "" || guestID == "" {
		return "", "", ErrInvalidToken
	}

	return ssID, guestID, nil
}
