// Package memory holds in-process repository implementations. They back the
// service tests and the server's standalone mode (no Redis required).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/crowdjuke/crowdjuke/internal/models"
	"github.com/crowdjuke/crowdjuke/internal/pricing"
	"github.com/crowdjuke/crowdjuke/internal/repository"
)

type SessionRepository struct {
	mu          sync.RWMutex
	sessions    map[string]*models.QueueSession
	accessCodes map[string]string
	venueActive map[string]string
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions:    make(map[string]*models.QueueSession),
		accessCodes: make(map[string]string),
		venueActive: make(map[string]string),
	}
}

func (r *SessionRepository) Create(ctx context.Context, ss *models.QueueSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *ss
	r.sessions[ss.ID] = &cp
	if ss.Status == models.SessionStatusActive {
		r.venueActive[ss.VenueID] = ss.ID
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, ssID string) (*models.QueueSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ss, ok := r.sessions[ssID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ss
	return &cp, nil
}

func (r *SessionRepository) Update(ctx context.Context, ss *models.QueueSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[ss.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *ss
	r.sessions[ss.ID] = &cp
	if ss.Status == models.SessionStatusEnded && r.venueActive[ss.VenueID] == ss.ID {
		delete(r.venueActive, ss.VenueID)
	}
	return nil
}

func (r *SessionRepository) GetByAccessCode(ctx context.Context, code string) (*models.QueueSession, error) {
	r.mu.RLock()
	ssID, ok := r.accessCodes[code]
	r.mu.RUnlock()

	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.Get(ctx, ssID)
}

func (r *SessionRepository) GetActiveByVenue(ctx context.Context, venueID string) (*models.QueueSession, error) {
	r.mu.RLock()
	ssID, ok := r.venueActive[venueID]
	r.mu.RUnlock()

	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.Get(ctx, ssID)
}

func (r *SessionRepository) ReserveAccessCode(ctx context.Context, code, ssID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.accessCodes[code]; taken {
		return false, nil
	}
	r.accessCodes[code] = ssID
	return true, nil
}

func (r *SessionRepository) ReleaseAccessCode(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accessCodes, code)
	return nil
}

type EntryRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.QueueEntry
	// lastAdd tracks each submitter's most recent add per session, for the
	// active-participant pricing window.
	lastAdd map[string]map[string]time.Time
}

func NewEntryRepository() *EntryRepository {
	return &EntryRepository{
		entries: make(map[string]*models.QueueEntry),
		lastAdd: make(map[string]map[string]time.Time),
	}
}

func (r *EntryRepository) Create(ctx context.Context, e *models.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *e
	r.entries[e.ID] = &cp

	if e.SubmitterID != "" {
		if r.lastAdd[e.SessionID] == nil {
			r.lastAdd[e.SessionID] = make(map[string]time.Time)
		}
		r.lastAdd[e.SessionID][e.SubmitterID] = e.CreatedAt
	}
	return nil
}

func (r *EntryRepository) Get(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entryID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *EntryRepository) Update(ctx context.Context, e *models.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *EntryRepository) ListPending(ctx context.Context, ssID string) ([]*models.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.QueueEntry, 0)
	for _, e := range r.entries {
		if e.SessionID == ssID && e.IsPending() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *EntryRepository) IncrementVote(ctx context.Context, entryID string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entryID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	e.VoteTally += delta
	e.VoteCount++
	return e.VoteTally, nil
}

func (r *EntryRepository) UpdatePriorities(ctx context.Context, ssID string, priorities map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for entryID, prio := range priorities {
		if e, ok := r.entries[entryID]; ok {
			e.DisplayPriority = prio
		}
	}
	return nil
}

func (r *EntryRepository) ActivitySnapshot(ctx context.Context, ssID string, now time.Time) (pricing.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var snap pricing.Snapshot
	addCutoff := now.Add(-pricing.VelocityWindow)
	for _, e := range r.entries {
		if e.SessionID == ssID && e.CreatedAt.After(addCutoff) {
			snap.RecentAdds++
		}
	}

	activeCutoff := now.Add(-pricing.ActiveWindow)
	for _, last := range r.lastAdd[ssID] {
		if last.After(activeCutoff) {
			snap.ActiveSubmitters++
		}
	}
	return snap, nil
}

type VenueRepository struct {
	mu      sync.RWMutex
	configs map[string]*models.VenuePricingConfig
}

func NewVenueRepository() *VenueRepository {
	return &VenueRepository{
		configs: make(map[string]*models.VenuePricingConfig),
	}
}

func (r *VenueRepository) GetPricingConfig(ctx context.Context, venueID string) (*models.VenuePricingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[venueID]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (r *VenueRepository) UpsertPricingConfig(ctx context.Context, cfg *models.VenuePricingConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *cfg
	r.configs[cfg.VenueID] = &cp
	return nil
}
