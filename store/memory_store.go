// store/memory_store.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bounty-arbitration-service/models"
)

// MemoryStore is an in-process Store. Each bounty id and each (bounty, contributor)
// pair has its own mutex; mu only guards the maps and is never held across a mutation.
type MemoryStore struct {
	mu             sync.RWMutex
	bounties       map[string]*models.Bounty
	bountyLocks    map[string]*sync.Mutex
	participations map[string]*models.CompetitionParticipation
	pairLocks      map[string]*sync.Mutex

	eventsMu sync.Mutex
	events   []models.ArbitrationEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bounties:       make(map[string]*models.Bounty),
		bountyLocks:    make(map[string]*sync.Mutex),
		participations: make(map[string]*models.CompetitionParticipation),
		pairLocks:      make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateBounty(ctx context.Context, b *models.Bounty) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bounties[b.ID]; exists {
		return ErrDuplicate
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	s.bounties[b.ID] = b.Clone()
	s.bountyLocks[b.ID] = &sync.Mutex{}
	return nil
}

func (s *MemoryStore) GetBounty(ctx context.Context, id string) (*models.Bounty, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bounties[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ListBounties(ctx context.Context, filter BountyFilter) ([]models.Bounty, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []models.Bounty
	for _, b := range s.bounties {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.ClaimingModel != "" && b.ClaimingModel != filter.ClaimingModel {
			continue
		}
		out = append(out, *b.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit := effectiveLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateBounty(ctx context.Context, id string, mutate MutateBountyFunc) (*models.Bounty, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	lock, ok := s.bountyLocks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := s.bounties[id]
	s.mu.RUnlock()

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.ClaimingModel = current.ClaimingModel
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1

	s.mu.Lock()
	s.bounties[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) ListExpiredLeases(ctx context.Context, now time.Time, after *ExpiredLease, limit int) ([]ExpiredLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var lapsed []ExpiredLease
	for _, b := range s.bounties {
		if b.LeaseLapsed(now) {
			lapsed = append(lapsed, ExpiredLease{ID: b.ID, ExpiresAt: *b.ClaimExpiresAt})
		}
	}
	s.mu.RUnlock()

	sort.Slice(lapsed, func(i, j int) bool { return leaseBefore(lapsed[i], lapsed[j]) })
	limit = effectiveLimit(limit)
	page := make([]ExpiredLease, 0, limit)
	for _, l := range lapsed {
		if after != nil && !leaseBefore(*after, l) {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, l)
	}
	return page, nil
}

// leaseBefore orders leases by (expiry, id).
func leaseBefore(a, b ExpiredLease) bool {
	if a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ID < b.ID
	}
	return a.ExpiresAt.Before(b.ExpiresAt)
}

func pairKey(bountyID, contributorID string) string {
	return bountyID + "\x00" + contributorID
}

func (s *MemoryStore) pairLock(bountyID, contributorID string) *sync.Mutex {
	key := pairKey(bountyID, contributorID)
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}

// activeLocked must be called with the pair lock held.
func (s *MemoryStore) activeLocked(bountyID, contributorID, excludeID string) *models.CompetitionParticipation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participations {
		if p.ID != excludeID && p.BountyID == bountyID && p.ContributorID == contributorID && p.Active() {
			return p
		}
	}
	return nil
}

func (s *MemoryStore) CreateParticipation(ctx context.Context, p *models.CompetitionParticipation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.pairLock(p.BountyID, p.ContributorID)
	lock.Lock()
	defer lock.Unlock()

	if s.activeLocked(p.BountyID, p.ContributorID, "") != nil {
		return ErrDuplicate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.participations[p.ID]; exists {
		return ErrDuplicate
	}
	stored := *p
	s.participations[p.ID] = &stored
	return nil
}

func (s *MemoryStore) GetActiveParticipation(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participations {
		if p.BountyID == bountyID && p.ContributorID == contributorID && p.Active() {
			found := *p
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListParticipations(ctx context.Context, bountyID string) ([]models.CompetitionParticipation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []models.CompetitionParticipation
	for _, p := range s.participations {
		if p.BountyID == bountyID {
			out = append(out, *p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateParticipation(ctx context.Context, id string, mutate MutateParticipationFunc) (*models.CompetitionParticipation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	current, ok := s.participations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	lock := s.pairLock(current.BountyID, current.ContributorID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current = s.participations[id]
	s.mu.RUnlock()

	next := *current
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.BountyID = current.BountyID
	next.ContributorID = current.ContributorID
	next.RegisteredAt = current.RegisteredAt

	if next.Active() && !current.Active() && s.activeLocked(next.BountyID, next.ContributorID, id) != nil {
		return nil, ErrDuplicate
	}

	s.mu.Lock()
	s.participations[id] = &next
	s.mu.Unlock()
	updated := next
	return &updated, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e *models.ArbitrationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, since, until time.Time) ([]models.ArbitrationEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	var out []models.ArbitrationEvent
	for _, e := range s.events {
		if !e.OccurredAt.Before(since) && e.OccurredAt.Before(until) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}
