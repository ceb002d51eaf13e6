// Package store holds the Bounty Record Store: durable keyed storage for bounties,
// competition participations and the arbitration audit trail.
//
// All status mutation goes through UpdateBounty / UpdateParticipation, which are
// atomic read-modify-write operations scoped to a single key.
package store

import (
	"context"
	"errors"
	"time"

	"bounty-arbitration-service/models"
)

var (
	// ErrNotFound is returned when no row exists for the requested key.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert would violate a uniqueness rule.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrStale is returned when a guarded write observed a concurrent modification.
	ErrStale = errors.New("store: stale write")
)

// MutateBountyFunc receives a private copy of the current row. Returning an error
// aborts the update and nothing is written.
type MutateBountyFunc func(b *models.Bounty) error

// MutateParticipationFunc is the participation equivalent of MutateBountyFunc.
type MutateParticipationFunc func(p *models.CompetitionParticipation) error

// ExpiredLease is one lapsed lease. The last entry of a page is the cursor for the next.
type ExpiredLease struct {
	ID        string
	ExpiresAt time.Time
}

type BountyFilter struct {
	Status        models.BountyStatus
	ClaimingModel models.ClaimingModel
	Limit         int
}

// Store is the contract the arbitration core is written against.
type Store interface {
	CreateBounty(ctx context.Context, b *models.Bounty) error
	GetBounty(ctx context.Context, id string) (*models.Bounty, error)
	ListBounties(ctx context.Context, filter BountyFilter) ([]models.Bounty, error)
	// UpdateBounty applies mutate atomically with respect to every other writer
	// of the same id. Writers of different ids never wait on each other.
	UpdateBounty(ctx context.Context, id string, mutate MutateBountyFunc) (*models.Bounty, error)
	// ListExpiredLeases pages through lapsed single-claim leases ordered by
	// (expiry, id), starting strictly after the given cursor (nil for the first page).
	ListExpiredLeases(ctx context.Context, now time.Time, after *ExpiredLease, limit int) ([]ExpiredLease, error)

	// CreateParticipation fails with ErrDuplicate if an active participation
	// already exists for the same (bounty, contributor) pair.
	CreateParticipation(ctx context.Context, p *models.CompetitionParticipation) error
	GetActiveParticipation(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error)
	ListParticipations(ctx context.Context, bountyID string) ([]models.CompetitionParticipation, error)
	UpdateParticipation(ctx context.Context, id string, mutate MutateParticipationFunc) (*models.CompetitionParticipation, error)

	AppendEvent(ctx context.Context, e *models.ArbitrationEvent) error
	ListEvents(ctx context.Context, since, until time.Time) ([]models.ArbitrationEvent, error)

	Ping(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// MaxListLimit is the largest page any list call returns.
const MaxListLimit = 1000

func effectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return defaultListLimit
	}
	return limit
}
