// store/retry.go
package store

import (
	"context"
	"errors"
	"log"
	"time"

	"bounty-arbitration-service/models"

	"github.com/cenkalti/backoff/v4"
)

// RetryingStore retries infrastructure failures of idempotent operations with
// exponential backoff. Sentinel outcomes (not found, duplicate, stale) and errors
// produced by a caller's mutate func are returned on the first attempt.
//
// Inserts are not retried: a commit whose acknowledgement was lost would come
// back as a false duplicate.
type RetryingStore struct {
	Store
	attempts uint64
	base     time.Duration
}

func WithRetry(inner Store, attempts uint64, base time.Duration) *RetryingStore {
	if attempts == 0 {
		attempts = 3
	}
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	return &RetryingStore{Store: inner, attempts: attempts, base: base}
}

func (r *RetryingStore) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.base
	exp.MaxInterval = 40 * r.base
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, r.attempts-1), ctx)
}

func (r *RetryingStore) do(ctx context.Context, op string, fn func() error, permanent func(error) bool) error {
	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isSentinel(err) || ctx.Err() != nil || (permanent != nil && permanent(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy(ctx), func(err error, wait time.Duration) {
		log.Printf("⚠️ [STORE] %s failed, retrying in %s: %v", op, wait, err)
	})
}

func isSentinel(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrStale) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *RetryingStore) GetBounty(ctx context.Context, id string) (*models.Bounty, error) {
	var b *models.Bounty
	err := r.do(ctx, "get bounty", func() error {
		var err error
		b, err = r.Store.GetBounty(ctx, id)
		return err
	}, nil)
	return b, err
}

func (r *RetryingStore) ListBounties(ctx context.Context, filter BountyFilter) ([]models.Bounty, error) {
	var out []models.Bounty
	err := r.do(ctx, "list bounties", func() error {
		var err error
		out, err = r.Store.ListBounties(ctx, filter)
		return err
	}, nil)
	return out, err
}

func (r *RetryingStore) UpdateBounty(ctx context.Context, id string, mutate MutateBountyFunc) (*models.Bounty, error) {
	var (
		b         *models.Bounty
		mutateErr error
	)
	tracked := func(bounty *models.Bounty) error {
		mutateErr = mutate(bounty)
		return mutateErr
	}
	err := r.do(ctx, "update bounty", func() error {
		mutateErr = nil
		var err error
		b, err = r.Store.UpdateBounty(ctx, id, tracked)
		return err
	}, func(err error) bool {
		return mutateErr != nil && errors.Is(err, mutateErr)
	})
	return b, err
}

func (r *RetryingStore) ListExpiredLeases(ctx context.Context, now time.Time, after *ExpiredLease, limit int) ([]ExpiredLease, error) {
	var leases []ExpiredLease
	err := r.do(ctx, "list expired leases", func() error {
		var err error
		leases, err = r.Store.ListExpiredLeases(ctx, now, after, limit)
		return err
	}, nil)
	return leases, err
}

func (r *RetryingStore) GetActiveParticipation(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error) {
	var p *models.CompetitionParticipation
	err := r.do(ctx, "get participation", func() error {
		var err error
		p, err = r.Store.GetActiveParticipation(ctx, bountyID, contributorID)
		return err
	}, nil)
	return p, err
}

func (r *RetryingStore) ListParticipations(ctx context.Context, bountyID string) ([]models.CompetitionParticipation, error) {
	var out []models.CompetitionParticipation
	err := r.do(ctx, "list participations", func() error {
		var err error
		out, err = r.Store.ListParticipations(ctx, bountyID)
		return err
	}, nil)
	return out, err
}

func (r *RetryingStore) UpdateParticipation(ctx context.Context, id string, mutate MutateParticipationFunc) (*models.CompetitionParticipation, error) {
	var (
		p         *models.CompetitionParticipation
		mutateErr error
	)
	tracked := func(participation *models.CompetitionParticipation) error {
		mutateErr = mutate(participation)
		return mutateErr
	}
	err := r.do(ctx, "update participation", func() error {
		mutateErr = nil
		var err error
		p, err = r.Store.UpdateParticipation(ctx, id, tracked)
		return err
	}, func(err error) bool {
		return mutateErr != nil && errors.Is(err, mutateErr)
	})
	return p, err
}

func (r *RetryingStore) ListEvents(ctx context.Context, since, until time.Time) ([]models.ArbitrationEvent, error) {
	var out []models.ArbitrationEvent
	err := r.do(ctx, "list events", func() error {
		var err error
		out, err = r.Store.ListEvents(ctx, since, until)
		return err
	}, nil)
	return out, err
}
