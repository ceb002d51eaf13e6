// services/lease_reclaimer.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"bounty-arbitration-service/models"
	"bounty-arbitration-service/store"
)

var errLeaseNotLapsed = errors.New("lease not lapsed")

// LeaseReclaimer returns single-claim bounties whose lease has run out to open.
type LeaseReclaimer struct {
	store     store.Store
	audit     *AuditRecorder
	batchSize int
}

func NewLeaseReclaimer(st store.Store, audit *AuditRecorder, batchSize int) *LeaseReclaimer {
	if batchSize <= 0 {
		batchSize = 200
	}
	if batchSize > store.MaxListLimit {
		batchSize = store.MaxListLimit
	}
	return &LeaseReclaimer{store: st, audit: audit, batchSize: batchSize}
}

// ReclaimExpired reopens every single-claim bounty with claimExpiresAt <= now and
// returns the ids it reopened. Each bounty is re-checked inside its own atomic
// update, so a completion or re-claim that lands first turns the reclaim into a no-op.
// Store failures on individual bounties are logged and reported as one internal
// error after the sweep; they never leave a bounty half-cleared. Pages advance by
// (expiry, id) cursor, so rows that keep failing never hide the ones behind them.
func (r *LeaseReclaimer) ReclaimExpired(ctx context.Context, now time.Time) ([]string, error) {
	const op = "reclaim"
	now = now.UTC()

	var (
		reclaimed []string
		failures  []error
		after     *store.ExpiredLease
	)
	for {
		page, err := r.store.ListExpiredLeases(ctx, now, after, r.batchSize)
		if err != nil {
			log.Printf("❌ [RECLAIM] Failed to list expired leases: %v", err)
			return reclaimed, internalError(op, err)
		}

		for _, lease := range page {
			ok, err := r.reclaim(ctx, lease.ID, now)
			if err != nil {
				failures = append(failures, err)
				continue
			}
			if ok {
				reclaimed = append(reclaimed, lease.ID)
			}
		}

		if len(page) < r.batchSize {
			break
		}
		last := page[len(page)-1]
		after = &last
	}

	if len(reclaimed) > 0 {
		log.Printf("♻️ [RECLAIM] Reopened %d bounty(ies) with lapsed leases", len(reclaimed))
	}
	if len(failures) > 0 {
		return reclaimed, internalError(op, errors.Join(failures...))
	}
	return reclaimed, nil
}

// ReclaimIfLapsed is the read-time form of ReclaimExpired for a single bounty.
func (r *LeaseReclaimer) ReclaimIfLapsed(ctx context.Context, bountyID string, now time.Time) (bool, error) {
	return r.reclaim(ctx, bountyID, now.UTC())
}

func (r *LeaseReclaimer) reclaim(ctx context.Context, bountyID string, now time.Time) (bool, error) {
	var holder string
	_, err := r.store.UpdateBounty(ctx, bountyID, func(b *models.Bounty) error {
		if !b.LeaseLapsed(now) {
			return errLeaseNotLapsed
		}
		holder = b.Holder()
		b.ClearLease(models.BountyStatusOpen, now)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errLeaseNotLapsed), errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		log.Printf("❌ [RECLAIM] Failed to reclaim bounty %s: %v", bountyID, err)
		return false, err
	}

	r.audit.Record(ctx, bountyID, holder, models.EventReclaimed, string(models.BountyStatusClaimed), string(models.BountyStatusOpen), now)
	log.Printf("♻️ [RECLAIM] Bounty %s reopened (lease of %s lapsed)", bountyID, holder)
	return true, nil
}
