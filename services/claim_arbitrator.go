// services/claim_arbitrator.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"bounty-arbitration-service/models"
	"bounty-arbitration-service/store"
)

// DefaultLeaseDuration is the lease granted when a claim does not ask for one.
const DefaultLeaseDuration = 7 * 24 * time.Hour

// ClaimArbitrator grants exclusive, expiring leases on single-claim bounties.
// Every decision is made inside store.UpdateBounty, so the status check and the
// write are one atomic step per bounty id.
type ClaimArbitrator struct {
	store           store.Store
	now             Clock
	audit           *AuditRecorder
	reclaimOnAccess bool
}

func NewClaimArbitrator(st store.Store, now Clock, audit *AuditRecorder, reclaimOnAccess bool) *ClaimArbitrator {
	if now == nil {
		now = SystemClock
	}
	return &ClaimArbitrator{store: st, now: now, audit: audit, reclaimOnAccess: reclaimOnAccess}
}

// TryClaim moves the bounty from open to claimed for contributorID. Under N
// concurrent calls on one bounty at most one succeeds; the rest get a conflict.
// When reclaimOnAccess is set, a lapsed lease is reclaimed in the same write.
func (a *ClaimArbitrator) TryClaim(ctx context.Context, bountyID, contributorID string, leaseDuration time.Duration) (*models.Bounty, error) {
	const op = "claim"
	if contributorID == "" {
		return nil, validationError(op, "contributorId is required")
	}
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}

	var (
		now       time.Time
		reclaimed string
	)
	updated, err := a.store.UpdateBounty(ctx, bountyID, func(b *models.Bounty) error {
		now = a.now()
		reclaimed = ""
		if b.ClaimingModel != models.ClaimingModelSingleClaim {
			return modelMismatchError(op, bountyID, models.ClaimingModelSingleClaim, b.ClaimingModel)
		}
		if a.reclaimOnAccess && b.LeaseLapsed(now) {
			reclaimed = b.Holder()
			b.ClearLease(models.BountyStatusOpen, now)
		}
		if b.Status != models.BountyStatusOpen {
			return conflictError(op, "bounty %s is not available (status %s)", bountyID, b.Status)
		}
		b.SetLease(contributorID, now, leaseDuration)
		return nil
	})
	if err != nil {
		return nil, translateStoreError(op, bountyID, err)
	}

	if reclaimed != "" {
		log.Printf("♻️ [CLAIM] Reclaimed lapsed lease of %s on bounty %s before granting", reclaimed, bountyID)
		a.audit.Record(ctx, bountyID, reclaimed, models.EventReclaimed, string(models.BountyStatusClaimed), string(models.BountyStatusOpen), now)
	}
	a.audit.Record(ctx, bountyID, contributorID, models.EventClaimed, string(models.BountyStatusOpen), string(models.BountyStatusClaimed), now)
	log.Printf("✅ [CLAIM] Bounty %s claimed by %s until %s", bountyID, contributorID, updated.ClaimExpiresAt.Format(time.RFC3339))
	return updated, nil
}

// Release gives an unexpired lease back before it runs out.
func (a *ClaimArbitrator) Release(ctx context.Context, bountyID, contributorID string) (*models.Bounty, error) {
	return a.holderTransition(ctx, "release", bountyID, contributorID, models.BountyStatusOpen, models.EventReleased)
}

// Complete marks the bounty completed on behalf of the current lease holder.
// It races with reclamation through the same atomic update: whichever applies
// first leaves the other with a failed precondition.
func (a *ClaimArbitrator) Complete(ctx context.Context, bountyID, contributorID string) (*models.Bounty, error) {
	return a.holderTransition(ctx, "complete", bountyID, contributorID, models.BountyStatusCompleted, models.EventCompleted)
}

func (a *ClaimArbitrator) holderTransition(ctx context.Context, op, bountyID, contributorID string, to models.BountyStatus, event models.EventType) (*models.Bounty, error) {
	if contributorID == "" {
		return nil, validationError(op, "contributorId is required")
	}

	var now time.Time
	updated, err := a.store.UpdateBounty(ctx, bountyID, func(b *models.Bounty) error {
		now = a.now()
		if b.ClaimingModel != models.ClaimingModelSingleClaim {
			return modelMismatchError(op, bountyID, models.ClaimingModelSingleClaim, b.ClaimingModel)
		}
		if b.Status != models.BountyStatusClaimed || b.Holder() != contributorID {
			return conflictError(op, "contributor %s does not hold the lease on bounty %s", contributorID, bountyID)
		}
		if !b.HasLease(now) {
			return conflictError(op, "lease on bounty %s has expired", bountyID)
		}
		b.ClearLease(to, now)
		return nil
	})
	if err != nil {
		return nil, translateStoreError(op, bountyID, err)
	}

	a.audit.Record(ctx, bountyID, contributorID, event, string(models.BountyStatusClaimed), string(to), now)
	log.Printf("✅ [CLAIM] Bounty %s: %s by %s", bountyID, op, contributorID)
	return updated, nil
}

// Cancel moves an open or claimed bounty of either model to cancelled.
func (a *ClaimArbitrator) Cancel(ctx context.Context, bountyID string) (*models.Bounty, error) {
	const op = "cancel"
	var (
		now  time.Time
		from models.BountyStatus
		held string
	)
	updated, err := a.store.UpdateBounty(ctx, bountyID, func(b *models.Bounty) error {
		now = a.now()
		if b.Status.Terminal() {
			return conflictError(op, "bounty %s is already %s", bountyID, b.Status)
		}
		from = b.Status
		held = b.Holder()
		b.ClearLease(models.BountyStatusCancelled, now)
		return nil
	})
	if err != nil {
		return nil, translateStoreError(op, bountyID, err)
	}

	a.audit.Record(ctx, bountyID, held, models.EventCancelled, string(from), string(models.BountyStatusCancelled), now)
	log.Printf("🛑 [CLAIM] Bounty %s cancelled (was %s)", bountyID, from)
	return updated, nil
}

// translateStoreError maps store outcomes onto the arbitration taxonomy. Errors
// that are already classified pass through untouched.
func translateStoreError(op, bountyID string, err error) error {
	var ae *ArbitrationError
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return notFoundError(op, bountyID)
	case errors.Is(err, store.ErrStale):
		return conflictError(op, "bounty %s was modified concurrently", bountyID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return internalError(op, err)
	default:
		log.Printf("❌ [ARBITRATION] %s: store failure on bounty %s: %v", op, bountyID, err)
		return internalError(op, err)
	}
}
