// services/competition_registry.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"bounty-arbitration-service/models"
	"bounty-arbitration-service/store"
)

// CompetitionRegistry keeps the participant roster of competition bounties free
// of duplicates. Registration never mutates the bounty itself.
type CompetitionRegistry struct {
	store store.Store
	ids   IDGenerator
	now   Clock
	audit *AuditRecorder
}

func NewCompetitionRegistry(st store.Store, ids IDGenerator, now Clock, audit *AuditRecorder) *CompetitionRegistry {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if now == nil {
		now = SystemClock
	}
	return &CompetitionRegistry{store: st, ids: ids, now: now, audit: audit}
}

// Join registers contributorID on a competition bounty. A second join by the same
// contributor while the first participation is active fails with a conflict.
func (r *CompetitionRegistry) Join(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error) {
	const op = "join"
	if contributorID == "" {
		return nil, validationError(op, "contributorId is required")
	}

	bounty, err := r.store.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, translateStoreError(op, bountyID, err)
	}
	if bounty.ClaimingModel != models.ClaimingModelCompetition {
		return nil, modelMismatchError(op, bountyID, models.ClaimingModelCompetition, bounty.ClaimingModel)
	}
	if bounty.Status.Terminal() {
		return nil, conflictError(op, "competition %s is %s", bountyID, bounty.Status)
	}

	participation := &models.CompetitionParticipation{
		ID:            r.ids.NewID(),
		BountyID:      bountyID,
		ContributorID: contributorID,
		Status:        models.ParticipationStatusRegistered,
		RegisteredAt:  r.now(),
	}
	if err := r.store.CreateParticipation(ctx, participation); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, conflictError(op, "contributor %s already joined competition %s", contributorID, bountyID)
		}
		log.Printf("❌ [JOIN] Failed to register %s on %s: %v", contributorID, bountyID, err)
		return nil, internalError(op, err)
	}

	r.audit.Record(ctx, bountyID, contributorID, models.EventJoined, "", string(models.ParticipationStatusRegistered), participation.RegisteredAt)
	log.Printf("🏁 [JOIN] %s registered for competition %s", contributorID, bountyID)
	return participation, nil
}

// Withdraw marks the contributor's registered participation as withdrawn. The row
// is kept; a later Join creates a new one.
func (r *CompetitionRegistry) Withdraw(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error) {
	const op = "withdraw"
	if contributorID == "" {
		return nil, validationError(op, "contributorId is required")
	}

	bounty, err := r.store.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, translateStoreError(op, bountyID, err)
	}
	if bounty.ClaimingModel != models.ClaimingModelCompetition {
		return nil, modelMismatchError(op, bountyID, models.ClaimingModelCompetition, bounty.ClaimingModel)
	}

	active, err := r.store.GetActiveParticipation(ctx, bountyID, contributorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, conflictError(op, "contributor %s has no active participation in %s", contributorID, bountyID)
		}
		return nil, internalError(op, err)
	}

	var at time.Time
	updated, err := r.store.UpdateParticipation(ctx, active.ID, func(p *models.CompetitionParticipation) error {
		if p.Status != models.ParticipationStatusRegistered {
			return conflictError(op, "participation %s is %s and cannot be withdrawn", p.ID, p.Status)
		}
		at = r.now()
		p.Status = models.ParticipationStatusWithdrawn
		p.WithdrawnAt = &at
		return nil
	})
	if err != nil {
		var ae *ArbitrationError
		switch {
		case errors.As(err, &ae):
			return nil, err
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrStale):
			return nil, conflictError(op, "participation of %s in %s changed concurrently", contributorID, bountyID)
		default:
			log.Printf("❌ [JOIN] Failed to withdraw %s from %s: %v", contributorID, bountyID, err)
			return nil, internalError(op, err)
		}
	}

	r.audit.Record(ctx, bountyID, contributorID, models.EventWithdrawn, string(models.ParticipationStatusRegistered), string(models.ParticipationStatusWithdrawn), at)
	log.Printf("👋 [JOIN] %s withdrew from competition %s", contributorID, bountyID)
	return updated, nil
}

func (r *CompetitionRegistry) Participants(ctx context.Context, bountyID string) ([]models.CompetitionParticipation, error) {
	const op = "participants"
	bounty, err := r.store.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, translateStoreError(op, bountyID, err)
	}
	if bounty.ClaimingModel != models.ClaimingModelCompetition {
		return nil, modelMismatchError(op, bountyID, models.ClaimingModelCompetition, bounty.ClaimingModel)
	}
	participations, err := r.store.ListParticipations(ctx, bountyID)
	if err != nil {
		return nil, internalError(op, err)
	}
	return participations, nil
}
