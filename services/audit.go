// services/audit.go
package services

import (
	"context"
	"log"
	"time"

	"bounty-arbitration-service/models"
	"bounty-arbitration-service/store"
)

// AuditRecorder appends arbitration events after a transition has been written.
// A failed append is logged and never undoes or fails the transition.
type AuditRecorder struct {
	store store.Store
	ids   IDGenerator
}

func NewAuditRecorder(st store.Store, ids IDGenerator) *AuditRecorder {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &AuditRecorder{store: st, ids: ids}
}

func (r *AuditRecorder) Record(ctx context.Context, bountyID, contributorID string, typ models.EventType, from, to string, at time.Time) {
	if r == nil {
		return
	}
	event := &models.ArbitrationEvent{
		ID:            r.ids.NewID(),
		BountyID:      bountyID,
		ContributorID: contributorID,
		Type:          typ,
		FromStatus:    from,
		ToStatus:      to,
		OccurredAt:    at,
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		log.Printf("⚠️ [AUDIT] failed to record %s event for bounty %s: %v", typ, bountyID, err)
	}
}
