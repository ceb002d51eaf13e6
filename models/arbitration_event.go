// models/arbitration_event.go
package models

import "time"

type EventType string

const (
	EventClaimed   EventType = "claimed"
	EventReleased  EventType = "released"
	EventReclaimed EventType = "reclaimed"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventJoined    EventType = "joined"
	EventWithdrawn EventType = "withdrawn"
)

// ArbitrationEvent is an append-only audit row written after each successful transition.
type ArbitrationEvent struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	BountyID      string    `json:"bountyId" gorm:"not null;index"`
	ContributorID string    `json:"contributorId,omitempty"`
	Type          EventType `json:"type" gorm:"type:varchar(16);not null"`
	FromStatus    string    `json:"fromStatus,omitempty" gorm:"type:varchar(16)"`
	ToStatus      string    `json:"toStatus" gorm:"type:varchar(16)"`
	OccurredAt    time.Time `json:"occurredAt" gorm:"not null;index"`
}
