// models/competition_participation.go
package models

import "time"

type ParticipationStatus string

const (
	ParticipationStatusRegistered ParticipationStatus = "registered"
	ParticipationStatusWithdrawn  ParticipationStatus = "withdrawn"
	ParticipationStatusSubmitted  ParticipationStatus = "submitted"
	ParticipationStatusWinner     ParticipationStatus = "winner"
)

// CompetitionParticipation = one contributor's registration on a competition bounty.
// Rows are never deleted; at most one non-withdrawn row exists per (bounty, contributor).
type CompetitionParticipation struct {
	ID            string              `json:"id" gorm:"primaryKey"`
	BountyID      string              `json:"bountyId" gorm:"not null;index;uniqueIndex:idx_participation_active,where:status <> 'withdrawn'"`
	ContributorID string              `json:"contributorId" gorm:"not null;uniqueIndex:idx_participation_active,where:status <> 'withdrawn'"`
	Status        ParticipationStatus `json:"status" gorm:"type:varchar(16);not null;default:'registered'"`
	RegisteredAt  time.Time           `json:"registeredAt" gorm:"not null"`
	WithdrawnAt   *time.Time          `json:"withdrawnAt,omitempty"`
}

// Active reports whether the participation still counts against the pair's uniqueness.
func (p *CompetitionParticipation) Active() bool {
	return p.Status != ParticipationStatusWithdrawn
}
