// models/bounty.go
package models

import "time"

type ClaimingModel string

const (
	ClaimingModelSingleClaim ClaimingModel = "single-claim"
	ClaimingModelCompetition ClaimingModel = "competition"
)

func (m ClaimingModel) Valid() bool {
	return m == ClaimingModelSingleClaim || m == ClaimingModelCompetition
}

type BountyStatus string

const (
	BountyStatusOpen      BountyStatus = "open"
	BountyStatusClaimed   BountyStatus = "claimed"
	BountyStatusCompleted BountyStatus = "completed"
	BountyStatusExpired   BountyStatus = "expired"
	BountyStatusCancelled BountyStatus = "cancelled"
)

// Terminal reports whether no further claim or registration can succeed.
func (s BountyStatus) Terminal() bool {
	switch s {
	case BountyStatusCompleted, BountyStatusExpired, BountyStatusCancelled:
		return true
	}
	return false
}

// Bounty is a unit of paid work. Lease fields are only set while Status is "claimed".
type Bounty struct {
	ID             string        `json:"id" gorm:"primaryKey"`
	ClaimingModel  ClaimingModel `json:"claimingModel" gorm:"type:varchar(16);not null;index"`
	Status         BountyStatus  `json:"status" gorm:"type:varchar(16);not null;default:'open';index:idx_bounty_lease,priority:1"`
	ClaimedBy      *string       `json:"claimedBy,omitempty"`
	ClaimedAt      *time.Time    `json:"claimedAt,omitempty"`
	ClaimExpiresAt *time.Time    `json:"claimExpiresAt,omitempty" gorm:"index:idx_bounty_lease,priority:2"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt" gorm:"autoUpdateTime:false"`

	// Version guards every write; a writer holding a stale copy matches zero rows.
	Version int64 `json:"-" gorm:"not null;default:0"`
}

// HasLease reports whether a contributor holds an unexpired lease at now.
func (b *Bounty) HasLease(now time.Time) bool {
	return b.Status == BountyStatusClaimed &&
		b.ClaimedBy != nil &&
		b.ClaimExpiresAt != nil &&
		now.Before(*b.ClaimExpiresAt)
}

// LeaseLapsed reports whether a single-claim lease has run out at now.
func (b *Bounty) LeaseLapsed(now time.Time) bool {
	return b.ClaimingModel == ClaimingModelSingleClaim &&
		b.Status == BountyStatusClaimed &&
		b.ClaimExpiresAt != nil &&
		!b.ClaimExpiresAt.After(now)
}

// SetLease grants the lease to contributorID. All lease fields move together.
func (b *Bounty) SetLease(contributorID string, now time.Time, duration time.Duration) {
	holder := contributorID
	claimedAt := now
	expiresAt := now.Add(duration)
	b.Status = BountyStatusClaimed
	b.ClaimedBy = &holder
	b.ClaimedAt = &claimedAt
	b.ClaimExpiresAt = &expiresAt
	b.UpdatedAt = now
}

// ClearLease drops every lease field and moves the bounty to status.
func (b *Bounty) ClearLease(status BountyStatus, now time.Time) {
	b.Status = status
	b.ClaimedBy = nil
	b.ClaimedAt = nil
	b.ClaimExpiresAt = nil
	b.UpdatedAt = now
}

// Holder returns the current lease holder, or "".
func (b *Bounty) Holder() string {
	if b.ClaimedBy == nil {
		return ""
	}
	return *b.ClaimedBy
}

// Clone returns a deep copy so callers never share lease pointers.
func (b *Bounty) Clone() *Bounty {
	c := *b
	if b.ClaimedBy != nil {
		v := *b.ClaimedBy
		c.ClaimedBy = &v
	}
	if b.ClaimedAt != nil {
		v := *b.ClaimedAt
		c.ClaimedAt = &v
	}
	if b.ClaimExpiresAt != nil {
		v := *b.ClaimExpiresAt
		c.ClaimExpiresAt = &v
	}
	return &c
}
