// services/ids.go
package services

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces collision-resistant identifiers for new records.
type IDGenerator interface {
	NewID() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Clock returns the current time. Arbitration always works in UTC.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }
