// workers/lease_reclaim_job.go
package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Reclaimer is the slice of the arbitration service the sweep needs.
type Reclaimer interface {
	ReclaimExpired(ctx context.Context) ([]string, error)
}

// AddLeaseReclaimJob sweeps lapsed leases every interval. Runs never overlap:
// a sweep still in progress makes the next tick reschedule.
func (s *Scheduler) AddLeaseReclaimJob(ctx context.Context, reclaimer Reclaimer, interval time.Duration) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			RunLeaseReclaim(ctx, reclaimer)
		}),
		gocron.WithName("lease-reclaim"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule lease reclaim: %w", err)
	}
	log.Printf("🔁 [SCHEDULER] Lease reclaim every %s", interval)
	return nil
}

// RunLeaseReclaim performs one sweep and logs the outcome.
func RunLeaseReclaim(ctx context.Context, reclaimer Reclaimer) []string {
	if ctx.Err() != nil {
		return nil
	}
	ids, err := reclaimer.ReclaimExpired(ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Lease reclaim finished with errors (%d reopened): %v", len(ids), err)
		return ids
	}
	if len(ids) > 0 {
		log.Printf("✅ [SCHEDULER] Reopened %d bounty(ies): %v", len(ids), ids)
	}
	return ids
}
