// workers/scheduler.go
package workers

import (
	"fmt"
	"log"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler owns the gocron scheduler that runs the background jobs.
type Scheduler struct {
	sched gocron.Scheduler
}

func NewScheduler() (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	log.Printf("✅ [SCHEDULER] Started with %d job(s)", len(s.sched.Jobs()))
}

func (s *Scheduler) Stop() error {
	log.Println("⏹️ [SCHEDULER] Shutting down")
	return s.sched.Shutdown()
}
