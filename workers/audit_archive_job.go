// workers/audit_archive_job.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"bounty-arbitration-service/models"

	"github.com/go-co-op/gocron/v2"
)

// EventSource lists audit events in [since, until).
type EventSource interface {
	ListEvents(ctx context.Context, since, until time.Time) ([]models.ArbitrationEvent, error)
}

// ObjectUploader stores an object; utils.R2Client satisfies it.
type ObjectUploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// AuditArchiver exports arbitration events to object storage as JSON lines, one
// object per window. A failed window is retried as part of the next one.
//
// Events are stamped before they are appended, so a window closes lag behind the
// clock. An event appended later than lag after its OccurredAt is not archived.
type AuditArchiver struct {
	events   EventSource
	uploader ObjectUploader
	now      func() time.Time
	lag      time.Duration

	mu         sync.Mutex
	archivedTo time.Time
}

func NewAuditArchiver(events EventSource, uploader ObjectUploader, now func() time.Time, start time.Time, lag time.Duration) *AuditArchiver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if lag < 0 {
		lag = 0
	}
	return &AuditArchiver{events: events, uploader: uploader, now: now, lag: lag, archivedTo: start.UTC()}
}

// ArchiveKey is the object key for the window ending at until.
func ArchiveKey(until time.Time) string {
	until = until.UTC()
	return fmt.Sprintf("arbitration-events/%04d/%02d/%02d/%d.jsonl", until.Year(), until.Month(), until.Day(), until.Unix())
}

// Run archives everything since the last successful window up to lag before now.
// It returns the object key written, or "" when the window held no events.
func (a *AuditArchiver) Run(ctx context.Context) (string, error) {
	return a.archive(ctx, a.lag)
}

// Flush archives up to now. Call it once writers have stopped.
func (a *AuditArchiver) Flush(ctx context.Context) (string, error) {
	return a.archive(ctx, 0)
}

func (a *AuditArchiver) archive(ctx context.Context, lag time.Duration) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	since, until := a.archivedTo, a.now().Add(-lag)
	if !until.After(since) {
		return "", nil
	}

	events, err := a.events.ListEvents(ctx, since, until)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		a.archivedTo = until
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return "", fmt.Errorf("encode event %s: %w", events[i].ID, err)
		}
	}

	key := ArchiveKey(until)
	if err := a.uploader.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return "", err
	}
	a.archivedTo = until
	log.Printf("📦 [AUDIT] Archived %d event(s) to %s", len(events), key)
	return key, nil
}

func (s *Scheduler) AddAuditArchiveJob(ctx context.Context, archiver *AuditArchiver, interval time.Duration) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := archiver.Run(ctx); err != nil {
				log.Printf("❌ [AUDIT] Archive run failed: %v", err)
			}
		}),
		gocron.WithName("audit-archive"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule audit archive: %w", err)
	}
	log.Printf("🔁 [SCHEDULER] Audit archive every %s", interval)
	return nil
}
