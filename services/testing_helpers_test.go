package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bounty-arbitration-service/models"
	"bounty-arbitration-service/store"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc   *ArbitrationService
	store store.Store
	clock *fakeClock
}

func newEnv(t *testing.T, st store.Store, readTimeReclaim bool) *testEnv {
	t.Helper()
	clock := newFakeClock()
	svc := NewArbitrationService(st, Options{
		ReadTimeReclaim: readTimeReclaim,
		Now:             clock.Now,
	})
	return &testEnv{svc: svc, store: st, clock: clock}
}

func newMemoryEnv(t *testing.T) *testEnv {
	return newEnv(t, store.NewMemoryStore(), false)
}

func newSQLiteEnv(t *testing.T) *testEnv {
	t.Helper()
	gs, err := store.OpenGorm(store.DriverSQLite, filepath.Join(t.TempDir(), "arbitration.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = gs.Close() })
	return newEnv(t, gs, false)
}

func (e *testEnv) seed(t *testing.T, id string, model models.ClaimingModel) {
	t.Helper()
	if _, err := e.svc.CreateBounty(context.Background(), CreateBountyRequest{ID: id, ClaimingModel: model}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (e *testEnv) bounty(t *testing.T, id string) *models.Bounty {
	t.Helper()
	b, err := e.store.GetBounty(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return b
}

func (e *testEnv) eventTypes(t *testing.T, bountyID string) []models.EventType {
	t.Helper()
	events, err := e.store.ListEvents(context.Background(), epoch.Add(-time.Hour), epoch.Add(365*24*time.Hour))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var types []models.EventType
	for _, ev := range events {
		if ev.BountyID == bountyID {
			types = append(types, ev.Type)
		}
	}
	return types
}

func assertKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}
