package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"bounty-arbitration-service/models"
)

// flakyStore fails the first `failures` calls with a transient error.
type flakyStore struct {
	Store
	failures int
	calls    int
}

func (f *flakyStore) GetBounty(ctx context.Context, id string) (*models.Bounty, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.GetBounty(ctx, id)
}

func (f *flakyStore) UpdateBounty(ctx context.Context, id string, mutate MutateBountyFunc) (*models.Bounty, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.UpdateBounty(ctx, id, mutate)
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := NewMemoryStore()
	seed(t, inner, "b1", models.ClaimingModelSingleClaim)
	flaky := &flakyStore{Store: inner, failures: 2}
	st := WithRetry(flaky, 3, time.Millisecond)

	got, err := st.GetBounty(context.Background(), "b1")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got.ID != "b1" || flaky.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", flaky.calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	inner := NewMemoryStore()
	seed(t, inner, "b1", models.ClaimingModelSingleClaim)
	flaky := &flakyStore{Store: inner, failures: 10}
	st := WithRetry(flaky, 3, time.Millisecond)

	if _, err := st.GetBounty(context.Background(), "b1"); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls)
	}
}

func TestRetrySkipsSentinels(t *testing.T) {
	flaky := &flakyStore{Store: NewMemoryStore()}
	st := WithRetry(flaky, 5, time.Millisecond)

	if _, err := st.GetBounty(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("not-found must not be retried, got %d calls", flaky.calls)
	}
}

func TestRetryDoesNotRepeatRejectedMutation(t *testing.T) {
	inner := NewMemoryStore()
	seed(t, inner, "b1", models.ClaimingModelSingleClaim)
	flaky := &flakyStore{Store: inner}
	st := WithRetry(flaky, 5, time.Millisecond)

	errRejected := errors.New("rejected")
	mutations := 0
	_, err := st.UpdateBounty(context.Background(), "b1", func(b *models.Bounty) error {
		mutations++
		return errRejected
	})
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	if flaky.calls != 1 || mutations != 1 {
		t.Fatalf("rejected mutation must not be retried: calls=%d mutations=%d", flaky.calls, mutations)
	}
}

func TestRetryUpdateAfterTransientFailure(t *testing.T) {
	inner := NewMemoryStore()
	seed(t, inner, "b1", models.ClaimingModelSingleClaim)
	flaky := &flakyStore{Store: inner, failures: 1}
	st := WithRetry(flaky, 3, time.Millisecond)

	updated, err := st.UpdateBounty(context.Background(), "b1", func(b *models.Bounty) error {
		b.SetLease("alice", testNow, time.Hour)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Holder() != "alice" || flaky.calls != 2 {
		t.Fatalf("unexpected result %+v after %d calls", updated, flaky.calls)
	}
}
