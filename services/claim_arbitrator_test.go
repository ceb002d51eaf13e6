package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bounty-arbitration-service/models"

	"golang.org/x/sync/errgroup"
)

func TestClaimGrantsDefaultLease(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)

	b, err := env.svc.Claim(context.Background(), "b1", "alice", 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if b.Status != models.BountyStatusClaimed || b.Holder() != "alice" {
		t.Fatalf("unexpected bounty: %+v", b)
	}
	if !b.ClaimedAt.Equal(epoch) {
		t.Fatalf("claimedAt = %s, want %s", b.ClaimedAt, epoch)
	}
	if want := epoch.Add(7 * 24 * time.Hour); !b.ClaimExpiresAt.Equal(want) {
		t.Fatalf("claimExpiresAt = %s, want %s", b.ClaimExpiresAt, want)
	}
}

func TestClaimCustomLease(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)

	b, err := env.svc.Claim(context.Background(), "b1", "alice", 48*time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if want := epoch.Add(48 * time.Hour); !b.ClaimExpiresAt.Equal(want) {
		t.Fatalf("claimExpiresAt = %s, want %s", b.ClaimExpiresAt, want)
	}

	env.seed(t, "b2", models.ClaimingModelSingleClaim)
	_, err = env.svc.Claim(context.Background(), "b2", "alice", 31*24*time.Hour)
	assertKind(t, err, KindValidation)
}

func TestClaimAlreadyClaimed(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)
	ctx := context.Background()

	if _, err := env.svc.Claim(ctx, "b1", "alice", 0); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := env.svc.Claim(ctx, "b1", "bob", 0)
	assertKind(t, err, KindConflict)

	// the holder cannot re-claim either
	_, err = env.svc.Claim(ctx, "b1", "alice", 0)
	assertKind(t, err, KindConflict)

	if got := env.bounty(t, "b1").Holder(); got != "alice" {
		t.Fatalf("holder changed to %q", got)
	}
}

func TestClaimRejectsBadInput(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)
	ctx := context.Background()

	_, err := env.svc.Claim(ctx, "b1", "  ", 0)
	assertKind(t, err, KindValidation)

	_, err = env.svc.Claim(ctx, "nope", "alice", 0)
	assertKind(t, err, KindNotFound)

	_, err = env.svc.Claim(ctx, "b1", "alice", -time.Hour)
	assertKind(t, err, KindValidation)
}

func TestClaimOnCompetitionIsModelMismatch(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "comp", models.ClaimingModelCompetition)

	_, err := env.svc.Claim(context.Background(), "comp", "alice", 0)
	assertKind(t, err, KindModelMismatch)

	// calling the arbitrator directly is checked too
	_, err = env.svc.Arbitrator.TryClaim(context.Background(), "comp", "alice", time.Hour)
	assertKind(t, err, KindModelMismatch)

	if b := env.bounty(t, "comp"); b.Status != models.BountyStatusOpen || b.ClaimedBy != nil {
		t.Fatalf("competition bounty was mutated: %+v", b)
	}
}

func TestConcurrentClaimsExactlyOneWinner(t *testing.T) {
	backends := map[string]func(*testing.T) *testEnv{
		"memory": newMemoryEnv,
		"sqlite": newSQLiteEnv,
	}
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			env := mk(t)
			env.seed(t, "b1", models.ClaimingModelSingleClaim)

			const contenders = 40
			var (
				mu      sync.Mutex
				winners []string
			)
			var g errgroup.Group
			for i := 0; i < contenders; i++ {
				contributor := fmt.Sprintf("c%02d", i)
				g.Go(func() error {
					_, err := env.svc.Claim(context.Background(), "b1", contributor, 0)
					if err == nil {
						mu.Lock()
						winners = append(winners, contributor)
						mu.Unlock()
						return nil
					}
					if KindOf(err) != KindConflict {
						return fmt.Errorf("%s: unexpected error kind: %w", contributor, err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
			if len(winners) != 1 {
				t.Fatalf("expected exactly one winner, got %v", winners)
			}
			if got := env.bounty(t, "b1").Holder(); got != winners[0] {
				t.Fatalf("stored holder %q differs from winner %q", got, winners[0])
			}
		})
	}
}

func TestClaimsOnDifferentBountiesIndependent(t *testing.T) {
	env := newMemoryEnv(t)
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("b%02d", i)
		env.seed(t, id, models.ClaimingModelSingleClaim)
		g.Go(func() error {
			_, err := env.svc.Claim(context.Background(), id, "alice", 0)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("independent claims must all succeed: %v", err)
	}
}

func TestReleaseReopens(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)
	ctx := context.Background()

	if _, err := env.svc.Claim(ctx, "b1", "alice", 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, err := env.svc.Release(ctx, "b1", "bob")
	assertKind(t, err, KindConflict)

	b, err := env.svc.Release(ctx, "b1", "alice")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if b.Status != models.BountyStatusOpen || b.ClaimedBy != nil || b.ClaimedAt != nil || b.ClaimExpiresAt != nil {
		t.Fatalf("release must clear the lease: %+v", b)
	}

	if _, err := env.svc.Claim(ctx, "b1", "bob", 0); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestCompleteRequiresLiveLease(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)
	env.seed(t, "b2", models.ClaimingModelSingleClaim)
	ctx := context.Background()

	if _, err := env.svc.Claim(ctx, "b1", "alice", 0); err != nil {
		t.Fatalf("claim: %v", err)
	}
	b, err := env.svc.Complete(ctx, "b1", "alice")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if b.Status != models.BountyStatusCompleted || b.ClaimedBy != nil {
		t.Fatalf("unexpected completed bounty: %+v", b)
	}

	if _, err := env.svc.Claim(ctx, "b2", "alice", 0); err != nil {
		t.Fatalf("claim: %v", err)
	}
	env.clock.Advance(8 * 24 * time.Hour)
	_, err = env.svc.Complete(ctx, "b2", "alice")
	assertKind(t, err, KindConflict)
}

func TestCompleteBeatsReclaim(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)
	ctx := context.Background()

	if _, err := env.svc.Claim(ctx, "b1", "alice", time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.svc.Complete(ctx, "b1", "alice"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	ids, err := env.svc.ReclaimExpired(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("completed bounty must not be reclaimed, got %v", ids)
	}
	if b := env.bounty(t, "b1"); b.Status != models.BountyStatusCompleted {
		t.Fatalf("status = %s, want completed", b.Status)
	}
}

func TestCancel(t *testing.T) {
	env := newMemoryEnv(t)
	env.seed(t, "b1", models.ClaimingModelSingleClaim)
	env.seed(t, "comp", models.ClaimingModelCompetition)
	ctx := context.Background()

	if _, err := env.svc.Claim(ctx, "b1", "alice", 0); err != nil {
		t.Fatalf("claim: %v", err)
	}
	b, err := env.svc.Cancel(ctx, "b1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if b.Status != models.BountyStatusCancelled || b.ClaimedBy != nil {
		t.Fatalf("unexpected cancelled bounty: %+v", b)
	}
	_, err = env.svc.Cancel(ctx, "b1")
	assertKind(t, err, KindConflict)

	if _, err := env.svc.Cancel(ctx, "comp"); err != nil {
		t.Fatalf("cancel competition: %v", err)
	}
	_, err = env.svc.Join(ctx, "comp", "alice")
	assertKind(t, err, KindConflict)
}
