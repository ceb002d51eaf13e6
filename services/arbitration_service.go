// services/arbitration_service.go
package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"bounty-arbitration-service/models"
	"bounty-arbitration-service/store"
)

type Options struct {
	DefaultLeaseDuration time.Duration
	MaxLeaseDuration     time.Duration
	// ReadTimeReclaim reclaims a lapsed lease when the bounty is read or claimed,
	// in addition to the periodic sweep.
	ReadTimeReclaim  bool
	ReclaimBatchSize int
	Now              Clock
	IDs              IDGenerator
}

// ArbitrationService is the single entry point for claim and join requests. It
// checks that the bounty exists, dispatches on its claiming model and leaves every
// business rule to the component it routes to.
type ArbitrationService struct {
	Store      store.Store
	Arbitrator *ClaimArbitrator
	Reclaimer  *LeaseReclaimer
	Registry   *CompetitionRegistry

	opts Options
}

func NewArbitrationService(st store.Store, opts Options) *ArbitrationService {
	if opts.DefaultLeaseDuration <= 0 {
		opts.DefaultLeaseDuration = DefaultLeaseDuration
	}
	if opts.MaxLeaseDuration <= 0 {
		opts.MaxLeaseDuration = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = SystemClock
	}
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}

	audit := NewAuditRecorder(st, opts.IDs)
	return &ArbitrationService{
		Store:      st,
		Arbitrator: NewClaimArbitrator(st, opts.Now, audit, opts.ReadTimeReclaim),
		Reclaimer:  NewLeaseReclaimer(st, audit, opts.ReclaimBatchSize),
		Registry:   NewCompetitionRegistry(st, opts.IDs, opts.Now, audit),
		opts:       opts,
	}
}

type EntryRequest struct {
	BountyID      string
	ContributorID string
	// Expect pins the claiming model the caller is addressing. Empty accepts either.
	Expect models.ClaimingModel
	// LeaseDuration applies to single-claim bounties only; zero means the default.
	LeaseDuration time.Duration
}

// EntryResult carries exactly one of Bounty (single-claim) or Participation (competition).
type EntryResult struct {
	Bounty        *models.Bounty                   `json:"bounty,omitempty"`
	Participation *models.CompetitionParticipation `json:"participation,omitempty"`
}

// Enter routes a request to the claim arbitrator or the competition registry.
func (s *ArbitrationService) Enter(ctx context.Context, req EntryRequest) (*EntryResult, error) {
	const op = "enter"
	req.ContributorID = strings.TrimSpace(req.ContributorID)
	if req.ContributorID == "" {
		return nil, validationError(op, "contributorId is required")
	}

	bounty, err := s.Store.GetBounty(ctx, req.BountyID)
	if err != nil {
		return nil, translateStoreError(op, req.BountyID, err)
	}
	if req.Expect != "" && bounty.ClaimingModel != req.Expect {
		return nil, modelMismatchError(op, req.BountyID, req.Expect, bounty.ClaimingModel)
	}

	switch bounty.ClaimingModel {
	case models.ClaimingModelSingleClaim:
		duration, err := s.leaseDuration(req.LeaseDuration)
		if err != nil {
			return nil, err
		}
		claimed, err := s.Arbitrator.TryClaim(ctx, req.BountyID, req.ContributorID, duration)
		if err != nil {
			return nil, err
		}
		return &EntryResult{Bounty: claimed}, nil
	case models.ClaimingModelCompetition:
		participation, err := s.Registry.Join(ctx, req.BountyID, req.ContributorID)
		if err != nil {
			return nil, err
		}
		return &EntryResult{Participation: participation}, nil
	default:
		return nil, internalError(op, errors.New("unknown claiming model "+string(bounty.ClaimingModel)))
	}
}

// Claim is Enter restricted to single-claim bounties.
func (s *ArbitrationService) Claim(ctx context.Context, bountyID, contributorID string, leaseDuration time.Duration) (*models.Bounty, error) {
	res, err := s.Enter(ctx, EntryRequest{
		BountyID:      bountyID,
		ContributorID: contributorID,
		Expect:        models.ClaimingModelSingleClaim,
		LeaseDuration: leaseDuration,
	})
	if err != nil {
		return nil, err
	}
	return res.Bounty, nil
}

// Join is Enter restricted to competition bounties.
func (s *ArbitrationService) Join(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error) {
	res, err := s.Enter(ctx, EntryRequest{
		BountyID:      bountyID,
		ContributorID: contributorID,
		Expect:        models.ClaimingModelCompetition,
	})
	if err != nil {
		return nil, err
	}
	return res.Participation, nil
}

func (s *ArbitrationService) Release(ctx context.Context, bountyID, contributorID string) (*models.Bounty, error) {
	return s.Arbitrator.Release(ctx, bountyID, strings.TrimSpace(contributorID))
}

func (s *ArbitrationService) Complete(ctx context.Context, bountyID, contributorID string) (*models.Bounty, error) {
	return s.Arbitrator.Complete(ctx, bountyID, strings.TrimSpace(contributorID))
}

func (s *ArbitrationService) Cancel(ctx context.Context, bountyID string) (*models.Bounty, error) {
	return s.Arbitrator.Cancel(ctx, bountyID)
}

func (s *ArbitrationService) Withdraw(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error) {
	return s.Registry.Withdraw(ctx, bountyID, strings.TrimSpace(contributorID))
}

func (s *ArbitrationService) Participants(ctx context.Context, bountyID string) ([]models.CompetitionParticipation, error) {
	return s.Registry.Participants(ctx, bountyID)
}

// ReclaimExpired runs one reclamation sweep at the current time.
func (s *ArbitrationService) ReclaimExpired(ctx context.Context) ([]string, error) {
	return s.Reclaimer.ReclaimExpired(ctx, s.opts.Now())
}

// ExpiredLeaseIDs lists bounties whose lease has lapsed without reopening them.
func (s *ArbitrationService) ExpiredLeaseIDs(ctx context.Context) ([]string, error) {
	var (
		ids   []string
		after *store.ExpiredLease
		now   = s.opts.Now()
	)
	for {
		page, err := s.Store.ListExpiredLeases(ctx, now, after, store.MaxListLimit)
		if err != nil {
			return ids, internalError("reclaim", err)
		}
		for _, lease := range page {
			ids = append(ids, lease.ID)
		}
		if len(page) < store.MaxListLimit {
			return ids, nil
		}
		last := page[len(page)-1]
		after = &last
	}
}

// GetBounty returns the bounty, first reclaiming a lapsed lease when read-time
// reclamation is enabled so readers never see an expired claim.
func (s *ArbitrationService) GetBounty(ctx context.Context, bountyID string) (*models.Bounty, error) {
	const op = "get"
	if s.opts.ReadTimeReclaim {
		if _, err := s.Reclaimer.ReclaimIfLapsed(ctx, bountyID, s.opts.Now()); err != nil {
			log.Printf("⚠️ [RECLAIM] read-time reclaim of %s failed: %v", bountyID, err)
		}
	}
	bounty, err := s.Store.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, translateStoreError(op, bountyID, err)
	}
	return bounty, nil
}

func (s *ArbitrationService) ListBounties(ctx context.Context, filter store.BountyFilter) ([]models.Bounty, error) {
	bounties, err := s.Store.ListBounties(ctx, filter)
	if err != nil {
		return nil, internalError("list", err)
	}
	return bounties, nil
}

type CreateBountyRequest struct {
	ID            string               `json:"id"`
	ClaimingModel models.ClaimingModel `json:"claimingModel"`
}

// CreateBounty seeds a new open bounty. Bounty authoring lives elsewhere; this
// exists for administration and local runs.
func (s *ArbitrationService) CreateBounty(ctx context.Context, req CreateBountyRequest) (*models.Bounty, error) {
	const op = "create"
	if !req.ClaimingModel.Valid() {
		return nil, validationError(op, "claimingModel must be %q or %q", models.ClaimingModelSingleClaim, models.ClaimingModelCompetition)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = s.opts.IDs.NewID()
	}

	now := s.opts.Now()
	bounty := &models.Bounty{
		ID:            id,
		ClaimingModel: req.ClaimingModel,
		Status:        models.BountyStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.CreateBounty(ctx, bounty); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, conflictError(op, "bounty %s already exists", id)
		}
		return nil, internalError(op, err)
	}
	log.Printf("📌 [BOUNTY] Created %s bounty %s", bounty.ClaimingModel, bounty.ID)
	return bounty, nil
}

func (s *ArbitrationService) leaseDuration(requested time.Duration) (time.Duration, error) {
	switch {
	case requested == 0:
		return s.opts.DefaultLeaseDuration, nil
	case requested < 0:
		return 0, validationError("claim", "lease duration must be positive")
	case requested > s.opts.MaxLeaseDuration:
		return 0, validationError("claim", "lease duration %s exceeds maximum %s", requested, s.opts.MaxLeaseDuration)
	}
	return requested, nil
}

func (s *ArbitrationService) Ping(ctx context.Context) error {
	return s.Store.Ping(ctx)
}
