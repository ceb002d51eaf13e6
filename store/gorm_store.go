// store/gorm_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bounty-arbitration-service/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// maxStaleRetries bounds how often a guarded write is re-evaluated after losing a race.
const maxStaleRetries = 5

// GormStore implements Store on top of gorm (postgres in production, sqlite for local runs).
type GormStore struct {
	DB *gorm.DB
}

// OpenGorm connects to the given driver and migrates the schema.
func OpenGorm(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("store: DATABASE_URL is required for the postgres driver")
		}
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("store: sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("store: create sqlite directory: %w", err)
		}
		dialector = sqlite.Open(dsn + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store: sqlite handle: %w", err)
		}
		// SQLite only supports one writer at a time
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	s := NewGormStore(db)
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.Bounty{},
		&models.CompetitionParticipation{},
		&models.ArbitrationEvent{},
	); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Bounties ---

func (s *GormStore) CreateBounty(ctx context.Context, b *models.Bounty) error {
	if err := s.DB.WithContext(ctx).Create(b).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: create bounty: %w", err)
	}
	return nil
}

func (s *GormStore) GetBounty(ctx context.Context, id string) (*models.Bounty, error) {
	var b models.Bounty
	if err := s.DB.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get bounty: %w", err)
	}
	return &b, nil
}

func (s *GormStore) ListBounties(ctx context.Context, filter BountyFilter) ([]models.Bounty, error) {
	query := s.DB.WithContext(ctx).Model(&models.Bounty{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ClaimingModel != "" {
		query = query.Where("claiming_model = ?", filter.ClaimingModel)
	}

	var bounties []models.Bounty
	if err := query.Order("created_at ASC").Limit(effectiveLimit(filter.Limit)).Find(&bounties).Error; err != nil {
		return nil, fmt.Errorf("store: list bounties: %w", err)
	}
	return bounties, nil
}

// UpdateBounty locks the row (SELECT ... FOR UPDATE on postgres), evaluates mutate
// against it and writes back guarded by the version column. A zero-row write means
// someone else got there first; the mutation is re-evaluated against the new row.
func (s *GormStore) UpdateBounty(ctx context.Context, id string, mutate MutateBountyFunc) (*models.Bounty, error) {
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		var updated *models.Bounty
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current models.Bounty
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&current, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("store: lock bounty: %w", err)
			}

			next := current.Clone()
			if err := mutate(next); err != nil {
				return err
			}
			// id, model and creation time are immutable
			next.ID = current.ID
			next.ClaimingModel = current.ClaimingModel
			next.CreatedAt = current.CreatedAt
			next.Version = current.Version + 1

			result := tx.Model(&models.Bounty{}).
				Where("id = ? AND version = ?", id, current.Version).
				Updates(map[string]interface{}{
					"status":           next.Status,
					"claimed_by":       next.ClaimedBy,
					"claimed_at":       next.ClaimedAt,
					"claim_expires_at": next.ClaimExpiresAt,
					"updated_at":       next.UpdatedAt,
					"version":          next.Version,
				})
			if result.Error != nil {
				return fmt.Errorf("store: update bounty: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return ErrStale
			}
			updated = next
			return nil
		})
		if errors.Is(err, ErrStale) {
			log.Printf("⚠️ [STORE] stale write on bounty %s (attempt %d), re-evaluating", id, attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrStale
}

func (s *GormStore) ListExpiredLeases(ctx context.Context, now time.Time, after *ExpiredLease, limit int) ([]ExpiredLease, error) {
	query := s.DB.WithContext(ctx).Model(&models.Bounty{}).
		Where("claiming_model = ? AND status = ? AND claim_expires_at <= ?",
			models.ClaimingModelSingleClaim, models.BountyStatusClaimed, now.UTC())
	if after != nil {
		at := after.ExpiresAt.UTC()
		query = query.Where("(claim_expires_at > ? OR (claim_expires_at = ? AND id > ?))", at, at, after.ID)
	}

	var rows []struct {
		ID             string
		ClaimExpiresAt time.Time
	}
	err := query.Select("id, claim_expires_at").
		Order("claim_expires_at ASC, id ASC").
		Limit(effectiveLimit(limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list expired leases: %w", err)
	}

	leases := make([]ExpiredLease, 0, len(rows))
	for _, r := range rows {
		leases = append(leases, ExpiredLease{ID: r.ID, ExpiresAt: r.ClaimExpiresAt.UTC()})
	}
	return leases, nil
}

// --- Participations ---

// CreateParticipation checks for an active row and inserts inside one transaction.
// The partial unique index on (bounty_id, contributor_id) catches the race the
// check cannot see.
func (s *GormStore) CreateParticipation(ctx context.Context, p *models.CompetitionParticipation) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CompetitionParticipation{}).
			Where("bounty_id = ? AND contributor_id = ? AND status <> ?",
				p.BountyID, p.ContributorID, models.ParticipationStatusWithdrawn).
			Count(&count).Error; err != nil {
			return fmt.Errorf("store: check participation: %w", err)
		}
		if count > 0 {
			return ErrDuplicate
		}
		return tx.Create(p).Error
	})
	if err == nil || errors.Is(err, ErrDuplicate) {
		return err
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return fmt.Errorf("store: create participation: %w", err)
}

func (s *GormStore) GetActiveParticipation(ctx context.Context, bountyID, contributorID string) (*models.CompetitionParticipation, error) {
	var p models.CompetitionParticipation
	err := s.DB.WithContext(ctx).
		Where("bounty_id = ? AND contributor_id = ? AND status <> ?",
			bountyID, contributorID, models.ParticipationStatusWithdrawn).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get participation: %w", err)
	}
	return &p, nil
}

func (s *GormStore) ListParticipations(ctx context.Context, bountyID string) ([]models.CompetitionParticipation, error) {
	var participations []models.CompetitionParticipation
	if err := s.DB.WithContext(ctx).
		Where("bounty_id = ?", bountyID).
		Order("registered_at ASC").
		Find(&participations).Error; err != nil {
		return nil, fmt.Errorf("store: list participations: %w", err)
	}
	return participations, nil
}

func (s *GormStore) UpdateParticipation(ctx context.Context, id string, mutate MutateParticipationFunc) (*models.CompetitionParticipation, error) {
	var updated *models.CompetitionParticipation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.CompetitionParticipation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("store: lock participation: %w", err)
		}

		next := current
		if err := mutate(&next); err != nil {
			return err
		}

		result := tx.Model(&models.CompetitionParticipation{}).
			Where("id = ? AND status = ?", id, current.Status).
			Updates(map[string]interface{}{
				"status":       next.Status,
				"withdrawn_at": next.WithdrawnAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStale
		}
		next.ID = current.ID
		next.BountyID = current.BountyID
		next.ContributorID = current.ContributorID
		next.RegisteredAt = current.RegisteredAt
		updated = &next
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale) {
			return nil, err
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return updated, nil
}

// --- Events ---

func (s *GormStore) AppendEvent(ctx context.Context, e *models.ArbitrationEvent) error {
	if err := s.DB.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

func (s *GormStore) ListEvents(ctx context.Context, since, until time.Time) ([]models.ArbitrationEvent, error) {
	var events []models.ArbitrationEvent
	if err := s.DB.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at < ?", since.UTC(), until.UTC()).
		Order("occurred_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	return events, nil
}

// isUniqueViolation recognises duplicate-key failures from every driver we run on.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
