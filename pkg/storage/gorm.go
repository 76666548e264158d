package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mpislabs/draftflow/pkg/core"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.Storage = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
// Unique violations must surface as gorm.ErrDuplicatedKey, so error
// translation is switched on for db.
func NewGormStorage(db *gorm.DB) *GormStorage {
	if db != nil {
		db.Config.TranslateError = true
	}
	return &GormStorage{db: db}
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.Job{},
		&core.Draft{},
		&core.Source{},
		&core.Entity{},
		&core.EntityVersion{},
		&core.Run{},
		&core.RunOutcome{},
		&core.AuditEvent{},
	)
}

// guardFailure explains why a guarded update of jobID matched no row.
// detail runs only when the job exists, is not terminal and still has the
// expected status, and may report a more specific conflict.
func guardFailure(db *gorm.DB, jobID string, expected core.JobStatus, detail func(*core.Job) error) error {
	var job core.Job
	err := db.First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", core.ErrJobTerminal, jobID, job.Status)
	}
	if job.Status != expected {
		return fmt.Errorf("%w: expected %s, found %s", core.ErrStaleTransition, expected, job.Status)
	}
	if detail != nil {
		if err := detail(&job); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: job %s changed concurrently", core.ErrStaleTransition, jobID)
}

// ownedBy reports ErrLeaseLost when owner is set and does not hold the job.
func ownedBy(owner string) func(*core.Job) error {
	return func(job *core.Job) error {
		if owner != "" && job.LockedBy != owner {
			return fmt.Errorf("%w: job %s", core.ErrLeaseLost, job.ID)
		}
		return nil
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
