package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mpislabs/draftflow/pkg/core"
)

// ClaimCommit marks a job as being committed by claimID until the given time.
// The job must be awaiting approval at draftNo with no live claim.
func (s *GormStorage) ClaimCommit(ctx context.Context, jobID string, draftNo int, claimID string, until time.Time) error {
	db := s.db.WithContext(ctx)
	result := db.Model(&core.Job{}).
		Where("id = ? AND status = ? AND draft_no = ?", jobID, core.StatusAwaitingApproval, draftNo).
		Where("(locked_by = ? OR locked_until IS NULL OR locked_until < ?)", "", time.Now()).
		Updates(map[string]any{
			"locked_by":    claimID,
			"locked_until": until,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return guardFailure(db, jobID, core.StatusAwaitingApproval, draftGuard(draftNo))
	}
	return nil
}

// WriteVersion appends version to its entity and then points the entity's
// active version at it, in one transaction. The caller must hold claimID on
// the version's job. If the job already produced a version, version is
// filled from the stored row instead.
func (s *GormStorage) WriteVersion(ctx context.Context, claimID string, version *core.EntityVersion) error {
	if version.JobID == nil {
		return errors.New("storage: version has no job")
	}
	jobID := *version.JobID

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held int64
		if err := tx.Model(&core.Job{}).
			Where("id = ? AND locked_by = ?", jobID, claimID).
			Count(&held).Error; err != nil {
			return err
		}
		if held == 0 {
			return fmt.Errorf("%w: commit claim on job %s", core.ErrLeaseLost, jobID)
		}

		var existing core.EntityVersion
		err := tx.First(&existing, "job_id = ?", jobID).Error
		if err == nil {
			*version = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var maxNo int
		if err := tx.Model(&core.EntityVersion{}).
			Where("entity_id = ?", version.EntityID).
			Select("COALESCE(MAX(version_no), 0)").
			Scan(&maxNo).Error; err != nil {
			return err
		}

		if version.ID == "" {
			version.ID = uuid.New().String()
		}
		version.VersionNo = maxNo + 1
		if err := tx.Create(version).Error; err != nil {
			return err
		}

		// The active pointer moves only after the version row exists.
		result := tx.Model(&core.Entity{}).
			Where("id = ?", version.EntityID).
			Update("active_version_id", version.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", core.ErrEntityNotFound, version.EntityID)
		}
		return nil
	})
}

// FinalizeCommit moves a claimed job to committed or committed_degraded,
// records the resulting entity and clears the claim.
func (s *GormStorage) FinalizeCommit(ctx context.Context, jobID, claimID string, status core.JobStatus, entityID string) error {
	if status != core.StatusCommitted && status != core.StatusCommittedDegraded {
		return fmt.Errorf("%w: awaiting_approval -> %s", core.ErrInvalidTransition, status)
	}
	db := s.db.WithContext(ctx)
	result := db.Model(&core.Job{}).
		Where("id = ? AND status = ? AND locked_by = ?", jobID, core.StatusAwaitingApproval, claimID).
		Updates(map[string]any{
			"status":           status,
			"result_entity_id": entityID,
			"locked_by":        "",
			"locked_until":     nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return guardFailure(db, jobID, core.StatusAwaitingApproval, ownedBy(claimID))
	}
	return nil
}

// ReleaseCommitClaim drops claimID's claim so the job can be edited or confirmed again.
func (s *GormStorage) ReleaseCommitClaim(ctx context.Context, jobID, claimID string) error {
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ? AND locked_by = ?", jobID, core.StatusAwaitingApproval, claimID).
		Updates(map[string]any{
			"locked_by":    "",
			"locked_until": nil,
		}).Error
}

// ExpiredCommitClaims returns jobs whose commit claim outlived its lease.
func (s *GormStorage) ExpiredCommitClaims(ctx context.Context, now time.Time, limit int) ([]*core.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND locked_by <> ? AND locked_until < ?", core.StatusAwaitingApproval, "", now).
		Order("locked_until ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// MarkVersionIndexed records that a version reached the memory index.
func (s *GormStorage) MarkVersionIndexed(ctx context.Context, versionID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&core.EntityVersion{}).
		Where("id = ?", versionID).
		Update("indexed_at", at).Error
}

// ListUnindexedVersions returns versions whose index write is outstanding, oldest first.
func (s *GormStorage) ListUnindexedVersions(ctx context.Context, limit int) ([]*core.EntityVersion, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var versions []*core.EntityVersion
	err := s.db.WithContext(ctx).
		Where("indexed_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&versions).Error
	return versions, err
}
