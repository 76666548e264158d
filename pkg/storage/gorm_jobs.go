package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/security"
)

const defaultListLimit = 100

// CreateJob inserts a new job in the queued state.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusQueued
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns jobs matching filter, newest first.
func (s *GormStorage) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, error) {
	q := s.db.WithContext(ctx).Model(&core.Job{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var jobList []*core.Job
	err := q.Order("created_at DESC").Limit(limit).Find(&jobList).Error
	return jobList, err
}

// AdvanceStatus moves a job from expected to next.
// When owner is set the caller must also hold the job's lease.
func (s *GormStorage) AdvanceStatus(ctx context.Context, jobID string, expected, next core.JobStatus, owner string) error {
	db := s.db.WithContext(ctx)
	q := db.Model(&core.Job{}).Where("id = ? AND status = ?", jobID, expected)
	if owner != "" {
		q = q.Where("locked_by = ?", owner)
	}
	result := q.Updates(map[string]any{"status": next})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return guardFailure(db, jobID, expected, ownedBy(owner))
	}
	return nil
}

// FailJob moves any non-terminal job to failed and releases its lease.
// It reports false without error when the job had already failed.
// The reason is sanitized before storage.
func (s *GormStorage) FailJob(ctx context.Context, jobID string, reason string) (bool, error) {
	db := s.db.WithContext(ctx)
	result := db.Model(&core.Job{}).
		Where("id = ? AND status IN ?", jobID, core.NonTerminalStatuses()).
		Updates(map[string]any{
			"status":       core.StatusFailed,
			"reason":       security.SanitizeErrorMessage(reason),
			"locked_by":    "",
			"locked_until": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var job core.Job
	err := db.First(&job, "id = ?", jobID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	case err != nil:
		return false, err
	case job.Status == core.StatusFailed:
		return false, nil
	case job.Status.Terminal():
		return false, fmt.Errorf("%w: job %s is %s", core.ErrJobTerminal, jobID, job.Status)
	default:
		return false, fmt.Errorf("%w: job %s changed concurrently", core.ErrStaleTransition, jobID)
	}
}

// FailJobFrom moves a job from expected to failed, like AdvanceStatus, and
// releases its lease in the same update.
func (s *GormStorage) FailJobFrom(ctx context.Context, jobID string, expected core.JobStatus, owner, reason string) error {
	db := s.db.WithContext(ctx)
	q := db.Model(&core.Job{}).Where("id = ? AND status = ?", jobID, expected)
	if owner != "" {
		q = q.Where("locked_by = ?", owner)
	}
	result := q.Updates(map[string]any{
		"status":       core.StatusFailed,
		"reason":       security.SanitizeErrorMessage(reason),
		"locked_by":    "",
		"locked_until": nil,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return guardFailure(db, jobID, expected, ownedBy(owner))
	}
	return nil
}

// LeaseJob picks the oldest job a worker can drive (queued, or collecting and
// processing jobs whose lease expired) and records workerID as its owner.
// It returns nil when there is nothing to do or another worker won the race.
func (s *GormStorage) LeaseJob(ctx context.Context, workerID string, lease time.Duration) (*core.Job, error) {
	db := s.db.WithContext(ctx)
	now := time.Now()
	leasable := []core.JobStatus{core.StatusQueued, core.StatusCollecting, core.StatusProcessing}

	var job core.Job
	err := db.
		Where("status IN ?", leasable).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		Order("created_at ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lockUntil := now.Add(lease)
	result := db.Model(&core.Job{}).
		Where("id = ? AND status = ?", job.ID, job.Status).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		Updates(map[string]any{
			"locked_by":    workerID,
			"locked_until": lockUntil,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	job.LockedBy = workerID
	job.LockedUntil = &lockUntil
	return &job, nil
}

// Heartbeat extends the lease on a job held by workerID.
func (s *GormStorage) Heartbeat(ctx context.Context, jobID string, workerID string, lease time.Duration) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Update("locked_until", time.Now().Add(lease))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s", core.ErrLeaseLost, jobID)
	}
	return nil
}

// ReleaseLease clears workerID's lease. Releasing a lease that is not held is a no-op.
func (s *GormStorage) ReleaseLease(ctx context.Context, jobID string, workerID string) error {
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Updates(map[string]any{
			"locked_by":    "",
			"locked_until": nil,
		}).Error
}

// CountJobs returns job counts grouped by kind and status.
func (s *GormStorage) CountJobs(ctx context.Context) (map[core.JobKind]map[core.JobStatus]int64, error) {
	type row struct {
		Kind   string
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("kind, status, count(*) as count").
		Group("kind, status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[core.JobKind]map[core.JobStatus]int64)
	for _, r := range rows {
		kind := core.JobKind(r.Kind)
		if stats[kind] == nil {
			stats[kind] = make(map[core.JobStatus]int64)
		}
		stats[kind][core.JobStatus(r.Status)] = r.Count
	}
	return stats, nil
}
