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

// CreateRun inserts a pending run.
func (s *GormStorage) CreateRun(ctx context.Context, run *core.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = core.RunPending
	}
	return s.db.WithContext(ctx).Create(run).Error
}

// GetRun retrieves a run by ID.
func (s *GormStorage) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var run core.Run
	err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ReplaceRunOutcomes swaps a run's stored outcome set for outcomes and writes
// the run's aggregate fields, in one transaction.
func (s *GormStorage) ReplaceRunOutcomes(ctx context.Context, run *core.Run, outcomes []*core.RunOutcome) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&core.Run{}).
			Where("id = ?", run.ID).
			Updates(map[string]any{
				"status":       run.Status,
				"finalized":    run.Finalized,
				"reason":       run.Reason,
				"completed_at": run.CompletedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", core.ErrRunNotFound, run.ID)
		}

		if err := tx.Where("run_id = ?", run.ID).Delete(&core.RunOutcome{}).Error; err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return nil
		}
		for _, o := range outcomes {
			o.RunID = run.ID
			if o.ID == "" {
				o.ID = uuid.New().String()
			}
		}
		return tx.Create(&outcomes).Error
	})
}

// ListRunOutcomes returns the stored outcome set of a run.
func (s *GormStorage) ListRunOutcomes(ctx context.Context, runID string) ([]*core.RunOutcome, error) {
	var outcomes []*core.RunOutcome
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("channel ASC, reported_at ASC").
		Find(&outcomes).Error
	return outcomes, err
}

// ExpiredRuns returns unfinalized runs whose deadline has passed.
func (s *GormStorage) ExpiredRuns(ctx context.Context, now time.Time, limit int) ([]*core.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var runs []*core.Run
	err := s.db.WithContext(ctx).
		Where("finalized = ? AND deadline IS NOT NULL AND deadline < ?", false, now).
		Order("deadline ASC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// AppendAudit stores an audit event.
func (s *GormStorage) AppendAudit(ctx context.Context, event *core.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(event).Error
}

// ListAudit returns a job's audit trail, oldest first.
func (s *GormStorage) ListAudit(ctx context.Context, jobID string) ([]*core.AuditEvent, error) {
	var events []*core.AuditEvent
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
