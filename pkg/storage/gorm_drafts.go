package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mpislabs/draftflow/pkg/core"
)

// CreateFirstDraft stores draft #1 and moves the job from processing to
// awaiting_approval in one transaction. The job's lease is released.
// When owner is set the caller must hold the job's lease.
func (s *GormStorage) CreateFirstDraft(ctx context.Context, owner string, draft *core.Draft) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&core.Job{}).
			Where("id = ? AND status = ? AND draft_no = 0", draft.JobID, core.StatusProcessing)
		if owner != "" {
			q = q.Where("locked_by = ?", owner)
		}
		result := q.Updates(map[string]any{
			"status":       core.StatusAwaitingApproval,
			"draft_no":     1,
			"locked_by":    "",
			"locked_until": nil,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return guardFailure(tx, draft.JobID, core.StatusProcessing, ownedBy(owner))
		}
		draft.DraftNo = 1
		return tx.Create(draft).Error
	})
}

// AppendDraft stores draft baseDraftNo+1 and advances the job's draft number,
// provided the job is awaiting approval at baseDraftNo and no commit holds it.
func (s *GormStorage) AppendDraft(ctx context.Context, baseDraftNo int, draft *core.Draft) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&core.Job{}).
			Where("id = ? AND status = ? AND draft_no = ? AND locked_by = ?",
				draft.JobID, core.StatusAwaitingApproval, baseDraftNo, "").
			Updates(map[string]any{"draft_no": baseDraftNo + 1})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return guardFailure(tx, draft.JobID, core.StatusAwaitingApproval, draftGuard(baseDraftNo))
		}
		draft.DraftNo = baseDraftNo + 1
		return tx.Create(draft).Error
	})
}

// draftGuard reports DRAFT_CONFLICT for a stale base or an in-flight commit.
func draftGuard(base int) func(*core.Job) error {
	return func(job *core.Job) error {
		if job.DraftNo != base {
			return fmt.Errorf("%w: base draft %d, current draft %d", core.ErrDraftConflict, base, job.DraftNo)
		}
		if job.LockedBy != "" {
			return fmt.Errorf("%w: commit in progress", core.ErrDraftConflict)
		}
		return nil
	}
}

// GetDraft retrieves one draft.
func (s *GormStorage) GetDraft(ctx context.Context, jobID string, draftNo int) (*core.Draft, error) {
	var draft core.Draft
	err := s.db.WithContext(ctx).First(&draft, "job_id = ? AND draft_no = ?", jobID, draftNo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: job %s draft %d", core.ErrDraftNotFound, jobID, draftNo)
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// ListDrafts returns a job's drafts in draft number order.
func (s *GormStorage) ListDrafts(ctx context.Context, jobID string) ([]*core.Draft, error) {
	var drafts []*core.Draft
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("draft_no ASC").
		Find(&drafts).Error
	return drafts, err
}
