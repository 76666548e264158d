// Package approval is the human side of a job: reviewing drafts, editing
// them and confirming one for commit.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/commit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
	"github.com/mpislabs/draftflow/pkg/security"
)

var validate = validator.New()

// Committer commits a confirmed draft.
type Committer interface {
	Commit(ctx context.Context, jobID string, draftNo int) (*commit.Result, error)
}

// Service applies edits and confirmations.
type Service struct {
	machine   *lifecycle.Machine
	registry  *lifecycle.Registry
	committer Committer
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(machine *lifecycle.Machine, registry *lifecycle.Registry, committer Committer) *Service {
	return &Service{
		machine:   machine,
		registry:  registry,
		committer: committer,
		logger:    slog.Default(),
	}
}

// Current returns the job's latest draft.
func (s *Service) Current(ctx context.Context, jobID string) (*core.Draft, error) {
	job, err := s.machine.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.DraftNo == 0 {
		return nil, fmt.Errorf("%w: job %s has no draft yet", core.ErrDraftNotFound, jobID)
	}
	return s.machine.Storage().GetDraft(ctx, jobID, job.DraftNo)
}

// Apply applies edits to draft base and stores the result as draft base+1.
// Every edit must succeed and the result must still match the kind's schema,
// otherwise nothing is written.
func (s *Service) Apply(ctx context.Context, jobID string, base int, edits []document.Edit) (*core.Draft, error) {
	if err := security.ValidateEditCount(len(edits)); err != nil {
		return nil, err
	}
	for i := range edits {
		if err := validate.Struct(edits[i]); err != nil {
			return nil, fmt.Errorf("%w: edit %d: %v", core.ErrInvalidEdit, i, err)
		}
	}

	job, err := s.reviewable(ctx, jobID, base)
	if err != nil {
		return nil, err
	}
	flow, err := s.registry.Get(job.Kind)
	if err != nil {
		return nil, err
	}
	prev, err := s.machine.Storage().GetDraft(ctx, jobID, base)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(prev.Document)
	if err != nil {
		return nil, fmt.Errorf("parse draft %d: %w", base, err)
	}

	patched, err := doc.Apply(edits)
	if err != nil {
		return nil, err
	}
	if err := flow.Schema().ValidateDocument(patched); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidEdit, err)
	}
	data, err := patched.MarshalJSON()
	if err != nil {
		return nil, err
	}

	draft := &core.Draft{
		JobID:        jobID,
		Document:     data,
		ReviewPrompt: flow.ReviewPrompt(patched, base+1),
	}
	if err := s.machine.Storage().AppendDraft(ctx, base, draft); err != nil {
		return nil, err
	}

	rec := s.machine.Audit()
	rec.Record(ctx, audit.Entry{
		Type:    core.AuditApprovalApplied,
		JobID:   jobID,
		Details: map[string]any{"base_draft_no": base, "draft_no": draft.DraftNo, "edits": len(edits)},
	})
	rec.Record(ctx, audit.Entry{
		Type:    core.AuditApprovalRequested,
		JobID:   jobID,
		Details: map[string]any{"draft_no": draft.DraftNo},
	})
	s.machine.Emit(&core.DraftCreated{JobID: jobID, DraftNo: draft.DraftNo, Timestamp: time.Now()})
	return draft, nil
}

// Confirm commits draftNo, which must be the job's latest draft.
func (s *Service) Confirm(ctx context.Context, jobID string, draftNo int) (*commit.Result, error) {
	if _, err := s.reviewable(ctx, jobID, draftNo); err != nil {
		return nil, err
	}
	return s.committer.Commit(ctx, jobID, draftNo)
}

// reviewable reports why jobID cannot take a decision against draftNo, if it cannot.
// The storage guards recheck all of this.
func (s *Service) reviewable(ctx context.Context, jobID string, draftNo int) (*core.Job, error) {
	job, err := s.machine.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch {
	case job.Status.Terminal():
		return nil, fmt.Errorf("%w: job %s is %s", core.ErrJobTerminal, jobID, job.Status)
	case job.Status != core.StatusAwaitingApproval:
		return nil, fmt.Errorf("%w: job %s is %s", core.ErrStaleTransition, jobID, job.Status)
	case job.LockedBy != "":
		return nil, fmt.Errorf("%w: commit in progress", core.ErrDraftConflict)
	case job.DraftNo != draftNo:
		return nil, fmt.Errorf("%w: base draft %d, current draft %d", core.ErrDraftConflict, draftNo, job.DraftNo)
	}
	return job, nil
}
