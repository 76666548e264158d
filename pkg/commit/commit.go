// Package commit turns an approved draft into a durable entity version and
// pushes it to the memory index.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
	"github.com/mpislabs/draftflow/pkg/memory"
)

const (
	DefaultClaimLease   = 5 * time.Minute
	DefaultIndexTimeout = 30 * time.Second
)

// Exporter writes a committed version somewhere outside the database.
type Exporter interface {
	Export(ctx context.Context, entity *core.Entity, version *core.EntityVersion) error
}

// Result describes a finished commit.
type Result struct {
	Job      *core.Job
	Entity   *core.Entity
	Version  *core.EntityVersion
	Degraded bool
}

// Coordinator runs the claim, write, index and finalize sequence.
type Coordinator struct {
	machine      *lifecycle.Machine
	index        memory.Index
	exporter     Exporter
	claimLease   time.Duration
	indexTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithIndex sets the memory index. Without one every commit is degraded.
func WithIndex(idx memory.Index) Option {
	return func(c *Coordinator) {
		if idx != nil {
			c.index = idx
		}
	}
}

// WithExporter enables file export after a successful commit.
func WithExporter(e Exporter) Option {
	return func(c *Coordinator) { c.exporter = e }
}

// WithClaimLease sets how long a commit claim is held before recovery may take it over.
func WithClaimLease(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.claimLease = d
		}
	}
}

// WithIndexTimeout bounds the index write of a commit.
func WithIndexTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.indexTimeout = d
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(machine *lifecycle.Machine, opts ...Option) *Coordinator {
	c := &Coordinator{
		machine:      machine,
		index:        memory.Unavailable{},
		claimLease:   DefaultClaimLease,
		indexTimeout: DefaultIndexTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit stores draftNo of jobID as the next version of the job's target
// entity. The draft must be the job's latest and the job must be awaiting
// approval; concurrent confirms and edits lose with DRAFT_CONFLICT or
// STALE_TRANSITION.
//
// An index failure does not fail the commit: the job finalizes as
// committed_degraded and the version is left for Backfill.
func (c *Coordinator) Commit(ctx context.Context, jobID string, draftNo int) (*Result, error) {
	store := c.machine.Storage()

	claimID := "commit:" + uuid.New().String()
	if err := store.ClaimCommit(ctx, jobID, draftNo, claimID, time.Now().Add(c.claimLease)); err != nil {
		return nil, err
	}

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		c.release(ctx, jobID, claimID)
		return nil, err
	}
	draft, err := store.GetDraft(ctx, jobID, draftNo)
	if err != nil {
		c.release(ctx, jobID, claimID)
		return nil, err
	}
	doc, err := document.Parse(draft.Document)
	if err != nil {
		c.release(ctx, jobID, claimID)
		return nil, fmt.Errorf("parse draft %d: %w", draftNo, err)
	}

	version := &core.EntityVersion{
		EntityID: job.TargetEntityID,
		JobID:    &job.ID,
		Kind:     job.Kind,
		Document: draft.Document,
		Reason:   fmt.Sprintf("%s job approved at draft %d", job.Kind, draftNo),
	}
	if err := store.WriteVersion(ctx, claimID, version); err != nil {
		c.release(ctx, jobID, claimID)
		return nil, c.explain(ctx, jobID, err)
	}

	degraded := c.indexVersion(ctx, job, version, doc) != nil

	status := core.StatusCommitted
	if degraded {
		status = core.StatusCommittedDegraded
	}
	if err := store.FinalizeCommit(ctx, jobID, claimID, status, version.EntityID); err != nil {
		return nil, err
	}
	c.committed(ctx, jobID, version, degraded)

	entity, err := store.GetEntity(ctx, version.EntityID)
	if err != nil {
		return nil, err
	}
	c.export(ctx, jobID, entity, version)

	job.Status = status
	job.ResultEntityID = &version.EntityID
	job.LockedBy, job.LockedUntil = "", nil
	return &Result{Job: job, Entity: entity, Version: version, Degraded: degraded}, nil
}

// indexVersion writes the version's sections to the index and marks it indexed.
func (c *Coordinator) indexVersion(ctx context.Context, job *core.Job, version *core.EntityVersion, doc *document.Document) error {
	indexCtx, cancel := context.WithTimeout(ctx, c.indexTimeout)
	defer cancel()

	err := c.index.IndexVersion(indexCtx, memory.Entry{
		EntityID:  version.EntityID,
		VersionID: version.ID,
		Kind:      version.Kind,
		Sections:  doc.Sections(),
	})
	if err == nil {
		err = c.machine.Storage().MarkVersionIndexed(ctx, version.ID, time.Now())
	}
	if err != nil {
		c.logger.Warn("memory index write failed, committing degraded",
			"job_id", job.ID, "version_id", version.ID, "error", err)
		return err
	}
	c.machine.Audit().Record(ctx, audit.Entry{
		Type:     core.AuditEmbeddingsUpserted,
		JobID:    job.ID,
		EntityID: version.EntityID,
		Details:  map[string]any{"version_id": version.ID, "sections": len(doc.Sections())},
	})
	return nil
}

func (c *Coordinator) committed(ctx context.Context, jobID string, version *core.EntityVersion, degraded bool) {
	status := core.StatusCommitted
	if degraded {
		status = core.StatusCommittedDegraded
	}
	c.machine.StatusChanged(ctx, jobID, core.StatusAwaitingApproval, status)
	c.machine.Audit().Record(ctx, audit.Entry{
		Type:     core.AuditEntityCommitted,
		JobID:    jobID,
		EntityID: version.EntityID,
		Details: map[string]any{
			"version_id": version.ID,
			"version_no": version.VersionNo,
			"degraded":   degraded,
		},
	})
	c.machine.Emit(&core.JobCommitted{
		JobID:     jobID,
		EntityID:  version.EntityID,
		VersionID: version.ID,
		Degraded:  degraded,
		Timestamp: time.Now(),
	})
}

func (c *Coordinator) export(ctx context.Context, jobID string, entity *core.Entity, version *core.EntityVersion) {
	if c.exporter == nil {
		return
	}
	if err := c.exporter.Export(ctx, entity, version); err != nil {
		c.logger.Warn("export failed", "job_id", jobID, "entity_id", entity.ID, "error", err)
		return
	}
	c.machine.Audit().Record(ctx, audit.Entry{
		Type:     core.AuditExportCompleted,
		JobID:    jobID,
		EntityID: entity.ID,
		Details:  map[string]any{"version_no": version.VersionNo},
	})
}

func (c *Coordinator) release(ctx context.Context, jobID, claimID string) {
	if err := c.machine.Storage().ReleaseCommitClaim(ctx, jobID, claimID); err != nil {
		c.logger.Error("failed to release commit claim", "job_id", jobID, "error", err)
	}
}

// explain turns a lost claim into the job's terminal state when it was failed
// underneath the commit.
func (c *Coordinator) explain(ctx context.Context, jobID string, err error) error {
	if !errors.Is(err, core.ErrLeaseLost) {
		return err
	}
	job, getErr := c.machine.Storage().GetJob(ctx, jobID)
	if getErr == nil && job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", core.ErrJobTerminal, jobID, job.Status)
	}
	return fmt.Errorf("%w: commit claim lost", core.ErrStaleTransition)
}
