package commit

import (
	"context"
	"errors"
	"time"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/memory"
)

const maintenanceBatch = 100

// RecoverStats counts what Recover did.
type RecoverStats struct {
	Finalized int
	Released  int
}

// Recover handles commit claims whose holder died. A claim whose version was
// already written is finalized as committed_degraded; any other claim is
// released so the draft can be confirmed again.
func (c *Coordinator) Recover(ctx context.Context, now time.Time) (RecoverStats, error) {
	var stats RecoverStats
	store := c.machine.Storage()

	jobs, err := store.ExpiredCommitClaims(ctx, now, maintenanceBatch)
	if err != nil {
		return stats, err
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		version, err := store.GetVersionByJob(ctx, job.ID)
		if err != nil {
			c.logger.Error("recover: load version", "job_id", job.ID, "error", err)
			continue
		}
		if version == nil {
			if err := store.ReleaseCommitClaim(ctx, job.ID, job.LockedBy); err != nil {
				c.logger.Error("recover: release claim", "job_id", job.ID, "error", err)
				continue
			}
			c.logger.Info("released expired commit claim", "job_id", job.ID)
			stats.Released++
			continue
		}

		err = store.FinalizeCommit(ctx, job.ID, job.LockedBy, core.StatusCommittedDegraded, version.EntityID)
		if err != nil {
			c.logger.Warn("recover: finalize", "job_id", job.ID, "error", err)
			continue
		}
		c.committed(ctx, job.ID, version, true)
		stats.Finalized++
	}
	return stats, nil
}

// Backfill re-indexes versions whose index write is outstanding and returns
// how many were indexed. Job statuses are left as they are.
func (c *Coordinator) Backfill(ctx context.Context) (int, error) {
	store := c.machine.Storage()
	versions, err := store.ListUnindexedVersions(ctx, maintenanceBatch)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, v := range versions {
		doc, err := document.Parse(v.Document)
		if err != nil {
			c.logger.Error("backfill: unreadable version", "version_id", v.ID, "error", err)
			continue
		}

		indexCtx, cancel := context.WithTimeout(ctx, c.indexTimeout)
		err = c.index.IndexVersion(indexCtx, memory.Entry{
			EntityID:  v.EntityID,
			VersionID: v.ID,
			Kind:      v.Kind,
			Sections:  doc.Sections(),
		})
		cancel()
		if errors.Is(err, memory.ErrUnavailable) {
			return indexed, err
		}
		if err != nil {
			c.logger.Warn("backfill: index write failed", "version_id", v.ID, "error", err)
			continue
		}
		if err := store.MarkVersionIndexed(ctx, v.ID, time.Now()); err != nil {
			return indexed, err
		}

		var jobID string
		if v.JobID != nil {
			jobID = *v.JobID
		}
		c.machine.Audit().Record(ctx, audit.Entry{
			Type:     core.AuditEmbeddingsUpserted,
			JobID:    jobID,
			EntityID: v.EntityID,
			Details:  map[string]any{"version_id": v.ID, "backfill": true},
		})
		indexed++
	}
	return indexed, nil
}
