// Package audit records the persisted, append-only event log of jobs and entities.
package audit

import (
	"context"
	"log/slog"

	"github.com/mpislabs/draftflow/pkg/core"
)

// Recorder writes audit events. Recording is best effort: a failed write is
// logged and never fails the operation being audited.
type Recorder struct {
	store  core.Storage
	logger *slog.Logger
}

// NewRecorder creates a recorder backed by store. A nil store disables recording.
func NewRecorder(store core.Storage) *Recorder {
	return &Recorder{store: store, logger: slog.Default()}
}

// Entry describes one event to record.
type Entry struct {
	Type     string
	JobID    string
	EntityID string
	Details  map[string]any
}

// Record stores e.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	event := &core.AuditEvent{
		Type:    e.Type,
		Details: e.Details,
	}
	if e.JobID != "" {
		event.JobID = &e.JobID
	}
	if e.EntityID != "" {
		event.EntityID = &e.EntityID
	}
	if err := r.store.AppendAudit(ctx, event); err != nil {
		r.logger.Warn("failed to record audit event", "type", e.Type, "job_id", e.JobID, "error", err)
	}
}

// Trail returns the audit events recorded for a job.
func (r *Recorder) Trail(ctx context.Context, jobID string) ([]*core.AuditEvent, error) {
	return r.store.ListAudit(ctx, jobID)
}
