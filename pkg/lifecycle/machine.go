// Package lifecycle drives jobs through the shared transition table and
// defines the per-kind flows that plug into it.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/security"
)

// Machine applies status transitions as guarded updates and broadcasts the
// resulting events.
type Machine struct {
	store  core.Storage
	audit  *audit.Recorder
	logger *slog.Logger

	mu   sync.RWMutex
	subs []chan core.Event
}

// NewMachine creates a Machine. rec may be nil.
func NewMachine(store core.Storage, rec *audit.Recorder) *Machine {
	return &Machine{
		store:  store,
		audit:  rec,
		logger: slog.Default(),
	}
}

// Storage returns the backing store.
func (m *Machine) Storage() core.Storage {
	return m.store
}

// Audit returns the audit recorder, which may be nil.
func (m *Machine) Audit() *audit.Recorder {
	return m.audit
}

// Create stores a new queued job.
func (m *Machine) Create(ctx context.Context, job *core.Job) error {
	job.Status = core.StatusQueued
	job.DraftNo = 0
	if err := m.store.CreateJob(ctx, job); err != nil {
		return err
	}
	m.audit.Record(ctx, audit.Entry{
		Type:     core.AuditJobCreated,
		JobID:    job.ID,
		EntityID: job.TargetEntityID,
		Details:  map[string]any{"kind": job.Kind, "target": job.TargetName},
	})
	return nil
}

// Get returns a job.
func (m *Machine) Get(ctx context.Context, jobID string) (*core.Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// Progress returns the human-facing progress of a job.
func (m *Machine) Progress(ctx context.Context, jobID string) (core.Progress, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return core.Progress{}, err
	}
	return core.ProgressOf(job.Status), nil
}

// Advance moves jobID from expected to next.
func (m *Machine) Advance(ctx context.Context, jobID string, expected, next core.JobStatus) error {
	return m.AdvanceOwned(ctx, jobID, expected, next, "")
}

// AdvanceOwned is Advance for a caller holding the job's lease as owner.
func (m *Machine) AdvanceOwned(ctx context.Context, jobID string, expected, next core.JobStatus, owner string) error {
	if err := core.ValidateTransition(expected, next); err != nil {
		return err
	}
	if next == core.StatusFailed {
		const reason = "failed by transition"
		if err := m.store.FailJobFrom(ctx, jobID, expected, owner, reason); err != nil {
			return err
		}
		m.failed(ctx, jobID, expected, reason)
		return nil
	}
	if err := m.store.AdvanceStatus(ctx, jobID, expected, next, owner); err != nil {
		return err
	}
	m.StatusChanged(ctx, jobID, expected, next)
	return nil
}

// StatusChanged records and broadcasts a transition that storage already
// applied, such as the one bundled with draft #1 or a commit finalization.
func (m *Machine) StatusChanged(ctx context.Context, jobID string, from, to core.JobStatus) {
	m.audit.Record(ctx, audit.Entry{
		Type:    core.AuditStatusChanged,
		JobID:   jobID,
		Details: map[string]any{"from": from, "to": to},
	})
	m.Emit(&core.StatusChanged{JobID: jobID, From: from, To: to, Timestamp: time.Now()})
}

// Fail moves any non-terminal job to failed. Failing an already failed job
// is a no-op; failing a committed job returns JOB_TERMINAL.
func (m *Machine) Fail(ctx context.Context, jobID string, reason string) error {
	before, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	changed, err := m.store.FailJob(ctx, jobID, reason)
	if err != nil || !changed {
		return err
	}
	m.failed(ctx, jobID, before.Status, reason)
	return nil
}

// failed records and broadcasts a move to failed that storage already applied.
func (m *Machine) failed(ctx context.Context, jobID string, from core.JobStatus, reason string) {
	reason = security.SanitizeErrorMessage(reason)
	m.logger.Warn("job failed", "job_id", jobID, "from", from, "reason", reason)
	m.audit.Record(ctx, audit.Entry{
		Type:    core.AuditJobFailed,
		JobID:   jobID,
		Details: map[string]any{"from": from, "reason": reason},
	})
	m.Emit(&core.StatusChanged{JobID: jobID, From: from, To: core.StatusFailed, Timestamp: time.Now()})
	m.Emit(&core.JobFailed{JobID: jobID, Reason: reason, Timestamp: time.Now()})
}

// Events returns a channel receiving lifecycle events.
// The caller must call Unsubscribe when done.
func (m *Machine) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel created by Events. The channel is not closed.
func (m *Machine) Unsubscribe(ch <-chan core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subs {
		if sub == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

// Emit sends e to every subscriber, dropping it for subscribers whose
// buffer is full.
func (m *Machine) Emit(e core.Event) {
	m.mu.RLock()
	subs := make([]chan core.Event, len(m.subs))
	copy(subs, m.subs)
	m.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
