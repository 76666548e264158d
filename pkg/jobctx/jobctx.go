// Package jobctx carries the job a worker is driving through the context,
// so components deep in the pipeline can tag their logs with it.
package jobctx

import (
	"context"
	"log/slog"

	"github.com/mpislabs/draftflow/pkg/core"
)

type ctxKey struct{}

// Info identifies the job being driven and the worker that leased it.
type Info struct {
	JobID    string
	Kind     core.JobKind
	WorkerID string
}

// WithJob returns a context carrying job and the lease owner.
func WithJob(ctx context.Context, job *core.Job, workerID string) context.Context {
	if job == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, Info{JobID: job.ID, Kind: job.Kind, WorkerID: workerID})
}

// FromContext returns the job info stored in ctx, if any.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(ctxKey{}).(Info)
	return info, ok
}

// JobID returns the id of the job in ctx, or "" outside a worker.
func JobID(ctx context.Context) string {
	info, _ := FromContext(ctx)
	return info.JobID
}

// Logger returns base tagged with the job in ctx.
// A nil base falls back to slog.Default().
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	info, ok := FromContext(ctx)
	if !ok {
		return base
	}
	attrs := []any{"job_id", info.JobID, "kind", string(info.Kind)}
	if info.WorkerID != "" {
		attrs = append(attrs, "worker_id", info.WorkerID)
	}
	return base.With(attrs...)
}

// ForJob is Logger for code that also runs outside a worker: when ctx carries
// no job, the record is tagged with jobID instead.
func ForJob(ctx context.Context, base *slog.Logger, jobID string) *slog.Logger {
	if _, ok := FromContext(ctx); ok {
		return Logger(ctx, base)
	}
	if base == nil {
		base = slog.Default()
	}
	return base.With("job_id", jobID)
}
