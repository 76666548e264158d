package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/generate"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/jobctx"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
)

// Worker leases queued jobs and drives them through collection and
// generation, leaving them awaiting approval.
type Worker struct {
	machine   *lifecycle.Machine
	registry  *lifecycle.Registry
	ingestor  *ingest.Ingestor
	generator *generate.Generator
	config    WorkerConfig
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewWorker creates a worker.
func NewWorker(machine *lifecycle.Machine, registry *lifecycle.Registry, ingestor *ingest.Ingestor, generator *generate.Generator, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		Concurrency:       4,
		PollInterval:      time.Second,
		WorkerID:          uuid.New().String(),
		Lease:             10 * time.Minute,
		HeartbeatInterval: 10 * time.Minute / 3,
	}
	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.LeaseRetry == nil {
		// Longer backoff for polling so an outage is not hammered.
		leaseCfg := RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		}
		config.LeaseRetry = &leaseCfg
	}

	return &Worker{
		machine:   machine,
		registry:  registry,
		ingestor:  ingestor,
		generator: generator,
		config:    config,
		logger:    slog.Default().With("worker_id", config.WorkerID),
	}
}

// ID returns the lease owner name of this worker.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Start polls for jobs until ctx is cancelled and then waits for in-flight jobs.
func (w *Worker) Start(ctx context.Context) error {
	slots := make(chan struct{}, w.config.Concurrency)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}

		// Lease only while a slot is free; a leased job never waits unowned.
		for tryAcquire(slots) {
			job, err := w.leaseWithRetry(ctx)
			if err != nil || job == nil {
				<-slots
				if err != nil && ctx.Err() == nil {
					w.logger.Error("failed to lease job after retries", "error", err)
				}
				break
			}
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				defer func() { <-slots }()
				w.processJob(ctx, job)
			}()
		}
	}
}

func tryAcquire(slots chan struct{}) bool {
	select {
	case slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// ProcessOne leases and drives a single job in the calling goroutine.
// It reports whether a job was found.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.leaseWithRetry(ctx)
	if err != nil || job == nil {
		return false, err
	}
	w.processJob(ctx, job)
	return true, nil
}

func (w *Worker) leaseWithRetry(ctx context.Context) (*core.Job, error) {
	var job *core.Job
	err := retryWithBackoff(ctx, *w.config.LeaseRetry, func() error {
		var leaseErr error
		job, leaseErr = w.machine.Storage().LeaseJob(ctx, w.config.WorkerID, w.config.Lease)
		return leaseErr
	})
	return job, err
}

func (w *Worker) processJob(ctx context.Context, job *core.Job) {
	start := time.Now()
	ctx = jobctx.WithJob(ctx, job, w.config.WorkerID)
	jobctx.Logger(ctx, w.logger).Info("job leased", "status", job.Status)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.runHeartbeat(workCtx, cancel, job)

	err := w.drive(workCtx, job)
	cancel()

	if err != nil {
		w.handleError(ctx, job, err)
		return
	}
	jobctx.Logger(ctx, w.logger).Info("draft ready for review", "duration", time.Since(start))
}

// drive resumes job from whatever stage it was leased in.
func (w *Worker) drive(ctx context.Context, job *core.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NoRetry(fmt.Errorf("panic: %v", r))
		}
	}()

	flow, err := w.registry.Get(job.Kind)
	if err != nil {
		return core.NoRetry(err)
	}

	if job.Status == core.StatusQueued {
		if err := w.advance(ctx, job, core.StatusCollecting); err != nil {
			return err
		}
	}
	if job.Status == core.StatusCollecting {
		if err := w.collect(ctx, job, flow); err != nil {
			return err
		}
		if err := w.advance(ctx, job, core.StatusProcessing); err != nil {
			return err
		}
	}
	if job.Status != core.StatusProcessing {
		return fmt.Errorf("%w: leased job is %s", core.ErrStaleTransition, job.Status)
	}
	_, err = w.generator.Generate(ctx, job, w.config.WorkerID)
	return err
}

func (w *Worker) advance(ctx context.Context, job *core.Job, next core.JobStatus) error {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.machine.AdvanceOwned(ctx, job.ID, job.Status, next, w.config.WorkerID)
	})
	if err != nil {
		return err
	}
	job.Status = next
	return nil
}

// collect ingests every source the job's input names. Individual source
// failures are recorded as outcomes and never stop the job. Rerunning it
// after a crash skips what was already recorded.
func (w *Worker) collect(ctx context.Context, job *core.Job, flow lifecycle.Flow) error {
	candidates, err := flow.Collect(job.Input)
	if err != nil {
		return core.NoRetry(err)
	}
	rec := w.machine.Audit()
	rec.Record(ctx, audit.Entry{
		Type:    core.AuditSourcesDiscovered,
		JobID:   job.ID,
		Details: map[string]any{"candidates": len(candidates)},
	})

	results, summary, err := w.ingestor.IngestAll(ctx, job.ID, job.TargetEntityID, candidates)
	if err != nil {
		if core.CodeOf(err) == core.CodeInvalidRequest {
			return core.NoRetry(err)
		}
		return err
	}
	rec.Record(ctx, audit.Entry{
		Type:    core.AuditSourcesFetched,
		JobID:   job.ID,
		Details: summary.Details(),
	})

	chunks := 0
	for _, r := range results {
		if r != nil {
			chunks += r.Chunks
		}
	}
	if chunks > 0 {
		rec.Record(ctx, audit.Entry{
			Type:    core.AuditCorpusChunked,
			JobID:   job.ID,
			Details: map[string]any{"chunks": chunks},
		})
	}
	w.logger.Info("sources collected", "job_id", job.ID, "total", summary.Total)
	return nil
}

// runHeartbeat extends the lease while the job is being driven and cancels
// the work if the lease is lost.
func (w *Worker) runHeartbeat(ctx context.Context, cancel context.CancelFunc, job *core.Job) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
				return w.machine.Storage().Heartbeat(ctx, job.ID, w.config.WorkerID, w.config.Lease)
			})
			switch {
			case errors.Is(err, core.ErrLeaseLost):
				w.logger.Warn("lease lost, abandoning job", "job_id", job.ID)
				cancel()
				return
			case err != nil:
				w.logger.Warn("heartbeat failed after retries", "job_id", job.ID, "error", err)
			default:
				w.logger.Debug("heartbeat sent", "job_id", job.ID)
			}
		}
	}
}

func (w *Worker) handleError(ctx context.Context, job *core.Job, err error) {
	switch {
	case ctx.Err() != nil:
		// Shutting down: hand the job back for the next worker.
		w.release(job)

	case core.CodeOf(err) == core.CodeLLMInvalidOutput:
		w.logger.Warn("generation failed", "job_id", job.ID, "error", err)

	case errors.Is(err, core.ErrLeaseLost), errors.Is(err, context.Canceled),
		core.CodeOf(err) == core.CodeJobTerminal, core.CodeOf(err) == core.CodeStaleTransition,
		core.CodeOf(err) == core.CodeJobNotFound:
		w.logger.Info("job moved on without this worker", "job_id", job.ID, "error", err)

	case core.IsNoRetry(err) || core.CodeOf(err) != core.CodeInternal:
		w.failWithRetry(ctx, job.ID, failureReason(err))

	default:
		w.logger.Error("job interrupted, releasing lease", "job_id", job.ID, "error", err)
		w.release(job)
	}
}

// failWithRetry fails a job, retrying transient storage failures.
func (w *Worker) failWithRetry(ctx context.Context, jobID, reason string) {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.machine.Fail(ctx, jobID, reason)
	})
	if err != nil {
		w.logger.Error("failed to mark job as failed after retries", "job_id", jobID, "error", err)
	}
}

func (w *Worker) release(job *core.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.machine.Storage().ReleaseLease(ctx, job.ID, w.config.WorkerID); err != nil {
		w.logger.Error("failed to release lease", "job_id", job.ID, "error", err)
	}
}

// failureReason strips the NoRetry marker from err's message.
func failureReason(err error) string {
	var nr *core.NoRetryError
	if errors.As(err, &nr) {
		return nr.Err.Error()
	}
	return err.Error()
}
