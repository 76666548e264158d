package runs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
)

const (
	// MaxOutcomes caps one report.
	MaxOutcomes = 200

	sweepBatch = 100
)

var validate = validator.New()

// Emitter publishes lifecycle events.
type Emitter interface {
	Emit(e core.Event)
}

// Service creates runs and applies reports to them.
type Service struct {
	store  core.Storage
	audit  *audit.Recorder
	events Emitter
	logger *slog.Logger
}

// NewService creates a Service. events may be nil.
func NewService(store core.Storage, rec *audit.Recorder, events Emitter) *Service {
	return &Service{store: store, audit: rec, events: events, logger: slog.Default()}
}

// Create starts a pending run expecting one report per channel.
// A nil deadline means the run is only finalized by reports.
func (s *Service) Create(ctx context.Context, expectedChannels []string, deadline *time.Time) (*core.Run, error) {
	if err := validate.Var(expectedChannels, "required,min=1,max=64,unique,dive,required,max=64"); err != nil {
		return nil, fmt.Errorf("%w: expected channels: %v", core.ErrInvalidRequest, err)
	}
	run := &core.Run{
		ExpectedChannels: expectedChannels,
		Status:           core.RunPending,
		Deadline:         deadline,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Get returns a run with its stored outcomes.
func (s *Service) Get(ctx context.Context, runID string) (*core.Run, []Outcome, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	stored, err := s.store.ListRunOutcomes(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Outcome, len(stored))
	for i, o := range stored {
		out[i] = Outcome{Channel: o.Channel, Result: o.Result, Detail: o.Detail}
	}
	return run, out, nil
}

// Report replaces the run's outcome set with outcomes, which must be the
// complete set known so far, and recomputes the status. The run is
// finalized once every expected channel has reported. Reports on a
// finalized run are still applied.
func (s *Service) Report(ctx context.Context, runID string, outcomes []Outcome) (*core.Run, error) {
	if len(outcomes) > MaxOutcomes {
		return nil, fmt.Errorf("%w: at most %d outcomes", core.ErrInvalidRequest, MaxOutcomes)
	}
	for i := range outcomes {
		if err := validate.Struct(outcomes[i]); err != nil {
			return nil, fmt.Errorf("%w: outcome %d: %v", core.ErrInvalidRequest, i, err)
		}
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	reported := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		reported[o.Channel] = true
	}
	complete := true
	for _, ch := range run.ExpectedChannels {
		if !reported[ch] {
			complete = false
			break
		}
	}
	if complete {
		run.Reason = ""
	}
	return run, s.apply(ctx, run, outcomes, complete || run.Finalized)
}

// SweepExpired finalizes runs past their deadline. Every expected channel
// that never reported counts as failed, so a run without reports ends failed.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ExpiredRuns(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, run := range expired {
		if ctx.Err() != nil {
			return swept, ctx.Err()
		}
		_, outcomes, err := s.Get(ctx, run.ID)
		if err != nil {
			s.logger.Error("sweep: load run", "run_id", run.ID, "error", err)
			continue
		}

		reported := make(map[string]bool, len(outcomes))
		for _, o := range outcomes {
			reported[o.Channel] = true
		}
		var missing []string
		for _, ch := range run.ExpectedChannels {
			if !reported[ch] {
				missing = append(missing, ch)
				outcomes = append(outcomes, Outcome{Channel: ch, Result: core.PublishFailed, Detail: "no report before deadline"})
			}
		}
		run.Reason = fmt.Sprintf("deadline passed with %d channel(s) unreported", len(missing))
		if err := s.apply(ctx, run, outcomes, true); err != nil {
			s.logger.Error("sweep: finalize run", "run_id", run.ID, "error", err)
			continue
		}
		s.logger.Info("finalized expired run", "run_id", run.ID, "status", run.Status, "missing", missing)
		swept++
	}
	return swept, nil
}

func (s *Service) apply(ctx context.Context, run *core.Run, outcomes []Outcome, finalized bool) error {
	now := time.Now()
	run.Status = Aggregate(outcomes)
	if finalized && !run.Finalized {
		run.CompletedAt = &now
	}
	run.Finalized = finalized

	rows := make([]*core.RunOutcome, len(outcomes))
	for i, o := range outcomes {
		rows[i] = &core.RunOutcome{Channel: o.Channel, Result: o.Result, Detail: o.Detail, ReportedAt: now}
	}
	if err := s.store.ReplaceRunOutcomes(ctx, run, rows); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		Type: core.AuditRunAggregated,
		Details: map[string]any{
			"run_id":    run.ID,
			"status":    string(run.Status),
			"finalized": run.Finalized,
			"outcomes":  len(outcomes),
		},
	})
	if s.events != nil {
		s.events.Emit(&core.RunAggregated{RunID: run.ID, Status: run.Status, Finalized: run.Finalized, Timestamp: now})
	}
	return nil
}
