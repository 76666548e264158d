package draftflow

import (
	"context"
	"errors"
	"time"

	"github.com/mpislabs/draftflow/pkg/memory"
	"github.com/mpislabs/draftflow/pkg/schedule"
)

// Schedule decides when a maintenance task runs next.
type Schedule = schedule.Schedule

// Scheduler runs maintenance tasks.
type Scheduler = schedule.Scheduler

// Maintenance task names
const (
	TaskSweepRuns     = "runs.sweep"
	TaskRecoverCommit = "commit.recover"
	TaskBackfillIndex = "index.backfill"
)

// MaintenanceConfig sets the schedule of each maintenance task.
// A nil schedule disables that task.
type MaintenanceConfig struct {
	SweepRuns     Schedule
	RecoverCommit Schedule
	BackfillIndex Schedule
	Tick          time.Duration
}

// DefaultMaintenanceConfig sweeps runs and recovers commits every minute and
// backfills the index every five minutes.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		SweepRuns:     schedule.Every(time.Minute),
		RecoverCommit: schedule.Every(time.Minute),
		BackfillIndex: schedule.Every(5 * time.Minute),
		Tick:          time.Second,
	}
}

// Maintenance returns a scheduler with the engine's maintenance tasks
// registered. Start it with Scheduler.Start.
func (e *Engine) Maintenance(cfg MaintenanceConfig) *Scheduler {
	s := schedule.NewScheduler(cfg.Tick)
	if cfg.SweepRuns != nil {
		s.Register(TaskSweepRuns, cfg.SweepRuns, func(ctx context.Context) error {
			_, err := e.SweepRuns(ctx)
			return err
		})
	}
	if cfg.RecoverCommit != nil {
		s.Register(TaskRecoverCommit, cfg.RecoverCommit, func(ctx context.Context) error {
			_, _, err := e.RecoverCommits(ctx)
			return err
		})
	}
	if cfg.BackfillIndex != nil {
		s.Register(TaskBackfillIndex, cfg.BackfillIndex, func(ctx context.Context) error {
			_, err := e.BackfillIndex(ctx)
			if errors.Is(err, memory.ErrUnavailable) {
				return nil
			}
			return err
		})
	}
	return s
}

// SweepRuns finalizes runs whose deadline passed and returns how many.
func (e *Engine) SweepRuns(ctx context.Context) (int, error) {
	return e.runs.SweepExpired(ctx, time.Now())
}

// RecoverCommits resolves commit claims abandoned by a crashed holder.
func (e *Engine) RecoverCommits(ctx context.Context) (finalized, released int, err error) {
	stats, err := e.committer.Recover(ctx, time.Now())
	return stats.Finalized, stats.Released, err
}

// BackfillIndex retries index writes for degraded commits. It stops with
// memory.ErrUnavailable while the index is down.
func (e *Engine) BackfillIndex(ctx context.Context) (int, error) {
	return e.committer.Backfill(ctx)
}

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Cron creates a schedule from a cron expression. It panics on an invalid
// expression; use ParseCron for user input.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// ParseCron parses a standard five-field cron expression or descriptor.
func ParseCron(expr string) (Schedule, error) {
	return schedule.ParseCron(expr)
}
