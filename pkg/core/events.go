package core

import "time"

// Event is the interface for all lifecycle events.
type Event interface {
	eventMarker()
}

// StatusChanged is emitted after a guarded status transition succeeds.
type StatusChanged struct {
	JobID     string
	From      JobStatus
	To        JobStatus
	Timestamp time.Time
}

func (*StatusChanged) eventMarker() {}

// DraftCreated is emitted when a draft row is written, by generation or by an edit.
type DraftCreated struct {
	JobID     string
	DraftNo   int
	Timestamp time.Time
}

func (*DraftCreated) eventMarker() {}

// JobFailed is emitted when a job moves to failed.
type JobFailed struct {
	JobID     string
	Reason    string
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobCommitted is emitted once a job reaches a committed variant.
type JobCommitted struct {
	JobID     string
	EntityID  string
	VersionID string
	Degraded  bool
	Timestamp time.Time
}

func (*JobCommitted) eventMarker() {}

// RunAggregated is emitted whenever a run's status is recomputed.
type RunAggregated struct {
	RunID     string
	Status    RunStatus
	Finalized bool
	Timestamp time.Time
}

func (*RunAggregated) eventMarker() {}
