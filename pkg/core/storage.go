package core

import (
	"context"
	"time"
)

// Starter is the interface for long-running loops such as the worker.
type Starter interface {
	Start(ctx context.Context) error
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	Status JobStatus
	Kind   JobKind
	Limit  int
}

// Storage defines the persistence layer.
//
// Every mutation of a job row is a guarded UPDATE. When the guard matches no
// row the implementation re-reads the job and reports ErrJobNotFound,
// ErrJobTerminal, ErrDraftConflict, ErrLeaseLost or ErrStaleTransition.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Jobs
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	AdvanceStatus(ctx context.Context, jobID string, expected, next JobStatus, owner string) error
	FailJob(ctx context.Context, jobID string, reason string) (bool, error)
	FailJobFrom(ctx context.Context, jobID string, expected JobStatus, owner, reason string) error
	CountJobs(ctx context.Context) (map[JobKind]map[JobStatus]int64, error)

	// Worker leases
	LeaseJob(ctx context.Context, workerID string, lease time.Duration) (*Job, error)
	Heartbeat(ctx context.Context, jobID string, workerID string, lease time.Duration) error
	ReleaseLease(ctx context.Context, jobID string, workerID string) error

	// Drafts
	CreateFirstDraft(ctx context.Context, owner string, draft *Draft) error
	AppendDraft(ctx context.Context, baseDraftNo int, draft *Draft) error
	GetDraft(ctx context.Context, jobID string, draftNo int) (*Draft, error)
	ListDrafts(ctx context.Context, jobID string) ([]*Draft, error)

	// Sources
	FindSource(ctx context.Context, jobID string, channel Channel, ref string) (*Source, error)
	HashRecorded(ctx context.Context, ownerEntityID, hash string) (bool, error)
	SaveSource(ctx context.Context, src *Source) error
	ListSources(ctx context.Context, jobID string) ([]*Source, error)

	// Entities and versions
	CreateEntity(ctx context.Context, entity *Entity) error
	GetEntity(ctx context.Context, entityID string) (*Entity, error)
	FindEntityBySlug(ctx context.Context, slug string) (*Entity, error)
	ListVersions(ctx context.Context, entityID string) ([]*EntityVersion, error)
	GetVersionByJob(ctx context.Context, jobID string) (*EntityVersion, error)

	// Commit
	ClaimCommit(ctx context.Context, jobID string, draftNo int, claimID string, until time.Time) error
	WriteVersion(ctx context.Context, claimID string, version *EntityVersion) error
	FinalizeCommit(ctx context.Context, jobID, claimID string, status JobStatus, entityID string) error
	ReleaseCommitClaim(ctx context.Context, jobID, claimID string) error
	ExpiredCommitClaims(ctx context.Context, now time.Time, limit int) ([]*Job, error)
	MarkVersionIndexed(ctx context.Context, versionID string, at time.Time) error
	ListUnindexedVersions(ctx context.Context, limit int) ([]*EntityVersion, error)

	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ReplaceRunOutcomes(ctx context.Context, run *Run, outcomes []*RunOutcome) error
	ListRunOutcomes(ctx context.Context, runID string) ([]*RunOutcome, error)
	ExpiredRuns(ctx context.Context, now time.Time, limit int) ([]*Run, error)

	// Audit
	AppendAudit(ctx context.Context, event *AuditEvent) error
	ListAudit(ctx context.Context, jobID string) ([]*AuditEvent, error)
}
