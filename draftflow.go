// Package draftflow runs jobs through a collect, generate, approve and commit
// lifecycle.
//
// A job gathers material from external sources, asks a generative backend
// for a structured draft and then waits for a human. The human either edits
// the draft, which stores the next numbered draft, or confirms one, which
// commits it as a new version of the target entity. Runs aggregate per
// channel publish outcomes independently of jobs.
//
// Basic usage:
//
//	store, _ := draftflow.Open("draftflow.db")
//	store.Migrate(ctx)
//	engine := draftflow.New(store, backend)
//
//	job, _ := engine.StartJob(ctx, draftflow.StartRequest{
//	    Kind:       draftflow.KindPersona,
//	    TargetName: "Tim Keller",
//	    Input:      json.RawMessage(`{"sources":[{"channel":"web","ref":"https://example.org/bio"}]}`),
//	})
//
//	go engine.NewWorker().Start(ctx)
//
//	// later, once the job is awaiting approval
//	engine.ApplyEdits(ctx, job.ID, 1, edits)
//	engine.Confirm(ctx, job.ID, 2)
package draftflow

import (
	"time"

	"gorm.io/gorm"

	"github.com/mpislabs/draftflow/pkg/commit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/llm"
	"github.com/mpislabs/draftflow/pkg/runs"
	"github.com/mpislabs/draftflow/pkg/security"
	"github.com/mpislabs/draftflow/pkg/storage"
	"github.com/mpislabs/draftflow/pkg/worker"
)

// Type aliases for the public surface
type (
	// Job is one execution of the lifecycle.
	Job = core.Job

	// JobKind selects the flow a job runs through.
	JobKind = core.JobKind

	// JobStatus is a job's position in the lifecycle.
	JobStatus = core.JobStatus

	// JobFilter narrows ListJobs.
	JobFilter = core.JobFilter

	// Progress is the human-facing view of a job's status.
	Progress = core.Progress

	// Draft is an immutable candidate document.
	Draft = core.Draft

	// Edit is one path-addressed change to a draft.
	Edit = document.Edit

	// Source is a recorded piece of collected material.
	Source = core.Source

	// Candidate names a source to collect.
	Candidate = ingest.Candidate

	// Entity is the durable target of committed jobs.
	Entity = core.Entity

	// EntityVersion is one committed snapshot of an entity.
	EntityVersion = core.EntityVersion

	// CommitResult describes a finished commit.
	CommitResult = commit.Result

	// Run tracks publish outcomes across channels.
	Run = core.Run

	// RunStatus is a run's aggregated result.
	RunStatus = core.RunStatus

	// Outcome is one channel's reported publish result.
	Outcome = runs.Outcome

	// AuditEvent is one entry in a job's audit trail.
	AuditEvent = core.AuditEvent

	// Storage is the persistence layer.
	Storage = core.Storage

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// Backend generates draft documents.
	Backend = llm.Backend

	// Event is the interface for all lifecycle events.
	Event = core.Event

	// StatusChanged is emitted after a status transition.
	StatusChanged = core.StatusChanged

	// DraftCreated is emitted when a draft is stored.
	DraftCreated = core.DraftCreated

	// JobFailed is emitted when a job fails.
	JobFailed = core.JobFailed

	// JobCommitted is emitted when a job commits.
	JobCommitted = core.JobCommitted

	// RunAggregated is emitted when a run's status is recomputed.
	RunAggregated = core.RunAggregated

	// Worker leases queued jobs and drives them to approval.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption
)

// Job kinds
const (
	KindPersona    = core.KindPersona
	KindReflection = core.KindReflection
	KindContent    = core.KindContent
)

// Job statuses
const (
	StatusQueued            = core.StatusQueued
	StatusCollecting        = core.StatusCollecting
	StatusProcessing        = core.StatusProcessing
	StatusAwaitingApproval  = core.StatusAwaitingApproval
	StatusCommitted         = core.StatusCommitted
	StatusCommittedDegraded = core.StatusCommittedDegraded
	StatusFailed            = core.StatusFailed
)

// Run statuses
const (
	RunPending = core.RunPending
	RunSuccess = core.RunSuccess
	RunFailed  = core.RunFailed
	RunPartial = core.RunPartial
)

// Security limits
const (
	MaxTargetNameLength = security.MaxTargetNameLength
	MaxInputSize        = security.MaxInputSize
	MaxEditsPerRequest  = security.MaxEditsPerRequest
	MaxOutcomes         = runs.MaxOutcomes
)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// Worker option functions

// Concurrency sets how many jobs a worker drives at once.
func Concurrency(n int) WorkerOption {
	return worker.Concurrency(n)
}

// WithPollInterval sets how often a worker looks for queued jobs.
func WithPollInterval(d time.Duration) WorkerOption {
	return worker.WithPollInterval(d)
}

// WithWorkerID names the worker in job leases.
func WithWorkerID(id string) WorkerOption {
	return worker.WithWorkerID(id)
}

// WithLease sets how long a leased job stays owned without a heartbeat.
func WithLease(d time.Duration) WorkerOption {
	return worker.WithLease(d)
}
