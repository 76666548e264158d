package draftflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mpislabs/draftflow/pkg/approval"
	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/commit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/generate"
	"github.com/mpislabs/draftflow/pkg/hashing"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
	"github.com/mpislabs/draftflow/pkg/memory"
	"github.com/mpislabs/draftflow/pkg/runs"
	"github.com/mpislabs/draftflow/pkg/security"
)

var validate = validator.New()

// Engine wires storage, flows and services behind one API.
type Engine struct {
	store     core.Storage
	audit     *audit.Recorder
	machine   *lifecycle.Machine
	registry  *lifecycle.Registry
	ingestor  *ingest.Ingestor
	generator *generate.Generator
	committer *commit.Coordinator
	approvals *approval.Service
	runs      *runs.Service

	runTimeout time.Duration
	logger     *slog.Logger
}

type engineConfig struct {
	registry     *lifecycle.Registry
	index        memory.Index
	exporter     commit.Exporter
	ingestOpts   []ingest.Option
	generateOpts []generate.Option
	commitOpts   []commit.Option
	runTimeout   time.Duration
	indexChunks  bool
}

// Option configures an Engine.
type Option interface {
	applyEngine(*engineConfig)
}

type engineOptionFunc func(*engineConfig)

func (f engineOptionFunc) applyEngine(c *engineConfig) { f(c) }

// WithRegistry replaces the persona, reflection and content flows.
func WithRegistry(r *lifecycle.Registry) Option {
	return engineOptionFunc(func(c *engineConfig) {
		c.registry = r
	})
}

// WithIndex sets the memory index used on commit. Chunks of newly recorded
// sources are forwarded to it as well.
func WithIndex(idx memory.Index) Option {
	return engineOptionFunc(func(c *engineConfig) {
		c.index = idx
		c.indexChunks = true
	})
}

// WithExporter writes every committed version through e.
func WithExporter(e commit.Exporter) Option {
	return engineOptionFunc(func(c *engineConfig) {
		c.exporter = e
	})
}

// WithAdapters registers channel adapters. Inline text needs none.
func WithAdapters(adapters ...ingest.Adapter) Option {
	return engineOptionFunc(func(c *engineConfig) {
		for _, a := range adapters {
			c.ingestOpts = append(c.ingestOpts, ingest.WithAdapter(a))
		}
	})
}

// WithIngestOptions passes options to the source ingestor.
func WithIngestOptions(opts ...ingest.Option) Option {
	return engineOptionFunc(func(c *engineConfig) {
		c.ingestOpts = append(c.ingestOpts, opts...)
	})
}

// WithGenerateOptions passes options to the draft generator.
func WithGenerateOptions(opts ...generate.Option) Option {
	return engineOptionFunc(func(c *engineConfig) {
		c.generateOpts = append(c.generateOpts, opts...)
	})
}

// WithCommitOptions passes options to the commit coordinator.
func WithCommitOptions(opts ...commit.Option) Option {
	return engineOptionFunc(func(c *engineConfig) {
		c.commitOpts = append(c.commitOpts, opts...)
	})
}

// WithRunTimeout gives runs created without a deadline one at now+d.
// Zero leaves such runs open until every channel reports.
func WithRunTimeout(d time.Duration) Option {
	return engineOptionFunc(func(c *engineConfig) {
		c.runTimeout = d
	})
}

// New creates an Engine over store using backend for generation.
func New(store core.Storage, backend Backend, opts ...Option) *Engine {
	cfg := engineConfig{}
	for _, opt := range opts {
		opt.applyEngine(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = lifecycle.DefaultRegistry()
	}

	rec := audit.NewRecorder(store)
	machine := lifecycle.NewMachine(store, rec)

	ingestOpts := cfg.ingestOpts
	commitOpts := []commit.Option{}
	if cfg.index != nil {
		commitOpts = append(commitOpts, commit.WithIndex(cfg.index))
		if cfg.indexChunks {
			ingestOpts = append([]ingest.Option{ingest.WithChunkSink(memory.NewChunkSink(cfg.index))}, ingestOpts...)
		}
	}
	if cfg.exporter != nil {
		commitOpts = append(commitOpts, commit.WithExporter(cfg.exporter))
	}
	committer := commit.NewCoordinator(machine, append(commitOpts, cfg.commitOpts...)...)

	return &Engine{
		store:      store,
		audit:      rec,
		machine:    machine,
		registry:   cfg.registry,
		ingestor:   ingest.New(store, ingestOpts...),
		generator:  generate.New(machine, cfg.registry, backend, cfg.generateOpts...),
		committer:  committer,
		approvals:  approval.NewService(machine, cfg.registry, committer),
		runs:       runs.NewService(store, rec, machine),
		runTimeout: cfg.runTimeout,
		logger:     slog.Default(),
	}
}

// Storage returns the backing store.
func (e *Engine) Storage() core.Storage {
	return e.store
}

// ─────────────────────────────────────────────────────────────────────────────
// Jobs
// ─────────────────────────────────────────────────────────────────────────────

// StartRequest asks for a new job.
type StartRequest struct {
	Kind       JobKind         `json:"kind" validate:"required"`
	TargetName string          `json:"target_name" validate:"required"`
	Input      json.RawMessage `json:"input"`
}

// StartJob validates req, resolves the target entity by slug (creating it
// on first use) and stores a queued job.
func (e *Engine) StartJob(ctx context.Context, req StartRequest) (*Job, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	if err := security.ValidateTargetName(req.TargetName); err != nil {
		return nil, err
	}
	if err := security.ValidateInput(req.Input); err != nil {
		return nil, err
	}
	flow, err := e.registry.Get(req.Kind)
	if err != nil {
		return nil, err
	}
	input := []byte(req.Input)
	if len(input) == 0 {
		input = []byte("{}")
	}
	// Reject malformed input now rather than failing the job later.
	if _, err := flow.Collect(input); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.TargetName)
	entity, err := e.resolveEntity(ctx, name)
	if err != nil {
		return nil, err
	}

	job := &core.Job{
		ID:             uuid.New().String(),
		Kind:           req.Kind,
		TargetName:     name,
		TargetEntityID: entity.ID,
		Input:          input,
	}
	if err := e.machine.Create(ctx, job); err != nil {
		return nil, err
	}
	e.logger.Info("job created", "job_id", job.ID, "kind", job.Kind, "entity_id", entity.ID)
	return job, nil
}

// resolveEntity finds the entity for name's slug or creates it. A lost
// creation race re-reads the winner.
func (e *Engine) resolveEntity(ctx context.Context, name string) (*core.Entity, error) {
	slug := hashing.Slugify(name, hashing.DefaultSlugLength)
	entity, err := e.store.FindEntityBySlug(ctx, slug)
	if err != nil || entity != nil {
		return entity, err
	}

	entity = &core.Entity{ID: uuid.New().String(), Name: name, Slug: slug}
	err = e.store.CreateEntity(ctx, entity)
	if errors.Is(err, core.ErrSlugTaken) {
		entity, err = e.store.FindEntityBySlug(ctx, slug)
		if err == nil && entity == nil {
			err = fmt.Errorf("entity %q vanished after slug conflict", slug)
		}
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// Job returns a job.
func (e *Engine) Job(ctx context.Context, jobID string) (*Job, error) {
	return e.machine.Get(ctx, jobID)
}

// Progress returns a job's progress view.
func (e *Engine) Progress(ctx context.Context, jobID string) (Progress, error) {
	return e.machine.Progress(ctx, jobID)
}

// ListJobs lists jobs matching filter, newest first.
func (e *Engine) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrInvalidRequest, filter.Status)
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", core.ErrInvalidRequest, filter.Kind)
	}
	return e.store.ListJobs(ctx, filter)
}

// Stats returns job counts grouped by kind and status.
func (e *Engine) Stats(ctx context.Context) (map[JobKind]map[JobStatus]int64, error) {
	return e.store.CountJobs(ctx)
}

// Fail cancels a job. Failing a failed job is a no-op; failing a committed
// job returns ErrJobTerminal.
func (e *Engine) Fail(ctx context.Context, jobID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled"
	}
	return e.machine.Fail(ctx, jobID, reason)
}

// Sources lists the sources recorded for a job.
func (e *Engine) Sources(ctx context.Context, jobID string) ([]*Source, error) {
	if _, err := e.machine.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return e.store.ListSources(ctx, jobID)
}

// Audit returns a job's audit trail in order.
func (e *Engine) Audit(ctx context.Context, jobID string) ([]*AuditEvent, error) {
	return e.audit.Trail(ctx, jobID)
}

// Events returns a channel receiving lifecycle events. Events are dropped
// while the channel is full. Call Unsubscribe when done.
func (e *Engine) Events() <-chan Event {
	return e.machine.Events()
}

// Unsubscribe stops delivery to a channel returned by Events.
func (e *Engine) Unsubscribe(ch <-chan Event) {
	e.machine.Unsubscribe(ch)
}

// ─────────────────────────────────────────────────────────────────────────────
// Drafts and approval
// ─────────────────────────────────────────────────────────────────────────────

// CurrentDraft returns the job's latest draft.
func (e *Engine) CurrentDraft(ctx context.Context, jobID string) (*Draft, error) {
	return e.approvals.Current(ctx, jobID)
}

// Draft returns one numbered draft.
func (e *Engine) Draft(ctx context.Context, jobID string, draftNo int) (*Draft, error) {
	return e.store.GetDraft(ctx, jobID, draftNo)
}

// Drafts lists every draft of a job in draft order.
func (e *Engine) Drafts(ctx context.Context, jobID string) ([]*Draft, error) {
	if _, err := e.machine.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return e.store.ListDrafts(ctx, jobID)
}

// ApplyEdits applies edits to draft base and stores the result as draft
// base+1. The job stays awaiting approval.
func (e *Engine) ApplyEdits(ctx context.Context, jobID string, base int, edits []Edit) (*Draft, error) {
	return e.approvals.Apply(ctx, jobID, base, edits)
}

// Confirm commits draft draftNo, which must be the job's latest draft.
func (e *Engine) Confirm(ctx context.Context, jobID string, draftNo int) (*CommitResult, error) {
	return e.approvals.Confirm(ctx, jobID, draftNo)
}

// ─────────────────────────────────────────────────────────────────────────────
// Entities
// ─────────────────────────────────────────────────────────────────────────────

// Entity returns an entity.
func (e *Engine) Entity(ctx context.Context, entityID string) (*Entity, error) {
	return e.store.GetEntity(ctx, entityID)
}

// EntityBySlug returns the entity with slug.
func (e *Engine) EntityBySlug(ctx context.Context, slug string) (*Entity, error) {
	entity, err := e.store.FindEntityBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrEntityNotFound, slug)
	}
	return entity, nil
}

// Versions lists an entity's committed versions in order.
func (e *Engine) Versions(ctx context.Context, entityID string) ([]*EntityVersion, error) {
	if _, err := e.store.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	return e.store.ListVersions(ctx, entityID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Runs
// ─────────────────────────────────────────────────────────────────────────────

// CreateRun starts a run expecting a report from every channel. A nil
// deadline falls back to the engine's run timeout, if any.
func (e *Engine) CreateRun(ctx context.Context, channels []string, deadline *time.Time) (*Run, error) {
	if deadline == nil && e.runTimeout > 0 {
		d := time.Now().Add(e.runTimeout)
		deadline = &d
	}
	return e.runs.Create(ctx, channels, deadline)
}

// Run returns a run and its reported outcomes.
func (e *Engine) Run(ctx context.Context, runID string) (*Run, []Outcome, error) {
	return e.runs.Get(ctx, runID)
}

// ReportOutcomes replaces a run's outcome set and recomputes its status.
func (e *Engine) ReportOutcomes(ctx context.Context, runID string, outcomes []Outcome) (*Run, error) {
	return e.runs.Report(ctx, runID, outcomes)
}
