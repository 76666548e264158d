// Package generate turns a collected job into its first draft.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/hashing"
	"github.com/mpislabs/draftflow/pkg/jobctx"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
	"github.com/mpislabs/draftflow/pkg/llm"
	"github.com/mpislabs/draftflow/pkg/security"
)

const (
	DefaultAttempts = 3
	DefaultTimeout  = 120 * time.Second

	// maxEchoChars bounds the invalid answer quoted back in a repair prompt.
	maxEchoChars = 4000
)

// Generator calls the backend for a job in processing, validates the answer
// against the kind's schema and stores draft #1.
type Generator struct {
	machine  *lifecycle.Machine
	registry *lifecycle.Registry
	backend  llm.Backend
	attempts int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithAttempts sets the total number of backend calls per job.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		g.attempts = max(security.ClampRetries(n), 1)
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// New creates a Generator.
func New(machine *lifecycle.Machine, registry *lifecycle.Registry, backend llm.Backend, opts ...Option) *Generator {
	g := &Generator{
		machine:  machine,
		registry: registry,
		backend:  backend,
		attempts: DefaultAttempts,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces and stores draft #1 for job, which must be processing.
// owner, when set, is the worker lease the job must still be held by.
//
// A permanent backend error or exhausted retries fail the job with
// LLM_INVALID_OUTPUT. If the job changed while the backend was running (it
// was failed externally, or the lease was lost) the draft is discarded and
// the guard error returned.
func (g *Generator) Generate(ctx context.Context, job *core.Job, owner string) (*core.Draft, error) {
	flow, err := g.registry.Get(job.Kind)
	if err != nil {
		return nil, err
	}
	brief, err := g.brief(ctx, job)
	if err != nil {
		return nil, err
	}
	prompt, err := flow.Prompt(brief)
	if err != nil {
		return nil, g.fail(ctx, job.ID, err)
	}

	doc, err := g.generate(ctx, job.ID, flow, prompt)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the job for the next lease holder.
			return nil, ctx.Err()
		}
		return nil, g.fail(ctx, job.ID, err)
	}

	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	draft := &core.Draft{
		JobID:        job.ID,
		Document:     data,
		ReviewPrompt: flow.ReviewPrompt(doc, 1),
	}
	if err := g.machine.Storage().CreateFirstDraft(ctx, owner, draft); err != nil {
		jobctx.ForJob(ctx, g.logger, job.ID).Info("discarding generated draft", "error", err)
		return nil, err
	}

	g.machine.StatusChanged(ctx, job.ID, core.StatusProcessing, core.StatusAwaitingApproval)
	rec := g.machine.Audit()
	rec.Record(ctx, audit.Entry{
		Type:    core.AuditDraftGenerated,
		JobID:   job.ID,
		Details: map[string]any{"draft_no": draft.DraftNo, "sections": len(doc.Sections())},
	})
	rec.Record(ctx, audit.Entry{
		Type:    core.AuditApprovalRequested,
		JobID:   job.ID,
		Details: map[string]any{"draft_no": draft.DraftNo},
	})
	g.machine.Emit(&core.DraftCreated{JobID: job.ID, DraftNo: draft.DraftNo, Timestamp: time.Now()})
	return draft, nil
}

// generate runs the attempt loop and returns a schema-valid document.
func (g *Generator) generate(ctx context.Context, jobID string, flow lifecycle.Flow, prompt llm.Prompt) (*document.Document, error) {
	base := prompt.User
	var lastErr error

	for attempt := 1; attempt <= g.attempts; attempt++ {
		if attempt > 1 {
			jobctx.ForJob(ctx, g.logger, jobID).Warn("retrying generation", "attempt", attempt, "error", lastErr)
		}

		out, err := g.call(ctx, prompt)
		if err != nil {
			if core.IsNoRetry(err) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			if wait := retryDelay(err); wait > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
			}
			continue
		}

		doc, err := document.Parse([]byte(llm.CleanJSON(out)))
		if err == nil {
			err = flow.Schema().ValidateDocument(doc)
		}
		if err == nil {
			return doc, nil
		}
		lastErr = err
		prompt.User = repairPrompt(base, out, err)
	}
	return nil, fmt.Errorf("%d attempts: %w", g.attempts, lastErr)
}

func (g *Generator) call(ctx context.Context, p llm.Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.backend.Generate(callCtx, p)
}

// brief gathers the corpus and the target entity's active version.
func (g *Generator) brief(ctx context.Context, job *core.Job) (lifecycle.Brief, error) {
	store := g.machine.Storage()
	b := lifecycle.Brief{Job: job}

	sources, err := store.ListSources(ctx, job.ID)
	if err != nil {
		return b, fmt.Errorf("list sources: %w", err)
	}
	for _, s := range sources {
		if s.Outcome == core.OutcomeOK && s.Text != "" {
			b.Corpus = append(b.Corpus, s.Text)
		}
	}

	entity, err := store.GetEntity(ctx, job.TargetEntityID)
	if errors.Is(err, core.ErrEntityNotFound) || (err == nil && entity.ActiveVersionID == nil) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("get entity: %w", err)
	}
	versions, err := store.ListVersions(ctx, entity.ID)
	if err != nil {
		return b, fmt.Errorf("list versions: %w", err)
	}
	for _, v := range versions {
		if v.ID == *entity.ActiveVersionID {
			if doc, err := document.Parse(v.Document); err == nil {
				b.Active = doc
			}
			break
		}
	}
	return b, nil
}

func (g *Generator) fail(ctx context.Context, jobID string, cause error) error {
	reason := fmt.Sprintf("%s: %v", core.CodeLLMInvalidOutput, cause)
	if err := g.machine.Fail(ctx, jobID, reason); err != nil {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrLLMInvalidOutput, cause)
}

func repairPrompt(base, previous string, cause error) string {
	return fmt.Sprintf("%s\n\nYour previous answer was rejected: %v\nPrevious answer:\n%s\n\nReturn the corrected JSON object only.",
		base, cause, hashing.Preview(previous, maxEchoChars))
}

func retryDelay(err error) time.Duration {
	var ra *core.RetryAfterError
	if errors.As(err, &ra) {
		return ra.Delay
	}
	return 0
}
