// Package ingest records external material for a job exactly once.
//
// A source is identified twice: by its origin (job, channel, ref), which makes
// re-running a job's collection a no-op, and by the hash of its normalized
// text within the owning entity, which keeps identical content from being
// imported again by any later job.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/hashing"
	"github.com/mpislabs/draftflow/pkg/jobctx"
	"github.com/mpislabs/draftflow/pkg/security"
)

// DefaultSourceTimeout bounds one adapter fetch.
const DefaultSourceTimeout = 60 * time.Second

// ChunkSink receives the chunks of every newly recorded ok source.
type ChunkSink interface {
	Consume(ctx context.Context, src *core.Source, chunks []Chunk) error
}

// Result is the outcome of ingesting one candidate.
type Result struct {
	SourceID string             `json:"source_id"`
	Channel  core.Channel       `json:"channel"`
	Ref      string             `json:"ref"`
	Outcome  core.SourceOutcome `json:"outcome"`
	Hash     string             `json:"hash,omitempty"`
	Detail   string             `json:"detail,omitempty"`
	Chunks   int                `json:"chunks,omitempty"`
}

// Ingestor deduplicates and records sources.
type Ingestor struct {
	store       core.Storage
	adapters    map[core.Channel]Adapter
	sink        ChunkSink
	chunker     *Chunker
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// Option configures an Ingestor.
type Option interface {
	ApplyIngestor(*Ingestor)
}

type ingestorOptionFunc func(*Ingestor)

func (f ingestorOptionFunc) ApplyIngestor(i *Ingestor) { f(i) }

// WithAdapter registers an adapter for its channel.
func WithAdapter(a Adapter) Option {
	return ingestorOptionFunc(func(i *Ingestor) {
		i.adapters[a.Channel()] = a
	})
}

// WithChunkSink forwards chunks of ok sources to sink.
func WithChunkSink(sink ChunkSink) Option {
	return ingestorOptionFunc(func(i *Ingestor) {
		i.sink = sink
	})
}

// WithChunker replaces the default chunker.
func WithChunker(c *Chunker) Option {
	return ingestorOptionFunc(func(i *Ingestor) {
		i.chunker = c
	})
}

// WithSourceTimeout bounds each adapter fetch.
func WithSourceTimeout(d time.Duration) Option {
	return ingestorOptionFunc(func(i *Ingestor) {
		if d > 0 {
			i.timeout = d
		}
	})
}

// WithConcurrency limits how many candidates IngestAll processes at once.
func WithConcurrency(n int) Option {
	return ingestorOptionFunc(func(i *Ingestor) {
		i.concurrency = security.ClampConcurrency(n)
	})
}

// New creates an Ingestor.
func New(store core.Storage, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:       store,
		adapters:    make(map[core.Channel]Adapter),
		timeout:     DefaultSourceTimeout,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt.ApplyIngestor(i)
	}
	if i.chunker == nil {
		i.chunker = NewChunker(nil)
	}
	return i
}

// Ingest records one candidate for jobID within ownerEntityID's dedup scope.
// Source failures are recorded and returned as outcomes; the returned error
// is reserved for storage failures and invalid candidates.
func (i *Ingestor) Ingest(ctx context.Context, jobID, ownerEntityID string, c Candidate) (*Result, error) {
	if err := security.ValidateSourceRef(c.Ref); err != nil {
		return nil, err
	}
	if len(c.Content) > security.MaxSourceTextSize {
		return nil, fmt.Errorf("%w: inline content exceeds %d bytes", core.ErrInvalidRequest, security.MaxSourceTextSize)
	}

	prior, err := i.store.FindSource(ctx, jobID, c.Channel, c.Ref)
	if err != nil {
		return nil, fmt.Errorf("find source: %w", err)
	}
	if prior != nil && !prior.Outcome.Failed() {
		// Already settled for this job: no fetch, no new rows.
		return &Result{
			SourceID: prior.ID,
			Channel:  c.Channel,
			Ref:      c.Ref,
			Outcome:  core.OutcomeSkippedDuplicate,
			Hash:     prior.ContentHash,
			Detail:   "already recorded for this job",
		}, nil
	}

	src := prior
	if src == nil {
		src = &core.Source{JobID: jobID, OwnerEntityID: ownerEntityID, Channel: c.Channel, Ref: c.Ref}
	}

	var text, note string
	if c.Content != "" {
		text = hashing.Normalize(c.Content)
	} else {
		raw, outcome, detail := i.fetch(ctx, c)
		if outcome != "" {
			return i.record(ctx, src, outcome, detail)
		}
		text, note = hashing.Normalize(raw), detail
	}

	if text == "" {
		return i.record(ctx, src, core.OutcomeFailedParse, "no text content")
	}
	src.ContentHash = hashing.HashNormalized(text)
	if res, done, err := i.skipIfKnown(ctx, src); done || err != nil {
		return res, err
	}

	hash := src.ContentHash
	src.DedupHash = &hash
	src.Text = text
	src.Outcome = core.OutcomeOK
	src.Detail = note
	if err := i.store.SaveSource(ctx, src); err != nil {
		if !errors.Is(err, core.ErrDuplicateSource) {
			return nil, fmt.Errorf("save source: %w", err)
		}
		// Another job imported the same content first.
		return i.recordDuplicate(ctx, src)
	}

	res := i.result(src)
	res.Chunks = i.forward(ctx, src)
	return res, nil
}

// skipIfKnown records src as a duplicate when its hash is already imported.
func (i *Ingestor) skipIfKnown(ctx context.Context, src *core.Source) (*Result, bool, error) {
	known, err := i.store.HashRecorded(ctx, src.OwnerEntityID, src.ContentHash)
	if err != nil {
		return nil, true, fmt.Errorf("check hash: %w", err)
	}
	if !known {
		return nil, false, nil
	}
	res, err := i.recordDuplicate(ctx, src)
	return res, true, err
}

func (i *Ingestor) recordDuplicate(ctx context.Context, src *core.Source) (*Result, error) {
	return i.record(ctx, src, core.OutcomeSkippedDuplicate, "content already imported")
}

// record stores src with a non-ok outcome.
func (i *Ingestor) record(ctx context.Context, src *core.Source, outcome core.SourceOutcome, detail string) (*Result, error) {
	src.Outcome = outcome
	src.Detail = security.SanitizeErrorMessage(detail)
	src.DedupHash = nil
	src.Text = ""
	if err := i.store.SaveSource(ctx, src); err != nil {
		if !errors.Is(err, core.ErrDuplicateSource) {
			return nil, fmt.Errorf("save source: %w", err)
		}
		// A concurrent ingest of the same origin recorded it first.
		existing, findErr := i.store.FindSource(ctx, src.JobID, src.Channel, src.Ref)
		if findErr != nil || existing == nil {
			return nil, fmt.Errorf("save source: %w", err)
		}
		res := i.result(existing)
		res.Outcome = core.OutcomeSkippedDuplicate
		return res, nil
	}
	if outcome.Failed() {
		jobctx.ForJob(ctx, i.logger, src.JobID).Warn("source ingestion failed",
			"channel", src.Channel, "ref", src.Ref,
			"outcome", outcome, "detail", src.Detail)
	}
	return i.result(src), nil
}

// fetch runs the channel adapter under the source timeout. A non-empty
// outcome reports a failure; otherwise detail notes a truncation.
func (i *Ingestor) fetch(ctx context.Context, c Candidate) (string, core.SourceOutcome, string) {
	adapter, ok := i.adapters[c.Channel]
	if !ok {
		return "", core.OutcomeFailedParse, fmt.Sprintf("no adapter for channel %q", c.Channel)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	raw, err := adapter.Fetch(fetchCtx, c.Ref)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind == KindUnsupportedFormat {
			return "", core.OutcomeFailedParse, err.Error()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", core.OutcomeFailedTranscript, "fetch timed out"
		}
		return "", core.OutcomeFailedTranscript, err.Error()
	}
	var detail string
	if len(raw) > security.MaxSourceTextSize {
		raw = truncateUTF8(raw, security.MaxSourceTextSize)
		detail = fmt.Sprintf("text truncated to %d bytes", len(raw))
	}
	if strings.TrimSpace(raw) == "" {
		return "", core.OutcomeFailedParse, "empty content"
	}
	return raw, "", detail
}

// forward hands the chunks of an ok source to the sink. Sink failures are
// logged; the source stays recorded.
func (i *Ingestor) forward(ctx context.Context, src *core.Source) int {
	if i.sink == nil {
		return 0
	}
	chunks := i.chunker.Split(src.Text)
	if len(chunks) == 0 {
		return 0
	}
	if err := i.sink.Consume(ctx, src, chunks); err != nil {
		jobctx.ForJob(ctx, i.logger, src.JobID).Warn("chunk sink failed", "source_id", src.ID, "chunks", len(chunks), "error", err)
		return 0
	}
	return len(chunks)
}

func (i *Ingestor) result(src *core.Source) *Result {
	return &Result{
		SourceID: src.ID,
		Channel:  src.Channel,
		Ref:      src.Ref,
		Outcome:  src.Outcome,
		Hash:     src.ContentHash,
		Detail:   src.Detail,
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
