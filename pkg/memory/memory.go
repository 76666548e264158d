// Package memory stores committed documents and source chunks as embeddings
// so later generations can search them.
package memory

import (
	"context"
	"errors"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
)

// ErrUnavailable is returned when no index backend is configured or reachable.
var ErrUnavailable = errors.New("memory: index unavailable")

// Entry is one committed entity version to index.
type Entry struct {
	EntityID  string
	VersionID string
	Kind      core.JobKind
	Sections  []document.Section
}

// Chunk is one slice of an ingested source.
type Chunk struct {
	OwnerEntityID string
	SourceID      string
	Channel       core.Channel
	Index         int
	Text          string
}

// Index is the memory index written by commits and ingestion.
// Writes are upserts; replaying an entry or chunk is harmless.
type Index interface {
	IndexVersion(ctx context.Context, e Entry) error
	UpsertChunks(ctx context.Context, chunks []Chunk) error
}

// Unavailable is the Index used when indexing is disabled.
type Unavailable struct{}

func (Unavailable) IndexVersion(context.Context, Entry) error   { return ErrUnavailable }
func (Unavailable) UpsertChunks(context.Context, []Chunk) error { return ErrUnavailable }
