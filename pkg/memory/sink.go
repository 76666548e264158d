package memory

import (
	"context"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/ingest"
)

// ChunkSink forwards ingested source chunks to an Index.
type ChunkSink struct {
	index Index
}

// NewChunkSink returns an ingest.ChunkSink writing to index.
func NewChunkSink(index Index) *ChunkSink {
	return &ChunkSink{index: index}
}

var _ ingest.ChunkSink = (*ChunkSink)(nil)

func (s *ChunkSink) Consume(ctx context.Context, src *core.Source, chunks []ingest.Chunk) error {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = Chunk{
			OwnerEntityID: src.OwnerEntityID,
			SourceID:      src.ID,
			Channel:       src.Channel,
			Index:         c.Index,
			Text:          c.Text,
		}
	}
	return s.index.UpsertChunks(ctx, out)
}
