package memory_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/memory"
	"github.com/mpislabs/draftflow/pkg/storage/storagetest"
)

// fakeEmbedder maps each text to [len(text), 1, 0].
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func newIndex(t *testing.T, emb *fakeEmbedder) (*memory.PGVectorIndex, func() []memory.Section) {
	t.Helper()
	db := storagetest.OpenDB(t)
	idx := memory.NewPGVectorIndex(db, emb)
	require.NoError(t, idx.Migrate(context.Background()))
	return idx, func() []memory.Section {
		var rows []memory.Section
		require.NoError(t, db.Order("section_key").Find(&rows).Error)
		return rows
	}
}

func TestPGVectorIndex_IndexVersionUpserts(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{}
	idx, sections := newIndex(t, emb)

	entry := memory.Entry{
		EntityID:  "e1",
		VersionID: "v1",
		Kind:      core.KindPersona,
		Sections: []document.Section{
			{Key: "credo", Text: "love"},
			{Key: "style", Text: "plain"},
		},
	}
	require.NoError(t, idx.IndexVersion(ctx, entry))

	entry.Sections[0].Text = "love and truth"
	require.NoError(t, idx.IndexVersion(ctx, entry))

	rows := sections()
	require.Len(t, rows, 2, "replaying a version must not duplicate sections")
	assert.Equal(t, "credo", rows[0].Key)
	assert.Equal(t, "love and truth", rows[0].Content)
	assert.Equal(t, []float32{float32(len("credo: love and truth")), 1, 0}, rows[0].Embedding.Slice())
	assert.Equal(t, "persona", rows[1].Kind)
}

func TestPGVectorIndex_EmptyEntry(t *testing.T) {
	emb := &fakeEmbedder{}
	idx, _ := newIndex(t, emb)
	require.NoError(t, idx.IndexVersion(context.Background(), memory.Entry{EntityID: "e1", VersionID: "v1"}))
	assert.Zero(t, emb.calls)
}

func TestPGVectorIndex_EmbedderFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}
	idx, sections := newIndex(t, emb)

	err := idx.IndexVersion(context.Background(), memory.Entry{
		EntityID: "e1", VersionID: "v1",
		Sections: []document.Section{{Key: "credo", Text: "x"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrUnavailable)
	assert.Empty(t, sections())
}

func TestPGVectorIndex_UpsertChunks(t *testing.T) {
	ctx := context.Background()
	db := storagetest.OpenDB(t)
	idx := memory.NewPGVectorIndex(db, &fakeEmbedder{})
	require.NoError(t, idx.Migrate(ctx))

	chunks := []memory.Chunk{
		{OwnerEntityID: "e1", SourceID: "s1", Channel: core.ChannelWeb, Index: 0, Text: "first"},
		{OwnerEntityID: "e1", SourceID: "s1", Channel: core.ChannelWeb, Index: 1, Text: "second"},
	}
	require.NoError(t, idx.UpsertChunks(ctx, chunks))
	require.NoError(t, idx.UpsertChunks(ctx, chunks[:1]))

	var rows []memory.SourceChunk
	require.NoError(t, db.Order("chunk_index").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "second", rows[1].Content)
	assert.Equal(t, "web", rows[1].Channel)
}

func TestPGVectorIndex_Search(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set; vector search needs PostgreSQL")
	}
	ctx := context.Background()
	idx, _ := newIndex(t, &fakeEmbedder{})
	require.NoError(t, idx.IndexVersion(ctx, memory.Entry{
		EntityID: "e1", VersionID: "v1",
		Sections: []document.Section{{Key: "a", Text: "xx"}, {Key: "b", Text: "xxxxxxxxxxxxxxxxxxxx"}},
	}))

	matches, err := idx.Search(ctx, "e1", "abcd", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].Key)
}

// ─────────────────────────────────────────────────────────────────────────────
// Sink and fallback
// ─────────────────────────────────────────────────────────────────────────────

type recordingIndex struct {
	chunks []memory.Chunk
}

func (r *recordingIndex) IndexVersion(context.Context, memory.Entry) error { return nil }

func (r *recordingIndex) UpsertChunks(_ context.Context, chunks []memory.Chunk) error {
	r.chunks = append(r.chunks, chunks...)
	return nil
}

func TestChunkSink_Consume(t *testing.T) {
	idx := &recordingIndex{}
	sink := memory.NewChunkSink(idx)

	src := &core.Source{ID: "s1", OwnerEntityID: "e1", Channel: core.ChannelTranscript}
	err := sink.Consume(context.Background(), src, []ingest.Chunk{
		{Index: 0, Text: "one", Tokens: 1},
		{Index: 1, Text: "two", Tokens: 1},
	})
	require.NoError(t, err)
	require.Len(t, idx.chunks, 2)
	assert.Equal(t, memory.Chunk{
		OwnerEntityID: "e1", SourceID: "s1", Channel: core.ChannelTranscript, Index: 1, Text: "two",
	}, idx.chunks[1])
}

func TestUnavailable(t *testing.T) {
	var idx memory.Index = memory.Unavailable{}
	assert.ErrorIs(t, idx.IndexVersion(context.Background(), memory.Entry{}), memory.ErrUnavailable)
	assert.ErrorIs(t, idx.UpsertChunks(context.Background(), nil), memory.ErrUnavailable)
}
