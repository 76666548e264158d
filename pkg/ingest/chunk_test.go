package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix + string(rune('a'+i%26))
	}
	return strings.Join(parts, " ")
}

func smallChunker() *Chunker {
	c := NewChunker(WordCounter{})
	c.MinTokens = 0
	c.MaxTokens = 20
	c.OverlapTokens = 0
	return c
}

func TestWordCounter(t *testing.T) {
	assert.Equal(t, 0, WordCounter{}.CountTokens(""))
	assert.Equal(t, 2, WordCounter{}.CountTokens("one"))
	assert.Equal(t, 4, WordCounter{}.CountTokens("one two three"))
}

func TestChunker_Empty(t *testing.T) {
	assert.Empty(t, NewChunker(nil).Split(""))
	assert.Empty(t, NewChunker(nil).Split("\n\n  \n\n"))
}

func TestChunker_SingleChunk(t *testing.T) {
	chunks := NewChunker(nil).Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunker_ParagraphBoundaries(t *testing.T) {
	text := words("p", 10) + "\n\n" + words("q", 10) + "\n\n" + words("r", 10)

	chunks := smallChunker().Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, words("p", 10), chunks[0].Text)
	assert.Equal(t, words("q", 10), chunks[1].Text)
	assert.Equal(t, words("r", 10), chunks[2].Text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, c.Tokens, 20)
	}
}

func TestChunker_Overlap(t *testing.T) {
	c := smallChunker()
	c.OverlapTokens = 4
	text := words("p", 10) + "\n\n" + words("q", 10) + "\n\n" + words("r", 10)

	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[len(first)-3:], second[:3], "chunks share trailing words")
}

func TestChunker_LongParagraphSplitsOnSentences(t *testing.T) {
	sentence := "one two three four five six."
	text := strings.Repeat(sentence+" ", 6)

	chunks := smallChunker().Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c.Text, "."), "chunk %q ends mid-sentence", c.Text)
	}
}

func TestChunker_DropsTinyTrailingChunks(t *testing.T) {
	c := smallChunker()
	c.MinTokens = 10
	text := words("p", 14) + "\n\n" + "tiny"

	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, words("p", 14), chunks[0].Text)
}

func TestSentences(t *testing.T) {
	got := sentences(strings.Fields("Hi there. How are you? Fine"))
	assert.Equal(t, [][]string{{"Hi", "there."}, {"How", "are", "you?"}, {"Fine"}}, got)
}
