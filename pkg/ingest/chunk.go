package ingest

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts model tokens in a text.
type TokenCounter interface {
	CountTokens(text string) int
}

// WordCounter approximates tokens from words (one token is about 0.75 words).
type WordCounter struct{}

// CountTokens implements TokenCounter.
func (WordCounter) CountTokens(text string) int {
	n := len(strings.Fields(text))
	return (n*4 + 2) / 3
}

// TiktokenCounter counts tokens with the cl100k_base encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{encoding: enc}, nil
}

// CountTokens implements TokenCounter.
func (t *TiktokenCounter) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// DefaultCounter returns a tiktoken counter, or WordCounter when the
// encoding cannot be loaded.
func DefaultCounter() TokenCounter {
	c, err := NewTiktokenCounter()
	if err != nil {
		slog.Default().Warn("tiktoken unavailable, counting words", "error", err)
		return WordCounter{}
	}
	return c
}

// Chunk is one slice of a source text.
type Chunk struct {
	Index  int
	Text   string
	Tokens int
}

// Chunker splits text at paragraph boundaries, falling back to sentences for
// oversized paragraphs. Consecutive chunks share up to OverlapTokens tokens.
type Chunker struct {
	counter       TokenCounter
	MinTokens     int
	MaxTokens     int
	OverlapTokens int
}

// NewChunker creates a chunker with 500/1200/100 token bounds.
// A nil counter uses WordCounter.
func NewChunker(counter TokenCounter) *Chunker {
	if counter == nil {
		counter = WordCounter{}
	}
	return &Chunker{
		counter:       counter,
		MinTokens:     500,
		MaxTokens:     1200,
		OverlapTokens: 100,
	}
}

// Split chunks text. When more than one chunk results, chunks shorter than
// half of MinTokens are dropped.
func (c *Chunker) Split(text string) []Chunk {
	var (
		out     []string
		cur     []string
		tokens  int
		pending bool // words added since the last flush
	)

	flush := func() {
		if !pending {
			return
		}
		out = append(out, strings.Join(cur, " "))
		cur = c.tail(cur)
		tokens = c.counter.CountTokens(strings.Join(cur, " "))
		pending = false
	}
	add := func(segment []string) {
		n := c.counter.CountTokens(strings.Join(segment, " "))
		if tokens+n > c.MaxTokens {
			flush()
		}
		cur = append(cur, segment...)
		tokens += n
		pending = true
	}

	for _, para := range strings.Split(text, "\n\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if c.counter.CountTokens(strings.Join(words, " ")) <= c.MaxTokens {
			add(words)
			continue
		}
		flush()
		for _, sentence := range sentences(words) {
			add(sentence)
		}
	}
	if pending {
		out = append(out, strings.Join(cur, " "))
	}

	chunks := make([]Chunk, 0, len(out))
	for _, s := range out {
		n := c.counter.CountTokens(s)
		if len(out) > 1 && n < c.MinTokens/2 {
			continue
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: s, Tokens: n})
	}
	return chunks
}

// tail returns the longest suffix of words within the overlap budget.
func (c *Chunker) tail(words []string) []string {
	if c.OverlapTokens <= 0 {
		return nil
	}
	start := len(words)
	for start > 0 && c.counter.CountTokens(strings.Join(words[start-1:], " ")) <= c.OverlapTokens {
		start--
	}
	return append([]string(nil), words[start:]...)
}

// sentences groups words into sentences ending in '.', '!' or '?'.
func sentences(words []string) [][]string {
	var out [][]string
	start := 0
	for i, w := range words {
		if strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?") {
			out = append(out, words[start:i+1])
			start = i + 1
		}
	}
	if start < len(words) {
		out = append(out, words[start:])
	}
	return out
}
