package lifecycle

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
)

const samplePersona = `{
  "credo": {"summary": "Grace before works.", "statements": ["Truth is personal", "Love acts"]},
  "ethos": {"virtues": ["humility", "courage"], "emotional_tone": ["warm"]},
  "theo_logic": {"principles": ["scripture first"], "reasoning_style": "socratic"},
  "style": {"voice": "pastoral", "cadence": "measured"},
  "lexicon": {"keywords": ["grace"]},
  "topics": {"primary": ["doubt", "vocation"]},
  "language": "en"
}`

func mustDoc(t *testing.T, raw string) *document.Document {
	t.Helper()
	d, err := document.Parse([]byte(raw))
	require.NoError(t, err)
	return d
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []core.JobKind{core.KindContent, core.KindPersona, core.KindReflection}, r.Kinds())

	for _, k := range r.Kinds() {
		f, err := r.Get(k)
		require.NoError(t, err)
		assert.Equal(t, k, f.Kind())
	}

	_, err := r.Get("sermon")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestSchemas_AcceptSamples(t *testing.T) {
	assert.NoError(t, PersonaFlow{}.Schema().Validate([]byte(samplePersona)))
	assert.NoError(t, ReflectionFlow{}.Schema().Validate([]byte(`{"summary":"ok","key_insights":["a"],"suggested_adjustments":[{"field":"style.voice","change":"warmer"}]}`)))
	assert.NoError(t, ContentFlow{}.Schema().Validate([]byte(`{"variants":[{"variant_no":1,"text":"Hello"}]}`)))
}

func TestSchemas_RejectInvalid(t *testing.T) {
	err := PersonaFlow{}.Schema().Validate([]byte(`{"credo":{"summary":""}}`))
	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Errors)

	assert.Error(t, ContentFlow{}.Schema().Validate([]byte(`{"variants":[]}`)))
	assert.Error(t, ReflectionFlow{}.Schema().Validate([]byte(`{"key_insights":[]}`)))
}

func TestPersonaFlow(t *testing.T) {
	f := PersonaFlow{}
	input := `{"language":"ru","inspiration_source":"Tim Keller","sources":[
		{"channel":"web","ref":"https://example.com/a"},
		{"channel":"text","ref":"note","content":"Some text"}]}`

	cands, err := f.Collect([]byte(input))
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, core.ChannelWeb, cands[0].Channel)
	assert.Equal(t, "Some text", cands[1].Content)

	job := &core.Job{Kind: core.KindPersona, TargetName: "Tim", Input: []byte(input)}
	p, err := f.Prompt(Brief{Job: job, Corpus: []string{"alpha", "beta"}, Active: mustDoc(t, samplePersona)})
	require.NoError(t, err)
	assert.NotEmpty(t, p.System)
	assert.Contains(t, p.User, "Tim Keller")
	assert.Contains(t, p.User, "alpha\n---\nbeta")
	assert.Contains(t, p.User, "Grace before works.")
	assert.Contains(t, p.User, `"ru"`)

	review := f.ReviewPrompt(mustDoc(t, samplePersona), 2)
	assert.Contains(t, review, "Persona draft v2")
	assert.Contains(t, review, "- Truth is personal")
	assert.Contains(t, review, "humility, courage")
	assert.Contains(t, review, `confirm: true`)
}

func TestFlows_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		flow  Flow
		input string
	}{
		{"persona malformed", PersonaFlow{}, `{"sources":`},
		{"persona bad channel", PersonaFlow{}, `{"sources":[{"channel":"fax","ref":"x"}]}`},
		{"persona missing ref", PersonaFlow{}, `{"sources":[{"channel":"web"}]}`},
		{"reflection bad cycle", ReflectionFlow{}, `{"cycle_type":"yearly"}`},
		{"reflection empty event", ReflectionFlow{}, `{"events":[{"type":"note"}]}`},
		{"content missing topic", ContentFlow{}, `{"variants":2}`},
		{"content too many variants", ContentFlow{}, `{"topic":"t","variants":50}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.flow.Collect([]byte(tt.input))
			assert.ErrorIs(t, err, core.ErrInvalidRequest)
		})
	}
}

func TestPersonaFlow_EmptyInput(t *testing.T) {
	cands, err := PersonaFlow{}.Collect(nil)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestReflectionFlow(t *testing.T) {
	f := ReflectionFlow{}
	input, err := json.Marshal(ReflectionInput{
		CycleType: "daily",
		Events: []LifeEvent{
			{Type: "conversation", Content: "Talked about   doubt."},
			{Type: "reading", Content: strings.Repeat("word ", 200)},
		},
	})
	require.NoError(t, err)

	cands, err := f.Collect(input)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, core.ChannelText, cands[0].Channel)
	assert.Equal(t, "event-000-conversation", cands[0].Ref)
	assert.Equal(t, "[conversation] (undated): Talked about doubt.", cands[0].Content)
	assert.LessOrEqual(t, len([]rune(cands[1].Content)), maxEventChars+40)

	job := &core.Job{Kind: core.KindReflection, TargetName: "Tim", Input: input}
	p, err := f.Prompt(Brief{Job: job, Corpus: []string{cands[0].Content}})
	require.NoError(t, err)
	assert.Contains(t, p.User, "daily reflection period")
	assert.Contains(t, p.User, "- [conversation]")

	review := f.ReviewPrompt(mustDoc(t, `{"summary":"Steady week","key_insights":["rest matters"]}`), 1)
	assert.Contains(t, review, "Steady week")
	assert.Contains(t, review, "- rest matters")
}

func TestContentFlow(t *testing.T) {
	f := ContentFlow{}
	input := `{"topic":"Hope","channel":"telegram","variants":2,"max_length":500,
		"references":[{"channel":"web","ref":"https://example.com/hope"}]}`

	cands, err := f.Collect([]byte(input))
	require.NoError(t, err)
	require.Len(t, cands, 1)

	job := &core.Job{Kind: core.KindContent, TargetName: "Tim", Input: []byte(input)}
	p, err := f.Prompt(Brief{Job: job})
	require.NoError(t, err)
	assert.Contains(t, p.User, "Generate 2 content variant(s)")
	assert.Contains(t, p.User, "Channel: telegram")
	assert.Contains(t, p.User, "under 500 characters")

	review := f.ReviewPrompt(mustDoc(t, `{"variants":[{"variant_no":1,"title":"Hope","text":"Hope is a person."}]}`), 3)
	assert.Contains(t, review, "**Variant 1** Hope")
	assert.Contains(t, review, "Hope is a person.")
	assert.Contains(t, review, "draft 3")
}

func TestJoinCorpus(t *testing.T) {
	assert.Equal(t, "a\n---\nb", joinCorpus([]string{"a", "b"}, 100))
	assert.Equal(t, "abc", joinCorpus([]string{"abcdef", "x"}, 3))
	assert.Equal(t, "", joinCorpus(nil, 10))
	// Never splits a multi-byte rune.
	assert.Equal(t, "я", joinCorpus([]string{"яя"}, 3))
}
