package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/hashing"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/llm"
)

var validate = validator.New()

// decodeInput unmarshals and validates a job input. Empty input decodes as {}.
func decodeInput(input []byte, v any) error {
	if len(input) == 0 {
		input = []byte("{}")
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("%w: malformed input: %v", core.ErrInvalidRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid input: %s", core.ErrInvalidRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Persona
// ──────────────────────────────────────────────────────────────────────────────

// PersonaInput is the input of a persona job.
type PersonaInput struct {
	Language          string             `json:"language" validate:"omitempty,min=2,max=10"`
	InspirationSource string             `json:"inspiration_source" validate:"max=500"`
	Sources           []ingest.Candidate `json:"sources" validate:"dive"`
}

var personaSchema = document.MustCompileSchema(`{
  "type": "object",
  "required": ["credo", "ethos", "theo_logic", "style", "lexicon", "topics", "language"],
  "properties": {
    "credo": {
      "type": "object",
      "required": ["summary", "statements"],
      "properties": {
        "summary": {"type": "string", "minLength": 1},
        "statements": {"type": "array", "minItems": 1, "items": {"type": "string"}}
      }
    },
    "ethos": {
      "type": "object",
      "required": ["virtues"],
      "properties": {
        "virtues": {"type": "array", "items": {"type": "string"}},
        "anti_patterns": {"type": "array", "items": {"type": "string"}},
        "emotional_tone": {"type": "array", "items": {"type": "string"}}
      }
    },
    "theo_logic": {
      "type": "object",
      "properties": {
        "principles": {"type": "array", "items": {"type": "string"}},
        "reasoning_style": {"type": "string"}
      }
    },
    "style": {
      "type": "object",
      "properties": {
        "voice": {"type": "string"},
        "cadence": {"type": "string"},
        "dos": {"type": "array", "items": {"type": "string"}},
        "donts": {"type": "array", "items": {"type": "string"}}
      }
    },
    "lexicon": {
      "type": "object",
      "properties": {
        "signature_phrases": {"type": "array", "items": {"type": "string"}},
        "keywords": {"type": "array", "items": {"type": "string"}},
        "taboo_words": {"type": "array", "items": {"type": "string"}}
      }
    },
    "topics": {
      "type": "object",
      "required": ["primary"],
      "properties": {
        "primary": {"type": "array", "items": {"type": "string"}},
        "secondary": {"type": "array", "items": {"type": "string"}}
      }
    },
    "alignment": {"type": "object"},
    "origin": {"type": "object"},
    "language": {"type": "string", "minLength": 2}
  }
}`)

// PersonaFlow generates a persona profile from collected sources.
type PersonaFlow struct{}

func (PersonaFlow) Kind() core.JobKind { return core.KindPersona }

func (PersonaFlow) Schema() *document.Schema { return personaSchema }

func (PersonaFlow) Collect(input []byte) ([]ingest.Candidate, error) {
	var in PersonaInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return in.Sources, nil
}

func (PersonaFlow) Prompt(b Brief) (llm.Prompt, error) {
	var in PersonaInput
	if err := decodeInput(b.Job.Input, &in); err != nil {
		return llm.Prompt{}, err
	}
	lang := in.Language
	if lang == "" {
		lang = "en"
	}
	inspiration := in.InspirationSource
	if inspiration == "" {
		inspiration = "the provided source materials"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a complete persona profile for %q.\n", b.Job.TargetName)
	fmt.Fprintf(&sb, "The persona is inspired by: %s\nPrimary language: %s\n\n", inspiration, lang)
	if ctx := personaContext(b.Active); ctx != "" {
		sb.WriteString("The persona already exists; refine its current version.\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}
	if len(b.Corpus) > 0 {
		sb.WriteString("Source texts:\n---\n")
		sb.WriteString(joinCorpus(b.Corpus, corpusBudget))
		sb.WriteString("\n---\n\n")
	}
	fmt.Fprintf(&sb, "Set \"language\" to %q. Answer with JSON matching this schema:\n%s", lang, personaSchema)

	return llm.Prompt{System: systemPrompt, User: sb.String(), Temperature: 0.7}, nil
}

func (PersonaFlow) ReviewPrompt(doc *document.Document, draftNo int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Persona draft v%d: review requested\n\n", draftNo)
	fmt.Fprintf(&sb, "**Summary:** %s\n\n", orNA(lookupString(doc, "credo.summary")))
	sb.WriteString("**Core beliefs:**\n")
	sb.WriteString(bullets(lookupStrings(doc, "credo.statements", 3)))
	fmt.Fprintf(&sb, "\n**Character:**\n- Virtues: %s\n- Tone: %s\n",
		orNA(strings.Join(lookupStrings(doc, "ethos.virtues", 3), ", ")),
		orNA(strings.Join(lookupStrings(doc, "ethos.emotional_tone", 3), ", ")))
	sb.WriteString("\n**Questions for review:**\n")
	sb.WriteString("1. Does this capture the essence of the inspiration source?\n")
	sb.WriteString("2. Should any virtues or traits be added or removed?\n")
	sb.WriteString("3. Does the communication style feel authentic?\n")
	sb.WriteString(reviewFooter(draftNo))
	return sb.String()
}

// ──────────────────────────────────────────────────────────────────────────────
// Reflection
// ──────────────────────────────────────────────────────────────────────────────

// LifeEvent is one event reported during a reflection cycle.
type LifeEvent struct {
	Type    string    `json:"type" validate:"required,max=64"`
	Content string    `json:"content" validate:"required"`
	At      time.Time `json:"at"`
}

// ReflectionInput is the input of a reflection job.
type ReflectionInput struct {
	CycleType string      `json:"cycle_type" validate:"omitempty,oneof=daily weekly monthly"`
	Events    []LifeEvent `json:"events" validate:"max=200,dive"`
}

// maxEventChars bounds one event's text in prompts and sources.
const maxEventChars = 500

var reflectionSchema = document.MustCompileSchema(`{
  "type": "object",
  "required": ["summary", "key_insights"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "key_insights": {"type": "array", "items": {"type": "string"}},
    "suggested_adjustments": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field", "change"],
        "properties": {
          "field": {"type": "string"},
          "change": {"type": "string"},
          "reason": {"type": "string"}
        }
      }
    },
    "next_actions": {"type": "array", "items": {"type": "string"}},
    "staleness_alerts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "topic": {"type": "string"},
          "issue": {"type": "string"},
          "details": {"type": "string"}
        }
      }
    }
  }
}`)

// ReflectionFlow summarizes a cycle of events for a persona.
type ReflectionFlow struct{}

func (ReflectionFlow) Kind() core.JobKind { return core.KindReflection }

func (ReflectionFlow) Schema() *document.Schema { return reflectionSchema }

// Collect turns every event into an inline text source.
func (ReflectionFlow) Collect(input []byte) ([]ingest.Candidate, error) {
	var in ReflectionInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	out := make([]ingest.Candidate, 0, len(in.Events))
	for i, e := range in.Events {
		out = append(out, ingest.Candidate{
			Channel: core.ChannelText,
			Ref:     fmt.Sprintf("event-%03d-%s", i, e.Type),
			Content: formatEvent(e),
		})
	}
	return out, nil
}

func formatEvent(e LifeEvent) string {
	date := "undated"
	if !e.At.IsZero() {
		date = e.At.UTC().Format("2006-01-02")
	}
	return fmt.Sprintf("[%s] (%s): %s", e.Type, date, hashing.Preview(e.Content, maxEventChars))
}

func (ReflectionFlow) Prompt(b Brief) (llm.Prompt, error) {
	var in ReflectionInput
	if err := decodeInput(b.Job.Input, &in); err != nil {
		return llm.Prompt{}, err
	}
	cycle := in.CycleType
	if cycle == "" {
		cycle = "weekly"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are analyzing a %s reflection period for the persona %q.\n\n", cycle, b.Job.TargetName)
	if ctx := personaContext(b.Active); ctx != "" {
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}
	sb.WriteString("Recent events:\n")
	if len(b.Corpus) == 0 {
		sb.WriteString("(no new events in this period)\n")
	}
	for _, text := range b.Corpus {
		sb.WriteString("- ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nAnswer with a reflection summary as JSON matching this schema:\n%s", reflectionSchema)

	return llm.Prompt{System: systemPrompt, User: sb.String(), Temperature: 0.4}, nil
}

func (ReflectionFlow) ReviewPrompt(doc *document.Document, draftNo int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Reflection draft v%d: review requested\n\n", draftNo)
	fmt.Fprintf(&sb, "**Summary:** %s\n\n", orNA(lookupString(doc, "summary")))
	sb.WriteString("**Key insights:**\n")
	sb.WriteString(bullets(lookupStrings(doc, "key_insights", 5)))
	sb.WriteString("\n**Next actions:**\n")
	sb.WriteString(bullets(lookupStrings(doc, "next_actions", 5)))
	sb.WriteString(reviewFooter(draftNo))
	return sb.String()
}

// ──────────────────────────────────────────────────────────────────────────────
// Content
// ──────────────────────────────────────────────────────────────────────────────

// ContentInput is the input of a content job: one publishing plan.
type ContentInput struct {
	Topic      string             `json:"topic" validate:"required,max=500"`
	Title      string             `json:"title" validate:"max=500"`
	Goal       string             `json:"goal" validate:"max=1000"`
	Audience   string             `json:"audience" validate:"max=500"`
	Channel    string             `json:"channel" validate:"max=64"`
	Language   string             `json:"language" validate:"omitempty,min=2,max=10"`
	MaxLength  int                `json:"max_length" validate:"omitempty,min=1,max=100000"`
	Variants   int                `json:"variants" validate:"omitempty,min=1,max=10"`
	References []ingest.Candidate `json:"references" validate:"dive"`
}

var contentSchema = document.MustCompileSchema(`{
  "type": "object",
  "required": ["variants"],
  "properties": {
    "variants": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["variant_no", "text"],
        "properties": {
          "variant_no": {"type": "integer", "minimum": 1},
          "text": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "cta": {"type": "string"}
        }
      }
    },
    "provenance": {
      "type": "object",
      "properties": {
        "topics_referenced": {"type": "array", "items": {"type": "string"}},
        "style_elements_used": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`)

// ContentFlow drafts publishable content variants in a persona's voice.
type ContentFlow struct{}

func (ContentFlow) Kind() core.JobKind { return core.KindContent }

func (ContentFlow) Schema() *document.Schema { return contentSchema }

func (ContentFlow) Collect(input []byte) ([]ingest.Candidate, error) {
	var in ContentInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return in.References, nil
}

func (ContentFlow) Prompt(b Brief) (llm.Prompt, error) {
	var in ContentInput
	if err := decodeInput(b.Job.Input, &in); err != nil {
		return llm.Prompt{}, err
	}
	variants := max(in.Variants, 1)
	maxLength := in.MaxLength
	if maxLength == 0 {
		maxLength = 2000
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d content variant(s) in the voice of %q.\n\n", variants, b.Job.TargetName)
	fmt.Fprintf(&sb, "Topic: %s\nTitle/theme: %s\nGoal: %s\nTarget audience: %s\nChannel: %s\nLanguage: %s\nMax length: %d characters\n\n",
		in.Topic, orNA(in.Title), defaultString(in.Goal, "Engage and inform"), defaultString(in.Audience, "General"),
		defaultString(in.Channel, "generic"), defaultString(in.Language, "en"), maxLength)
	if ctx := personaContext(b.Active); ctx != "" {
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}
	if len(b.Corpus) > 0 {
		sb.WriteString("Reference material:\n---\n")
		sb.WriteString(joinCorpus(b.Corpus, corpusBudget))
		sb.WriteString("\n---\n\n")
	}
	fmt.Fprintf(&sb, "Requirements:\n- Keep each text under %d characters\n- Match the persona's voice and style\n- Avoid verbatim quotes longer than 50 characters\n\n", maxLength)
	fmt.Fprintf(&sb, "Answer with JSON matching this schema:\n%s", contentSchema)

	return llm.Prompt{System: systemPrompt, User: sb.String(), Temperature: 0.8}, nil
}

func (ContentFlow) ReviewPrompt(doc *document.Document, draftNo int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Content draft v%d: review requested\n\n", draftNo)

	v, err := doc.Lookup("variants")
	variants, _ := v.([]any)
	if err != nil || len(variants) == 0 {
		sb.WriteString("(no variants)\n")
	}
	for i, item := range variants {
		m, _ := item.(map[string]any)
		title, _ := m["title"].(string)
		text, _ := m["text"].(string)
		fmt.Fprintf(&sb, "**Variant %d** %s\n%s\n\n", i+1, title, hashing.Preview(text, 280))
	}
	sb.WriteString(reviewFooter(draftNo))
	return sb.String()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
