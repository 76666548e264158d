package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/llm"
)

// Brief is everything a flow needs to build its generation prompt.
type Brief struct {
	Job    *core.Job
	Corpus []string           // normalized texts of the job's ok sources
	Active *document.Document // target entity's active version, nil if none
}

// Flow is the per-kind part of a job: what to collect, how to prompt, what a
// valid document looks like and how to ask a human to review it. Every kind
// shares the same transition table.
type Flow interface {
	Kind() core.JobKind
	// Collect decodes the job input and lists the sources to ingest.
	// Malformed input returns core.ErrInvalidRequest.
	Collect(input []byte) ([]ingest.Candidate, error)
	Prompt(b Brief) (llm.Prompt, error)
	Schema() *document.Schema
	ReviewPrompt(doc *document.Document, draftNo int) string
}

// Registry maps job kinds to flows.
type Registry struct {
	flows map[core.JobKind]Flow
}

// NewRegistry creates a registry holding flows.
func NewRegistry(flows ...Flow) *Registry {
	r := &Registry{flows: make(map[core.JobKind]Flow)}
	for _, f := range flows {
		r.Register(f)
	}
	return r
}

// DefaultRegistry holds the persona, reflection and content flows.
func DefaultRegistry() *Registry {
	return NewRegistry(PersonaFlow{}, ReflectionFlow{}, ContentFlow{})
}

// Register adds or replaces the flow for f.Kind().
func (r *Registry) Register(f Flow) {
	r.flows[f.Kind()] = f
}

// Get returns the flow for kind.
func (r *Registry) Get(kind core.JobKind) (Flow, error) {
	f, ok := r.flows[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown job kind %q", core.ErrInvalidRequest, kind)
	}
	return f, nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []core.JobKind {
	kinds := make([]core.JobKind, 0, len(r.flows))
	for k := range r.flows {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// corpusBudget caps the source text placed in one prompt.
const corpusBudget = 12000

// joinCorpus concatenates texts up to max bytes, cutting at a rune boundary.
func joinCorpus(texts []string, max int) string {
	var sb strings.Builder
	for i, t := range texts {
		if sb.Len() >= max {
			break
		}
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		room := max - sb.Len()
		if room <= 0 {
			break
		}
		if len(t) > room {
			t = strings.ToValidUTF8(t[:room], "")
		}
		sb.WriteString(t)
	}
	return sb.String()
}

// lookupString returns the string at path, or "".
func lookupString(doc *document.Document, path string) string {
	if doc == nil {
		return ""
	}
	v, err := doc.Lookup(path)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// lookupStrings returns up to n strings from the array at path.
func lookupStrings(doc *document.Document, path string, n int) []string {
	if doc == nil {
		return nil
	}
	v, err := doc.Lookup(path)
	if err != nil {
		return nil
	}
	items, _ := v.([]any)
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
			if len(out) == n {
				break
			}
		}
	}
	return out
}

// personaContext summarizes an active persona version for prompts.
func personaContext(active *document.Document) string {
	if active == nil {
		return ""
	}
	return fmt.Sprintf("Persona core summary:\n- Credo: %s\n- Virtues: %s\n- Primary topics: %s\n- Voice: %s\n",
		orNA(lookupString(active, "credo.summary")),
		orNA(strings.Join(lookupStrings(active, "ethos.virtues", 5), ", ")),
		orNA(strings.Join(lookupStrings(active, "topics.primary", 5), ", ")),
		orNA(lookupString(active, "style.voice")),
	)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none)\n"
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return sb.String()
}

func reviewFooter(draftNo int) string {
	return fmt.Sprintf("\nReply with \"confirm: true\" to finalize draft %d, or send edits against draft %d.", draftNo, draftNo)
}

const systemPrompt = "You write structured drafts for human review. Answer with a single JSON object that satisfies the given JSON Schema. Return only the JSON object, no prose and no code fences."
