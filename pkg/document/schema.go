package document

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is a single violation at a field path.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("schema validation failed:")
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, " %d. %s: %s;", i+1, err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// Schema is a compiled JSON Schema for one job kind's documents.
type Schema struct {
	schema *gojsonschema.Schema
	raw    string
}

// CompileSchema compiles a JSON Schema given as a string.
func CompileSchema(raw string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("document: compile schema: %w", err)
	}
	return &Schema{schema: s, raw: raw}, nil
}

// MustCompileSchema is like CompileSchema but panics on error.
// It is meant for schemas embedded in the binary.
func MustCompileSchema(raw string) *Schema {
	s, err := CompileSchema(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the schema source, suitable for inclusion in a prompt.
func (s *Schema) String() string {
	return s.raw
}

// Validate checks data against the schema and returns a *ValidationError
// describing every violation.
func (s *Schema) Validate(data []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("document: validate: %w", err)
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}

// ValidateDocument marshals d and validates it.
func (s *Schema) ValidateDocument(d *Document) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return fmt.Errorf("document: encode: %w", err)
	}
	return s.Validate(data)
}
