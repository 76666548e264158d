package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"required": ["summary", "topics"],
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"topics": {"type": "array", "items": {"type": "object", "required": ["name"]}}
	}
}`

func TestSchema_Validate(t *testing.T) {
	s := MustCompileSchema(testSchema)

	assert.NoError(t, s.Validate([]byte(`{"summary":"x","topics":[{"name":"a"}]}`)))

	err := s.Validate([]byte(`{"summary":"","topics":[{}]}`))
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, err.Error(), "summary")
}

func TestSchema_ValidateDocument(t *testing.T) {
	s := MustCompileSchema(testSchema)
	d := mustParse(t, `{"summary":"x","topics":[]}`)
	assert.NoError(t, s.ValidateDocument(d))

	out, err := d.Apply([]Edit{{Path: "summary", Op: OpRemove}})
	require.NoError(t, err)
	assert.Error(t, s.ValidateDocument(out))
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema(`{"type": 12}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompileSchema(`{not json`) })
}
