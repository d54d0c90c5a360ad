package schema

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

const noteSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"stars": {"type": "integer", "minimum": 0}
	},
	"required": ["title"]
}`

func TestCompile_NilSchemaAcceptsAnything(t *testing.T) {
	v, err := NewCompiler().Compile(nil)
	require.NoError(t, err)

	assert.NoError(t, v.Validate(json.RawMessage(`{"anything":[1,2,3]}`)))
	assert.NoError(t, v.Validate(json.RawMessage(`"text"`)))
}

func TestValidate_MatchingDocuments(t *testing.T) {
	v, err := NewCompiler().Compile(graffiti.Schema(noteSchema))
	require.NoError(t, err)

	assert.NoError(t, v.Validate(json.RawMessage(`{"title":"hello"}`)))
	assert.NoError(t, v.Validate(json.RawMessage(`{"title":"hello","stars":3}`)))
	assert.NoError(t, v.Validate(json.RawMessage(`{"title":"hello","extra":{"nested":true}}`)))
}

func TestValidate_MismatchingDocuments(t *testing.T) {
	v, err := NewCompiler().Compile(graffiti.Schema(noteSchema))
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  string
	}{
		{"wrong type", `{"title":42}`},
		{"missing required", `{"stars":1}`},
		{"below minimum", `{"title":"x","stars":-1}`},
		{"not an object", `"title"`},
		{"not json", `{"title":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(json.RawMessage(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, graffiti.ErrSchemaMismatch), "got %v", err)
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	c := NewCompiler()

	for _, s := range []string{`{"type":`, `[1,2]`, `"string"`} {
		_, err := c.Compile(graffiti.Schema(s))
		require.Error(t, err, s)
		assert.True(t, errors.Is(err, graffiti.ErrInvalidSchema), "schema %s: got %v", s, err)
	}
}

func TestValidate_ConcurrentUse(t *testing.T) {
	c := NewCompiler()
	v, err := c.Compile(graffiti.Schema(noteSchema))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, v.Validate(json.RawMessage(`{"title":"ok"}`)))
			} else {
				assert.Error(t, v.Validate(json.RawMessage(`{"title":1}`)))
			}
		}(i)
	}
	wg.Wait()
}
