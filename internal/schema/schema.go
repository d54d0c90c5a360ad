// Package schema implements graffiti.SchemaCompiler on top of CUE.
//
// Schemas arrive as JSON Schema documents. Compile extracts each one into a
// CUE value once (cuelang.org/go/encoding/jsonschema); Validate unifies a
// candidate JSON document with that value and requires the result to be
// concrete. A schema that cannot be parsed or extracted is InvalidSchema; a
// document that fails unification is SchemaMismatch.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so all
// validators produced by one Compiler share its lock.
package schema

import (
	"encoding/json"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/jsonschema"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// Compiler compiles JSON Schemas into CUE validators.
type Compiler struct {
	mu  sync.Mutex
	ctx *cue.Context
}

// NewCompiler creates a Compiler with its own CUE context.
func NewCompiler() *Compiler {
	return &Compiler{ctx: cuecontext.New()}
}

var _ graffiti.SchemaCompiler = (*Compiler)(nil)

// Compile extracts s into a reusable validator. A nil or empty schema
// accepts every document.
func (c *Compiler) Compile(s graffiti.Schema) (graffiti.SchemaValidator, error) {
	if len(s) == 0 {
		return acceptAll{}, nil
	}
	if !json.Valid(s) {
		return nil, graffiti.NewError(graffiti.KindInvalidSchema, "schema is not valid JSON")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw := c.ctx.CompileBytes(s)
	if err := raw.Err(); err != nil {
		return nil, graffiti.NewError(graffiti.KindInvalidSchema, "%s", formatCUEError(err))
	}
	if k := raw.IncompleteKind(); k != cue.StructKind && k != cue.BoolKind {
		return nil, graffiti.NewError(graffiti.KindInvalidSchema, "schema must be an object or a boolean, got %s", k)
	}

	f, err := jsonschema.Extract(raw, &jsonschema.Config{})
	if err != nil {
		return nil, graffiti.NewError(graffiti.KindInvalidSchema, "%s", formatCUEError(err))
	}
	v := c.ctx.BuildFile(f)
	if err := v.Err(); err != nil {
		return nil, graffiti.NewError(graffiti.KindInvalidSchema, "%s", formatCUEError(err))
	}
	return &validator{c: c, schema: v}, nil
}

type validator struct {
	c      *Compiler
	schema cue.Value
}

// Validate checks doc against the compiled schema.
func (v *validator) Validate(doc json.RawMessage) error {
	if !json.Valid(doc) {
		return graffiti.NewError(graffiti.KindSchemaMismatch, "document is not valid JSON")
	}

	v.c.mu.Lock()
	defer v.c.mu.Unlock()

	d := v.c.ctx.CompileBytes(doc)
	if err := d.Err(); err != nil {
		return graffiti.NewError(graffiti.KindSchemaMismatch, "%s", formatCUEError(err))
	}
	if err := v.schema.Unify(d).Validate(cue.Concrete(true)); err != nil {
		return graffiti.NewError(graffiti.KindSchemaMismatch, "%s", formatCUEError(err))
	}
	return nil
}

type acceptAll struct{}

func (acceptAll) Validate(json.RawMessage) error { return nil }

// formatCUEError flattens a CUE error list into one line per error.
func formatCUEError(err error) string {
	return cueerrors.Details(err, nil)
}
