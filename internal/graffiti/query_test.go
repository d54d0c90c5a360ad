package graffiti

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts []QueryOption
		ok   bool
	}{
		{"no modifiers", nil, true},
		{"zero skip", []QueryOption{WithSkip(0)}, true},
		{"negative skip", []QueryOption{WithSkip(-1)}, false},
		{"zero limit", []QueryOption{WithLimit(0)}, false},
		{"positive limit", []QueryOption{WithLimit(1)}, true},
		{"since", []QueryOption{WithIfModifiedSince(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewQuery([]string{"c"}, nil, tt.opts...).Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUsage)
			}
		})
	}
}

func TestQuery_ModifiedAfterSince(t *testing.T) {
	assert.True(t, NewQuery(nil, nil).ModifiedAfterSince(0))

	q := NewQuery(nil, nil, WithIfModifiedSince(100))
	assert.False(t, q.ModifiedAfterSince(100))
	assert.True(t, q.ModifiedAfterSince(101))
}

func TestQuery_Unwindowed(t *testing.T) {
	q := NewQuery([]string{"c"}, nil, WithSkip(1), WithLimit(2), WithIfModifiedSince(3))
	u := q.Unwindowed()
	assert.Nil(t, u.Skip)
	assert.Nil(t, u.Limit)
	require.NotNil(t, u.IfModifiedSince)
	assert.Equal(t, int64(3), *u.IfModifiedSince)
	assert.NotNil(t, q.Skip, "original keeps its window")
}

func TestQuery_WindowCountsLiveObjectsOnly(t *testing.T) {
	ctx := context.Background()
	live := func(name string) stream.Result[Object] {
		return stream.Result[Object]{Value: Object{Location: Location{Name: name}}}
	}
	tomb := func(name string) stream.Result[Object] {
		r := live(name)
		r.Value.Tombstone = true
		return r
	}
	in := stream.FromSlice(ctx, []stream.Result[Object]{
		live("a"), tomb("t1"), live("b"), {Err: errors.New("pod down")}, live("c"), live("d"),
	})

	q := NewQuery(nil, nil, WithSkip(1), WithLimit(2))
	var got []string
	for r := range q.Window(ctx, in).All() {
		if r.Err != nil {
			got = append(got, "err")
			continue
		}
		got = append(got, r.Value.Name)
	}
	assert.Equal(t, []string{"t1", "b", "err", "c"}, got)
}

type fakeCompiler struct{ err error }

func (f fakeCompiler) Compile(s Schema) (SchemaValidator, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fakeValidator{}, nil
}

// fakeValidator rejects documents containing "bad":true.
type fakeValidator struct{}

func (fakeValidator) Validate(doc json.RawMessage) error {
	var v struct{ Bad bool }
	_ = json.Unmarshal(doc, &v)
	if v.Bad {
		return NewError(KindSchemaMismatch, "bad document")
	}
	return nil
}

func TestMatcher(t *testing.T) {
	q := NewQuery([]string{"c1"}, Schema(`{}`), WithIfModifiedSince(10))
	m, err := NewMatcher(fakeCompiler{}, q, "bob")
	require.NoError(t, err)

	o := sample()
	o.LastModified = 11
	assert.NoError(t, m.Check(o))

	got, ok := m.Match(o)
	require.True(t, ok)
	assert.Equal(t, []string{"c1"}, got.Channels)
	assert.Equal(t, []string{"bob"}, got.Allowed)

	old := o
	old.LastModified = 10
	assert.ErrorIs(t, m.Check(old), ErrProtocol)

	elsewhere := o
	elsewhere.Channels = []string{"c9"}
	assert.ErrorIs(t, m.Check(elsewhere), ErrProtocol)

	bad := o
	bad.Value = json.RawMessage(`{"bad":true}`)
	assert.ErrorIs(t, m.Check(bad), ErrSchemaMismatch)
	_, ok = m.Match(bad)
	assert.False(t, ok)

	hidden := o
	hidden.Allowed = []string{"carol"}
	_, ok = m.Match(hidden)
	assert.False(t, ok)
}

func TestNewMatcher_Errors(t *testing.T) {
	_, err := NewMatcher(fakeCompiler{err: NewError(KindInvalidSchema, "nope")}, NewQuery(nil, Schema(`x`)), "")
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, err = NewMatcher(nil, NewQuery(nil, Schema(`{}`)), "")
	assert.ErrorIs(t, err, ErrUsage)

	_, err = NewMatcher(nil, NewQuery(nil, nil), "")
	assert.NoError(t, err)
}
