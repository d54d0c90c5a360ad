package graffiti

// Matcher decides which states a viewer receives for a query. The schema
// is compiled once, when the matcher is built.
type Matcher struct {
	query     Query
	viewer    string
	validator SchemaValidator
}

// NewMatcher compiles q.Schema with compiler. A nil compiler accepts only
// queries without a schema.
func NewMatcher(compiler SchemaCompiler, q Query, viewer string) (*Matcher, error) {
	m := &Matcher{query: q, viewer: viewer}
	if compiler == nil {
		if len(q.Schema) > 0 {
			return nil, NewError(KindUsage, "no schema compiler configured")
		}
		return m, nil
	}
	v, err := compiler.Compile(q.Schema)
	if err != nil {
		return nil, err
	}
	m.validator = v
	return m, nil
}

// Check reports why obj does not answer the query: it shares no channel
// with it (ProtocolError), it is not newer than IfModifiedSince
// (ProtocolError) or its value fails the schema (SchemaMismatch).
func (m *Matcher) Check(obj Object) error {
	if !obj.SharesChannel(m.query.Channels) {
		return NewError(KindProtocol, "%s shares no channel with the query", obj.Location)
	}
	if !m.query.ModifiedAfterSince(obj.LastModified) {
		return NewError(KindProtocol, "%s last modified %d, not after %d",
			obj.Location, obj.LastModified, *m.query.IfModifiedSince)
	}
	if m.validator != nil {
		if err := m.validator.Validate(obj.Value); err != nil {
			return err
		}
	}
	return nil
}

// Match returns obj as the viewer sees it, or false when the viewer may
// not see it or it fails Check.
func (m *Matcher) Match(obj Object) (Object, bool) {
	if !obj.VisibleTo(m.viewer) || m.Check(obj) != nil {
		return Object{}, false
	}
	return m.Mask(obj), true
}

// Mask hides from non-owners the channels outside the query and the other
// members of the access list.
func (m *Matcher) Mask(obj Object) Object {
	return obj.Mask(m.viewer, m.query.Channels)
}
