// Package patch applies graffiti.Patch values to objects.
//
// Each patchable field (value, channels, allowed) is patched independently
// with its own RFC 6902 operation sequence. Application is all-or-nothing:
// the input object is never modified, and any failing operation fails the
// whole call. A failing test operation is PatchTestFailed; every other
// failure is PatchError.
//
// Operations are applied one at a time inside an envelope document
// {"v": <field>}, so that whole-field operations (path "") and fields that
// are currently null (a public access list) behave like any other path.
package patch

import (
	"encoding/json"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

var validOps = map[string]bool{
	"add":     true,
	"remove":  true,
	"replace": true,
	"move":    true,
	"copy":    true,
	"test":    true,
}

// Apply returns obj with p applied. When v is non-nil the patched value
// must satisfy it. LastModified and Tombstone are left for the store to
// set.
func Apply(obj graffiti.Object, p graffiti.Patch, v graffiti.SchemaValidator) (graffiti.Object, error) {
	if err := p.Validate(); err != nil {
		return graffiti.Object{}, err
	}
	out := obj.Clone()

	if p.Value != nil {
		value, err := applyField(obj.Value, p.Value, "value")
		if err != nil {
			return graffiti.Object{}, err
		}
		if string(value) == "null" {
			return graffiti.Object{}, graffiti.NewError(graffiti.KindPatch, "value: patched value must not be null")
		}
		out.Value = value
	}

	if p.Channels != nil {
		raw, err := json.Marshal(obj.Channels)
		if err != nil {
			return graffiti.Object{}, graffiti.WrapError(graffiti.KindPatch, err, "channels")
		}
		patched, err := applyField(raw, p.Channels, "channels")
		if err != nil {
			return graffiti.Object{}, err
		}
		var channels []string
		if err := json.Unmarshal(patched, &channels); err != nil || channels == nil {
			return graffiti.Object{}, graffiti.NewError(graffiti.KindPatch, "channels: result must be an array of strings")
		}
		out.Channels = graffiti.NormalizeChannels(channels)
	}

	if p.Allowed != nil {
		raw, err := json.Marshal(obj.Allowed)
		if err != nil {
			return graffiti.Object{}, graffiti.WrapError(graffiti.KindPatch, err, "allowed")
		}
		patched, err := applyField(raw, p.Allowed, "allowed")
		if err != nil {
			return graffiti.Object{}, err
		}
		var allowed []string
		if err := json.Unmarshal(patched, &allowed); err != nil {
			return graffiti.Object{}, graffiti.NewError(graffiti.KindPatch, "allowed: result must be null or an array of strings")
		}
		out.Allowed = allowed
	}

	if v != nil {
		if err := v.Validate(out.Value); err != nil {
			return graffiti.Object{}, err
		}
	}
	return out, nil
}

// applyField runs ops against doc and returns the patched document.
func applyField(doc json.RawMessage, ops []graffiti.PatchOp, field string) (json.RawMessage, error) {
	if len(doc) == 0 {
		doc = json.RawMessage("null")
	}
	envelope, err := json.Marshal(map[string]json.RawMessage{"v": doc})
	if err != nil {
		return nil, graffiti.WrapError(graffiti.KindPatch, err, "%s", field)
	}

	for i, op := range ops {
		if !validOps[op.Op] {
			return nil, graffiti.NewError(graffiti.KindPatch, "%s[%d]: unknown operation %q", field, i, op.Op)
		}
		if op.Path != "" && fieldIsNull(envelope) {
			return nil, graffiti.NewError(graffiti.KindPatch, "%s[%d]: path %q addresses into null", field, i, op.Path)
		}
		if op.Path, err = envelopePath(op.Path); err != nil {
			return nil, graffiti.WrapError(graffiti.KindPatch, err, "%s[%d]", field, i)
		}
		if op.Op == "move" || op.Op == "copy" {
			if op.From, err = envelopePath(op.From); err != nil {
				return nil, graffiti.WrapError(graffiti.KindPatch, err, "%s[%d] from", field, i)
			}
		}

		single, err := json.Marshal([]graffiti.PatchOp{op})
		if err != nil {
			return nil, graffiti.WrapError(graffiti.KindPatch, err, "%s[%d]", field, i)
		}
		decoded, err := jsonpatch.DecodePatch(single)
		if err != nil {
			return nil, graffiti.WrapError(graffiti.KindPatch, err, "%s[%d]", field, i)
		}
		envelope, err = decoded.Apply(envelope)
		if err != nil {
			if op.Op == "test" {
				return nil, graffiti.WrapError(graffiti.KindPatchTestFailed, err, "%s[%d]", field, i)
			}
			return nil, graffiti.WrapError(graffiti.KindPatch, err, "%s[%d] %s %s", field, i, op.Op, op.Path)
		}
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(envelope, &out); err != nil {
		return nil, graffiti.WrapError(graffiti.KindPatch, err, "%s", field)
	}
	v, ok := out["v"]
	if !ok {
		return nil, graffiti.NewError(graffiti.KindPatch, "%s: operations removed the whole field", field)
	}
	return v, nil
}

func fieldIsNull(envelope []byte) bool {
	var out map[string]json.RawMessage
	if err := json.Unmarshal(envelope, &out); err != nil {
		return false
	}
	v, ok := out["v"]
	return !ok || string(v) == "null"
}

// envelopePath re-roots a JSON pointer under the envelope's "v" member.
func envelopePath(p string) (string, error) {
	if p != "" && !strings.HasPrefix(p, "/") {
		return "", graffiti.NewError(graffiti.KindPatch, "invalid JSON pointer %q", p)
	}
	return "/v" + p, nil
}
