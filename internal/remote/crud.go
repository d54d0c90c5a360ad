package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/patch"
	"github.com/graffiti-garden/implementation-federated/internal/wire"
)

// Put stores obj on the pod named by obj.Source and returns the replaced
// state, tombstoned.
func (c *Client) Put(ctx context.Context, obj graffiti.Object, schema graffiti.Schema, sess graffiti.Session) (graffiti.Object, error) {
	if err := checkWrite(obj.Location, sess); err != nil {
		return graffiti.Object{}, err
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(wire.HeaderChannels, wire.EncodeList(obj.Channels))
	if obj.Allowed != nil {
		h.Set(wire.HeaderAllowed, wire.EncodeList(obj.Allowed))
	}
	if len(schema) > 0 {
		h.Set(wire.HeaderSchema, wire.EncodeSchema(schema))
	}

	resp, body, err := do(ctx, sess.Transport, http.MethodPut, objectURL(obj.Location), h, obj.Value)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, obj.Source)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return graffiti.Object{}, graffiti.WithSource(wire.StatusError(resp.StatusCode, body), obj.Source)
	}
	previous, err := previousState(obj.Location, resp, body)
	if err != nil {
		return graffiti.Object{}, err
	}

	current := obj.Clone()
	current.Channels = graffiti.NormalizeChannels(current.Channels)
	current.Tombstone = false
	current.LastModified = previous.LastModified
	c.record(previous, &current)

	c.logger.Debug("remote put", "location", obj.Location.String(), "status", resp.StatusCode, "lastModified", current.LastModified)
	return previous, nil
}

// Get fetches the state at loc. A 410 answer is returned as a tombstone.
func (c *Client) Get(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	if !graffiti.IsNetworkAddress(loc.Source) {
		return graffiti.Object{}, graffiti.NewError(graffiti.KindUsage, "%s is not a remote location", loc)
	}

	resp, body, err := do(ctx, c.transport(sess), http.MethodGet, objectURL(loc), nil, nil)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, loc.Source)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusGone:
		obj, err := wire.ParseObject(loc, resp.Header, body)
		if err != nil {
			return graffiti.Object{}, graffiti.WithSource(err, loc.Source)
		}
		obj.Tombstone = resp.StatusCode == http.StatusGone
		return obj, nil
	default:
		return graffiti.Object{}, graffiti.WithSource(wire.StatusError(resp.StatusCode, body), loc.Source)
	}
}

// Patch applies p on the pod and returns the replaced state, tombstoned.
func (c *Client) Patch(ctx context.Context, p graffiti.Patch, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	if err := p.Validate(); err != nil {
		return graffiti.Object{}, err
	}
	if err := checkWrite(loc, sess); err != nil {
		return graffiti.Object{}, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return graffiti.Object{}, graffiti.WrapError(graffiti.KindUsage, err, "encode patch")
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	resp, body, err := do(ctx, sess.Transport, http.MethodPatch, objectURL(loc), h, data)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, loc.Source)
	}
	if resp.StatusCode != http.StatusOK {
		return graffiti.Object{}, graffiti.WithSource(wire.StatusError(resp.StatusCode, body), loc.Source)
	}
	previous, err := previousState(loc, resp, body)
	if err != nil {
		return graffiti.Object{}, err
	}

	// The pod already accepted the patch; replay it on the previous state
	// to learn what now lives at loc.
	live := previous.Clone()
	live.Tombstone = false
	current, err := patch.Apply(live, p, nil)
	if err != nil {
		c.logger.Warn("patched state could not be reproduced locally",
			"location", loc.String(), "error", err)
		c.record(previous, nil)
		return previous, nil
	}
	current.LastModified = previous.LastModified
	c.record(previous, &current)

	c.logger.Debug("remote patch", "location", loc.String(), "lastModified", current.LastModified)
	return previous, nil
}

// Delete tombstones the object at loc on the pod and returns it.
func (c *Client) Delete(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	if err := checkWrite(loc, sess); err != nil {
		return graffiti.Object{}, err
	}

	resp, body, err := do(ctx, sess.Transport, http.MethodDelete, objectURL(loc), nil, nil)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, loc.Source)
	}
	if resp.StatusCode != http.StatusOK {
		return graffiti.Object{}, graffiti.WithSource(wire.StatusError(resp.StatusCode, body), loc.Source)
	}
	previous, err := previousState(loc, resp, body)
	if err != nil {
		return graffiti.Object{}, err
	}
	c.record(previous, nil)

	c.logger.Debug("remote delete", "location", loc.String(), "lastModified", previous.LastModified)
	return previous, nil
}

func (c *Client) record(previous graffiti.Object, current *graffiti.Object) {
	if c.recorder != nil {
		c.recorder.RecordWrite(previous, current)
	}
}

// previousState decodes a write response: the replaced state, which no
// longer lives at loc.
func previousState(loc graffiti.Location, resp *http.Response, body []byte) (graffiti.Object, error) {
	obj, err := wire.ParseObject(loc, resp.Header, body)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, loc.Source)
	}
	obj.Tombstone = true
	return obj, nil
}

func checkWrite(loc graffiti.Location, sess graffiti.Session) error {
	if !graffiti.IsNetworkAddress(loc.Source) {
		return graffiti.NewError(graffiti.KindUsage, "%s is not a remote location", loc)
	}
	if sess.Transport == nil {
		return graffiti.WithSource(graffiti.NewError(graffiti.KindUnauthorized, "session has no transport"), loc.Source)
	}
	return nil
}
