package graffiti

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Object is one state of the object stored at a Location.
type Object struct {
	Location
	Value        json.RawMessage `json:"value"`
	Channels     []string        `json:"channels"`
	Allowed      []string        `json:"allowed"` // nil means public
	Tombstone    bool            `json:"tombstone"`
	LastModified int64           `json:"lastModified"` // unix milliseconds
}

// Clone returns a deep copy of o. Nil Allowed stays nil.
func (o Object) Clone() Object {
	c := o
	c.Value = bytes.Clone(o.Value)
	c.Channels = slices.Clone(o.Channels)
	if o.Allowed != nil {
		c.Allowed = append([]string{}, o.Allowed...)
	}
	return c
}

// Vacant is the previous state reported by a write to a location that held
// nothing: an empty public tombstone.
func Vacant(loc Location, lastModified int64) Object {
	return Object{
		Location:     loc,
		Value:        json.RawMessage("{}"),
		Channels:     []string{},
		Tombstone:    true,
		LastModified: lastModified,
	}
}

// AsTombstone returns a copy of o flagged as no longer live.
func (o Object) AsTombstone() Object {
	c := o.Clone()
	c.Tombstone = true
	return c
}

// Public reports whether the object has no access list.
func (o Object) Public() bool {
	return o.Allowed == nil
}

// VisibleTo reports whether actor may read the object.
// The owner always may; everyone else needs the object to be public
// or to be named in its access list.
func (o Object) VisibleTo(actor string) bool {
	if o.Public() || (actor != "" && actor == o.Actor) {
		return true
	}
	return actor != "" && slices.Contains(o.Allowed, actor)
}

// SharesChannel reports whether the object is tagged with any of channels.
func (o Object) SharesChannel(channels []string) bool {
	for _, c := range o.Channels {
		if slices.Contains(channels, c) {
			return true
		}
	}
	return false
}

// Mask hides what a non-owner discovering through channels is not entitled
// to see: other channels and other readers.
func (o Object) Mask(viewer string, channels []string) Object {
	if viewer != "" && viewer == o.Actor {
		return o
	}
	m := o.Clone()
	m.Channels = make([]string, 0, len(o.Channels))
	for _, c := range o.Channels {
		if slices.Contains(channels, c) {
			m.Channels = append(m.Channels, c)
		}
	}
	if m.Allowed != nil {
		m.Allowed = []string{}
		if slices.Contains(o.Allowed, viewer) {
			m.Allowed = append(m.Allowed, viewer)
		}
	}
	return m
}

// PatchOp is one JSON-patch operation (RFC 6902).
type PatchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Patch holds independent operation sequences for the patchable fields.
// A nil sequence leaves its field untouched.
type Patch struct {
	Value    []PatchOp `json:"value,omitempty"`
	Channels []PatchOp `json:"channels,omitempty"`
	Allowed  []PatchOp `json:"allowed,omitempty"`
}

// Validate rejects a patch that names no field.
func (p Patch) Validate() error {
	if p.Value == nil && p.Channels == nil && p.Allowed == nil {
		return NewError(KindUsage, "patch must contain at least one of value, channels or allowed")
	}
	return nil
}

// ChannelStat is an aggregate over the live objects tagged with a channel.
type ChannelStat struct {
	Channel      string `json:"channel"`
	Count        int    `json:"count"`
	LastModified int64  `json:"lastModified"`
}

// Schema is an opaque JSON Schema document. A nil Schema accepts anything.
type Schema json.RawMessage

// Session is an authorization context. A session without a Transport can
// only see publicly visible objects.
type Session struct {
	Actor     string
	Transport Transport
	Source    string
}
