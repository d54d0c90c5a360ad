package wire

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// Headers carrying object metadata on single-object responses.
const (
	HeaderLastModified   = "Last-Modified"
	HeaderLastModifiedMs = "Last-Modified-Ms"
	HeaderChannels       = "Channels"
	HeaderAllowed        = "Allowed"
	HeaderSchema         = "Schema"
)

// EncodeList joins items with commas, path-escaping each so that commas
// inside an item survive.
func EncodeList(items []string) string {
	escaped := make([]string, len(items))
	for i, it := range items {
		escaped[i] = url.PathEscape(it)
	}
	return strings.Join(escaped, ",")
}

// DecodeList is the inverse of EncodeList. The empty string is the empty
// list.
func DecodeList(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		it, err := url.PathUnescape(part)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// SetLastModified writes ms as an HTTP date plus the millisecond remainder.
func SetLastModified(h http.Header, ms int64) {
	t := time.UnixMilli(ms).UTC()
	h.Set(HeaderLastModified, t.Format(http.TimeFormat))
	h.Set(HeaderLastModifiedMs, strconv.FormatInt(ms%1000, 10))
}

// ParseLastModified reads the timestamp written by SetLastModified. Both
// headers are required.
func ParseLastModified(h http.Header) (int64, error) {
	date := h.Get(HeaderLastModified)
	if date == "" {
		return 0, graffiti.NewError(graffiti.KindProtocol, "missing %s header", HeaderLastModified)
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return 0, graffiti.WrapError(graffiti.KindProtocol, err, "invalid %s header %q", HeaderLastModified, date)
	}

	msText := h.Get(HeaderLastModifiedMs)
	if msText == "" {
		return 0, graffiti.NewError(graffiti.KindProtocol, "missing %s header", HeaderLastModifiedMs)
	}
	ms, err := strconv.ParseInt(msText, 10, 64)
	if err != nil || ms < 0 || ms > 999 {
		return 0, graffiti.NewError(graffiti.KindProtocol, "invalid %s header %q", HeaderLastModifiedMs, msText)
	}
	return t.Unix()*1000 + ms, nil
}

// SetObjectHeaders describes obj's metadata. The value travels as the body.
func SetObjectHeaders(h http.Header, obj graffiti.Object) {
	SetLastModified(h, obj.LastModified)
	h.Set(HeaderChannels, EncodeList(obj.Channels))
	if obj.Allowed != nil {
		h.Set(HeaderAllowed, EncodeList(obj.Allowed))
	}
}

// ParseObject rebuilds the object at loc from a single-object response.
// An absent Allowed header means public.
func ParseObject(loc graffiti.Location, h http.Header, body []byte) (graffiti.Object, error) {
	lm, err := ParseLastModified(h)
	if err != nil {
		return graffiti.Object{}, err
	}
	value, err := parseValue(body)
	if err != nil {
		return graffiti.Object{}, err
	}

	channels, err := DecodeList(h.Get(HeaderChannels))
	if err != nil {
		return graffiti.Object{}, graffiti.WrapError(graffiti.KindProtocol, err, "invalid %s header", HeaderChannels)
	}
	var allowed []string
	if vals, ok := h[HeaderAllowed]; ok {
		first := ""
		if len(vals) > 0 {
			first = vals[0]
		}
		allowed, err = DecodeList(first)
		if err != nil {
			return graffiti.Object{}, graffiti.WrapError(graffiti.KindProtocol, err, "invalid %s header", HeaderAllowed)
		}
	}

	return graffiti.Object{
		Location:     loc,
		Value:        value,
		Channels:     graffiti.NormalizeChannels(channels),
		Allowed:      allowed,
		LastModified: lm,
	}, nil
}

// EncodeSchema renders a schema for the Schema request header.
func EncodeSchema(s graffiti.Schema) string {
	return url.PathEscape(string(s))
}

// DecodeSchema is the inverse of EncodeSchema.
func DecodeSchema(s string) (graffiti.Schema, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := url.PathUnescape(s)
	if err != nil {
		return nil, graffiti.WrapError(graffiti.KindUsage, err, "invalid %s header", HeaderSchema)
	}
	return graffiti.Schema(raw), nil
}
