package pod

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/patch"
	"github.com/graffiti-garden/implementation-federated/internal/wire"
)

func (s *Server) putObject(w http.ResponseWriter, r *http.Request) {
	loc, err := s.writable(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	value, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !json.Valid(value) || string(value) == "null" {
		s.fail(w, r, graffiti.NewError(graffiti.KindUsage, "value must be a JSON document"))
		return
	}
	channels, err := wire.DecodeList(r.Header.Get(wire.HeaderChannels))
	if err != nil {
		s.fail(w, r, graffiti.WrapError(graffiti.KindUsage, err, "invalid %s header", wire.HeaderChannels))
		return
	}
	var allowed []string
	if _, ok := r.Header[wire.HeaderAllowed]; ok {
		allowed, err = wire.DecodeList(r.Header.Get(wire.HeaderAllowed))
		if err != nil {
			s.fail(w, r, graffiti.WrapError(graffiti.KindUsage, err, "invalid %s header", wire.HeaderAllowed))
			return
		}
	}
	schema, err := wire.DecodeSchema(r.Header.Get(wire.HeaderSchema))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	v, err := s.compiler.Compile(schema)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := v.Validate(value); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.db.Put(r.Context(), graffiti.Object{
		Location: loc,
		Value:    value,
		Channels: channels,
		Allowed:  allowed,
	}, schema)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeObject(w, status, res.Previous)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request) {
	loc, err := location(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	viewer, err := s.verifier.Actor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	obj, err := s.db.Get(r.Context(), loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !obj.VisibleTo(viewer) {
		s.fail(w, r, graffiti.NewError(graffiti.KindNotFound, "no object at %s/%s", loc.Actor, loc.Name))
		return
	}

	status := http.StatusOK
	if obj.Tombstone {
		status = http.StatusGone
	}
	writeObject(w, status, obj.Mask(viewer, nil))
}

func (s *Server) patchObject(w http.ResponseWriter, r *http.Request) {
	loc, err := s.writable(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var p graffiti.Patch
	if err := json.Unmarshal(body, &p); err != nil {
		s.fail(w, r, graffiti.WrapError(graffiti.KindUsage, err, "decode patch"))
		return
	}
	if err := p.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.db.Update(r.Context(), loc, func(cur graffiti.Object, schema graffiti.Schema) (graffiti.Object, error) {
		v, err := s.compiler.Compile(schema)
		if err != nil {
			return graffiti.Object{}, err
		}
		return patch.Apply(cur, p, v)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, res.Previous)
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request) {
	loc, err := s.writable(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.db.Delete(r.Context(), loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, res.Previous)
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	viewer, err := s.verifier.Actor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	params := r.URL.Query()
	channels, err := wire.DecodeList(params.Get("channels"))
	if err != nil {
		s.fail(w, r, graffiti.WrapError(graffiti.KindUsage, err, "invalid channels"))
		return
	}
	since, err := parseSince(params)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	q := graffiti.Query{
		Channels:        graffiti.NormalizeChannels(channels),
		IfModifiedSince: since,
	}
	if raw := params.Get("schema"); raw != "" {
		q.Schema = graffiti.Schema(raw)
	}
	m, err := graffiti.NewMatcher(s.compiler, q, viewer)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	objects, err := s.db.Discover(r.Context(), q.Channels, since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records := make([]graffiti.Object, 0, len(objects))
	for _, obj := range objects {
		if masked, ok := m.Match(obj); ok {
			records = append(records, unsourced(masked))
		}
	}
	writeRecords(s, w, r, records)
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	actor, since, err := s.listing(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.db.ChannelStats(r.Context(), actor, since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeRecords(s, w, r, stats)
}

func (s *Server) listOrphans(w http.ResponseWriter, r *http.Request) {
	actor, since, err := s.listing(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	objects, err := s.db.Orphans(r.Context(), actor, since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records := make([]graffiti.Object, len(objects))
	for i, obj := range objects {
		records[i] = unsourced(obj)
	}
	writeRecords(s, w, r, records)
}

// location reads the object location from the path.
func location(r *http.Request) (graffiti.Location, error) {
	vars := mux.Vars(r)
	actor, err := url.PathUnescape(vars["actor"])
	if err != nil {
		return graffiti.Location{}, graffiti.WrapError(graffiti.KindUsage, err, "invalid actor")
	}
	name, err := url.PathUnescape(vars["name"])
	if err != nil {
		return graffiti.Location{}, graffiti.WrapError(graffiti.KindUsage, err, "invalid name")
	}
	return graffiti.Location{Actor: actor, Source: storageSource, Name: name}, nil
}

// writable returns the location of a write request made by its owner.
func (s *Server) writable(r *http.Request) (graffiti.Location, error) {
	loc, err := location(r)
	if err != nil {
		return graffiti.Location{}, err
	}
	actor, err := s.verifier.Actor(r)
	if err != nil {
		return graffiti.Location{}, err
	}
	if actor == "" {
		return graffiti.Location{}, graffiti.NewError(graffiti.KindUnauthorized, "writes require a token")
	}
	if actor != loc.Actor {
		return graffiti.Location{}, graffiti.NewError(graffiti.KindForbidden, "%s may not write objects of %s", actor, loc.Actor)
	}
	return loc, nil
}

// listing authenticates a channel or orphan listing.
func (s *Server) listing(r *http.Request) (string, *int64, error) {
	actor, err := s.verifier.Actor(r)
	if err != nil {
		return "", nil, err
	}
	if actor == "" {
		return "", nil, graffiti.NewError(graffiti.KindUnauthorized, "listing requires a token")
	}
	since, err := parseSince(r.URL.Query())
	if err != nil {
		return "", nil, err
	}
	return actor, since, nil
}

func parseSince(params url.Values) (*int64, error) {
	raw := params.Get("ifModifiedSince")
	if raw == "" {
		return nil, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, graffiti.WrapError(graffiti.KindUsage, err, "invalid ifModifiedSince %q", raw)
	}
	return &since, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, graffiti.WrapError(graffiti.KindUsage, err, "read body")
	}
	return body, nil
}

// unsourced drops the storage tag; clients fill in the pod they asked.
func unsourced(obj graffiti.Object) graffiti.Object {
	obj.Source = ""
	return obj
}

func writeObject(w http.ResponseWriter, status int, obj graffiti.Object) {
	wire.SetObjectHeaders(w.Header(), obj)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(obj.Value)
}

// writeRecords streams records as NDJSON, or 204 when there are none.
func writeRecords[T any](s *Server, w http.ResponseWriter, r *http.Request, records []T) {
	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := wire.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			s.logger.Warn("stream interrupted", "url", r.URL, "error", err)
			return
		}
	}
}

// fail answers with err's status. Unexpected failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, text := wire.Status(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "url", r.URL, "error", err)
	}
	http.Error(w, text, status)
}
