package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// parseValue requires body to be a JSON document.
func parseValue(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, graffiti.NewError(graffiti.KindProtocol, "missing response body")
	}
	if !json.Valid(body) {
		return nil, graffiti.NewError(graffiti.KindProtocol, "response body is not JSON")
	}
	return json.RawMessage(body), nil
}

// StatusError maps a non-success single-object response to an error. The
// body of 412 and 422 responses starts with the error kind.
func StatusError(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	switch status {
	case http.StatusNotFound:
		return bodyError(graffiti.KindNotFound, text)
	case http.StatusForbidden:
		return bodyError(graffiti.KindForbidden, text)
	case http.StatusUnauthorized:
		return bodyError(graffiti.KindUnauthorized, text)
	case http.StatusUnprocessableEntity:
		switch {
		case strings.HasPrefix(text, string(graffiti.KindPatch)):
			return bodyError(graffiti.KindPatch, text)
		case strings.HasPrefix(text, string(graffiti.KindInvalidSchema)):
			return bodyError(graffiti.KindInvalidSchema, text)
		}
	case http.StatusPreconditionFailed:
		switch {
		case strings.HasPrefix(text, string(graffiti.KindPatchTestFailed)):
			return bodyError(graffiti.KindPatchTestFailed, text)
		case strings.HasPrefix(text, string(graffiti.KindSchemaMismatch)):
			return bodyError(graffiti.KindSchemaMismatch, text)
		}
	}
	return graffiti.NewError(graffiti.KindFailure, "status %d: %s", status, text)
}

// Status is the inverse of StatusError: the status code a pod answers err
// with, and the body text.
func Status(err error) (int, string) {
	text := err.Error()
	var e *graffiti.Error
	if errors.As(err, &e) {
		text = e.Error()
	}
	switch graffiti.KindOf(err) {
	case graffiti.KindNotFound:
		return http.StatusNotFound, text
	case graffiti.KindForbidden:
		return http.StatusForbidden, text
	case graffiti.KindUnauthorized:
		return http.StatusUnauthorized, text
	case graffiti.KindPatch, graffiti.KindInvalidSchema:
		return http.StatusUnprocessableEntity, text
	case graffiti.KindPatchTestFailed, graffiti.KindSchemaMismatch:
		return http.StatusPreconditionFailed, text
	case graffiti.KindUsage:
		return http.StatusBadRequest, text
	}
	return http.StatusInternalServerError, text
}

// bodyError builds an error of kind from a response body, dropping the
// kind prefix the pod wrote.
func bodyError(kind graffiti.Kind, text string) error {
	text = strings.TrimPrefix(text, string(kind))
	text = strings.TrimSpace(strings.TrimPrefix(text, ":"))
	return graffiti.NewError(kind, "%s", text)
}
