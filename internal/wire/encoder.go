package wire

import (
	"encoding/json"
	"io"
	"net/http"
)

// Encoder writes one JSON record per line. When the destination is an
// http.Flusher each record is flushed as soon as it is written.
type Encoder struct {
	enc     *json.Encoder
	flusher http.Flusher
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	f, _ := w.(http.Flusher)
	return &Encoder{enc: enc, flusher: f}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// EncodeError writes an error record.
func (e *Encoder) EncodeError(err error) error {
	return e.Encode(ErrorRecord{Error: err.Error()})
}
