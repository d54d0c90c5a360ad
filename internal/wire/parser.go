package wire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// DecodeFunc decodes one line. Errors become in-band results.
type DecodeFunc[T any] func(line []byte) (T, error)

// Parser turns a byte stream into decoded records, one per line.
// It is not safe for concurrent use.
type Parser[T any] struct {
	r       *bufio.Reader
	source  string
	decode  DecodeFunc[T]
	readErr error
	done    bool
}

// NewParser creates a parser over r. source tags every result.
func NewParser[T any](r io.Reader, source string, decode DecodeFunc[T]) *Parser[T] {
	return &Parser[T]{
		r:      bufio.NewReader(r),
		source: source,
		decode: decode,
	}
}

// Next returns the next decoded line. A trailing line without a terminator
// is still decoded. Blank lines are skipped. After the underlying reader
// reports EOF (or fails, which is reported once) Next returns false.
func (p *Parser[T]) Next() (stream.Result[T], bool) {
	for {
		if p.done {
			return stream.Result[T]{}, false
		}
		if p.readErr != nil {
			p.done = true
			err := graffiti.WrapError(graffiti.KindConnectivity, p.readErr, "read stream")
			return stream.Result[T]{Err: graffiti.WithSource(err, p.source), Source: p.source}, true
		}

		line, err := p.r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.done = true
			} else {
				p.readErr = err
			}
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		v, derr := p.decode(line)
		if derr != nil {
			return stream.Result[T]{Err: graffiti.WithSource(derr, p.source), Source: p.source}, true
		}
		return stream.Result[T]{Value: v, Source: p.source}, true
	}
}

// Stream parses body on a producer goroutine. body is closed when the
// stream ends or is cancelled, which aborts a pending read.
func Stream[T any](ctx context.Context, body io.ReadCloser, source string, decode DecodeFunc[T]) *stream.Stream[T] {
	return stream.New(ctx, func(ctx context.Context, yield func(stream.Result[T]) bool) {
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()
		defer body.Close()

		p := NewParser(body, source, decode)
		for {
			r, ok := p.Next()
			if !ok || ctx.Err() != nil {
				return
			}
			if !yield(r) {
				return
			}
		}
	})
}
