package stream

import (
	"context"
	"iter"
)

// Result is one element of a Stream.
type Result[T any] struct {
	Value  T
	Err    error
	Source string
}

// Producer emits results through yield until it is done or yield returns
// false. ctx is cancelled when the stream is.
type Producer[T any] func(ctx context.Context, yield func(Result[T]) bool)

// Stream is a lazy, finite, non-restartable sequence of results.
//
// Thread-safety: Next must be called from one goroutine at a time; Cancel
// is safe from any goroutine.
type Stream[T any] struct {
	ch     chan Result[T]
	ctx    context.Context
	cancel context.CancelFunc
}

// New starts produce in its own goroutine and returns the stream of its
// results. The stream ends when produce returns or ctx is cancelled; the
// context handed to produce is cancelled in both cases.
func New[T any](ctx context.Context, produce Producer[T]) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		ch:     make(chan Result[T]),
		ctx:    ctx,
		cancel: cancel,
	}
	go func() {
		defer close(s.ch)
		defer cancel()
		produce(ctx, func(r Result[T]) bool {
			select {
			case s.ch <- r:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return s
}

// Empty returns an already exhausted stream.
func Empty[T any](ctx context.Context) *Stream[T] {
	return New(ctx, func(context.Context, func(Result[T]) bool) {})
}

// FromSlice streams results in order.
func FromSlice[T any](ctx context.Context, results []Result[T]) *Stream[T] {
	return New(ctx, func(_ context.Context, yield func(Result[T]) bool) {
		for _, r := range results {
			if !yield(r) {
				return
			}
		}
	})
}

// Errors streams err once per source, tagged with that source.
func Errors[T any](ctx context.Context, err error, sources ...string) *Stream[T] {
	results := make([]Result[T], 0, len(sources))
	for _, src := range sources {
		results = append(results, Result[T]{Err: err, Source: src})
	}
	return FromSlice(ctx, results)
}

// Next blocks until the next result is available. It returns false once
// the stream is exhausted or cancelled.
func (s *Stream[T]) Next() (Result[T], bool) {
	var zero Result[T]
	if s.ctx.Err() != nil {
		return zero, false
	}
	select {
	case r, ok := <-s.ch:
		if !ok {
			s.cancel()
			return zero, false
		}
		// A result may have been handed over just as Cancel ran.
		if s.ctx.Err() != nil {
			return zero, false
		}
		return r, true
	case <-s.ctx.Done():
		return zero, false
	}
}

// Cancel ends the stream and releases the producer.
func (s *Stream[T]) Cancel() {
	s.cancel()
}

// Done is closed when the stream has been cancelled or exhausted through
// Next.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.ctx.Done()
}

// All ranges over the remaining results. Breaking out of the loop cancels
// the stream.
func (s *Stream[T]) All() iter.Seq[Result[T]] {
	return func(yield func(Result[T]) bool) {
		defer s.Cancel()
		for {
			r, ok := s.Next()
			if !ok || !yield(r) {
				return
			}
		}
	}
}

// Collect drains s into a slice.
func Collect[T any](s *Stream[T]) []Result[T] {
	results := []Result[T]{}
	for r := range s.All() {
		results = append(results, r)
	}
	return results
}
