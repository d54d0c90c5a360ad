package stream

import (
	"context"
	"sync"
)

// Merge interleaves inputs in arrival order. Order within one input is
// preserved; no order is guaranteed across inputs. Cancelling the merged
// stream cancels every input.
func Merge[T any](ctx context.Context, inputs ...*Stream[T]) *Stream[T] {
	return New(ctx, func(ctx context.Context, yield func(Result[T]) bool) {
		context.AfterFunc(ctx, func() { cancelAll(inputs) })

		out := make(chan Result[T])
		var wg sync.WaitGroup
		wg.Add(len(inputs))
		for _, in := range inputs {
			go func(in *Stream[T]) {
				defer wg.Done()
				for {
					r, ok := in.Next()
					if !ok {
						return
					}
					select {
					case out <- r:
					case <-ctx.Done():
						return
					}
				}
			}(in)
		}
		go func() {
			wg.Wait()
			close(out)
		}()

		for {
			select {
			case r, ok := <-out:
				if !ok || !yield(r) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

// Concat yields every result of the first input, then of the second, and
// so on. Inputs are already running when Concat is called, so later inputs
// make progress while earlier ones drain.
func Concat[T any](ctx context.Context, inputs ...*Stream[T]) *Stream[T] {
	return New(ctx, func(ctx context.Context, yield func(Result[T]) bool) {
		context.AfterFunc(ctx, func() { cancelAll(inputs) })
		for _, in := range inputs {
			for {
				r, ok := in.Next()
				if !ok {
					break
				}
				if !yield(r) {
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	})
}

// Window drops the first skip counted results and ends the stream after
// limit counted results have been yielded. Results for which counted
// returns false (errors, tombstones) pass through untouched. A negative
// limit means unlimited.
func Window[T any](ctx context.Context, in *Stream[T], skip, limit int, counted func(Result[T]) bool) *Stream[T] {
	return New(ctx, func(ctx context.Context, yield func(Result[T]) bool) {
		context.AfterFunc(ctx, in.Cancel)
		if limit == 0 {
			return
		}
		skipped, yielded := 0, 0
		for {
			r, ok := in.Next()
			if !ok {
				return
			}
			if counted(r) {
				if skipped < skip {
					skipped++
					continue
				}
				yielded++
			}
			if !yield(r) {
				return
			}
			if limit > 0 && yielded >= limit {
				return
			}
		}
	})
}

// Filter yields the results keep returns true for, as rewritten by keep.
func Filter[T any](ctx context.Context, in *Stream[T], keep func(Result[T]) (Result[T], bool)) *Stream[T] {
	return New(ctx, func(ctx context.Context, yield func(Result[T]) bool) {
		context.AfterFunc(ctx, in.Cancel)
		for {
			r, ok := in.Next()
			if !ok {
				return
			}
			r, ok = keep(r)
			if !ok {
				continue
			}
			if !yield(r) {
				return
			}
		}
	})
}

func cancelAll[T any](inputs []*Stream[T]) {
	for _, in := range inputs {
		in.Cancel()
	}
}
