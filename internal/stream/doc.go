// Package stream provides Stream, a cancellable cursor over results that
// are produced concurrently.
//
// A Stream is produced by a goroutine and consumed with Next (or ranged over
// with All). Every element is a Result carrying either a value or an error
// tagged with the source that produced it, so a failing producer does not
// end the stream for healthy ones.
//
// Cancellation:
// Cancel stops delivery immediately: Next returns false from then on, even
// if the producer still has results in flight. Producers observe the
// cancellation through their context and through yield returning false,
// which releases whatever they hold (HTTP bodies, database rows).
//
// Composition:
//   - Merge interleaves streams first-ready-first-out; order within each
//     input is preserved.
//   - Concat drains inputs one after another; later inputs keep producing
//     (into their own unbuffered handoff) while earlier ones drain.
//   - Window applies skip/limit over counted elements.
package stream
