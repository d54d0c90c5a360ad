package cache

import (
	"context"
	"errors"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// ErrClosed is returned by Subscription.Next after Close.
var ErrClosed = errors.New("subscription closed")

// Subscription receives every state the cache accepts after Watch.
type Subscription struct {
	cache *Cache
	queue *changeQueue
}

// Next blocks until the next accepted state is available, ctx is done or
// the subscription is closed.
func (s *Subscription) Next(ctx context.Context) (graffiti.Object, error) {
	for {
		if s.queue.Closed() {
			return graffiti.Object{}, ErrClosed
		}
		if obj, ok := s.queue.TryDequeue(); ok {
			return obj, nil
		}
		select {
		case <-ctx.Done():
			return graffiti.Object{}, ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Pending returns the number of changes not yet received.
func (s *Subscription) Pending() int {
	return s.queue.Len()
}

// Close stops delivery. Changes still queued are dropped.
func (s *Subscription) Close() {
	s.cache.unsubscribe(s)
	s.queue.Close()
}
