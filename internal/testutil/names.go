package testutil

import (
	"fmt"
	"sync"
)

// SequentialNames generates object names prefix-1, prefix-2, ...
//
// Stands in for the router's UUIDv7 generator wherever a test needs to
// predict generated locations.
//
// Thread-safety: safe for concurrent use.
type SequentialNames struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialNames creates a generator. If prefix is empty, "object" is
// used.
func NewSequentialNames(prefix string) *SequentialNames {
	if prefix == "" {
		prefix = "object"
	}
	return &SequentialNames{prefix: prefix}
}

// NewName returns the next name in the sequence.
func (g *SequentialNames) NewName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
