package objstore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/testutil"
)

// createTestStore opens a fresh database driven by a deterministic clock
// starting at 1000.
func createTestStore(t *testing.T) (*Store, *testutil.DeterministicClock) {
	t.Helper()
	clk := testutil.NewDeterministicClock(1000)
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clk
}

func loc(actor, name string) graffiti.Location {
	return graffiti.Location{Actor: actor, Source: graffiti.LocalSource, Name: name}
}

func object(actor, name, value string, channels ...string) graffiti.Object {
	if channels == nil {
		channels = []string{}
	}
	return graffiti.Object{
		Location: loc(actor, name),
		Value:    json.RawMessage(value),
		Channels: channels,
	}
}
