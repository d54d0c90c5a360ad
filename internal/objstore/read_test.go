package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

func names(objects []graffiti.Object) []string {
	out := make([]string, 0, len(objects))
	for _, o := range objects {
		n := o.Name
		if o.Tombstone {
			n += "†"
		}
		out = append(out, n)
	}
	return out
}

func TestDiscover_MatchesAnyChannel(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	for _, o := range []graffiti.Object{
		object("alice", "n1", `{}`, "a"),
		object("alice", "n2", `{}`, "b"),
		object("bob", "n3", `{}`, "a", "b"),
		object("bob", "n4", `{}`, "c"),
	} {
		_, err := s.Put(ctx, o, nil)
		require.NoError(t, err)
	}

	got, err := s.Discover(ctx, []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2", "n3"}, names(got))
}

func TestDiscover_EmptyChannels(t *testing.T) {
	s, _ := createTestStore(t)

	got, err := s.Discover(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDiscover_LiveOnlyWithoutSince(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, object("alice", "n1", `{"v":1}`, "a"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, object("alice", "n1", `{"v":2}`, "a"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, object("alice", "n2", `{}`, "a"), nil)
	require.NoError(t, err)
	_, err = s.Delete(ctx, loc("alice", "n2"))
	require.NoError(t, err)

	got, err := s.Discover(ctx, []string{"a"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"v":2}`, string(got[0].Value))
}

func TestDiscover_SinceIncludesTombstones(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	// 1000: n1 v1, 1001: n2
	_, err := s.Put(ctx, object("alice", "n1", `{"v":1}`, "a"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, object("alice", "n2", `{}`, "a"), nil)
	require.NoError(t, err)
	since := int64(1001)

	// 1002: n1 replaced, 1003: n2 deleted
	_, err = s.Put(ctx, object("alice", "n1", `{"v":2}`, "a"), nil)
	require.NoError(t, err)
	_, err = s.Delete(ctx, loc("alice", "n2"))
	require.NoError(t, err)

	got, err := s.Discover(ctx, []string{"a"}, &since)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n1†", "n2†"}, names(got), "live state precedes its tombstone of the same instant")
	for _, o := range got {
		assert.Greater(t, o.LastModified, since)
	}
}

func TestDiscover_TombstoneKeepsOldChannels(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, object("alice", "n1", `{}`, "old"), nil)
	require.NoError(t, err)
	since := int64(1000)
	_, err = s.Put(ctx, object("alice", "n1", `{}`, "new"), nil)
	require.NoError(t, err)

	got, err := s.Discover(ctx, []string{"old"}, &since)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1†"}, names(got))
}

func TestOrphans(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, object("alice", "orphan", `{}`), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, object("alice", "channeled", `{}`, "a"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, object("bob", "other", `{}`), nil)
	require.NoError(t, err)

	got, err := s.Orphans(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, names(got))

	since := int64(1000)
	got, err = s.Orphans(ctx, "alice", &since)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChannelStats(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	// 1000, 1001, 1002
	for _, o := range []graffiti.Object{
		object("alice", "n1", `{}`, "b"),
		object("alice", "n2", `{}`, "a", "b"),
		object("bob", "n3", `{}`, "a"),
	} {
		_, err := s.Put(ctx, o, nil)
		require.NoError(t, err)
	}
	// 1003: n1 deleted, no longer counted
	_, err := s.Delete(ctx, loc("alice", "n1"))
	require.NoError(t, err)

	got, err := s.ChannelStats(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, []graffiti.ChannelStat{
		{Channel: "a", Count: 1, LastModified: 1001},
		{Channel: "b", Count: 1, LastModified: 1001},
	}, got)

	since := int64(1001)
	got, err = s.ChannelStats(ctx, "alice", &since)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
