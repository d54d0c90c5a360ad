package graffiti

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocation_RoundTrip(t *testing.T) {
	tests := []Location{
		{Source: LocalSource, Actor: "alice", Name: "note-1"},
		{Source: "https://pod.example", Actor: "https://id.example/alice", Name: "a/b c?d"},
		{Source: "http://localhost:8080/base", Actor: "bob%", Name: "ünïcode"},
	}
	for _, loc := range tests {
		t.Run(loc.String(), func(t *testing.T) {
			got, err := ParseLocation(loc.String())
			require.NoError(t, err)
			assert.Equal(t, loc, got)
		})
	}
}

func TestLocation_String(t *testing.T) {
	loc := Location{Source: "https://pod.example", Actor: "https://id.example/alice", Name: "n 1"}
	assert.Equal(t, "https://pod.example/https:%2F%2Fid.example%2Falice/n%201", loc.String())
}

func TestParseLocation_Errors(t *testing.T) {
	for _, uri := range []string{"", "nothing", "local/alice", "/alice/n", "local//n", "local/alice/", "local/%zz/n"} {
		t.Run(uri, func(t *testing.T) {
			_, err := ParseLocation(uri)
			assert.ErrorIs(t, err, ErrUsage)
		})
	}
}

func TestIsNetworkAddress(t *testing.T) {
	assert.True(t, IsNetworkAddress("https://pod.example"))
	assert.True(t, IsNetworkAddress("http://localhost:8080/x"))
	assert.False(t, IsNetworkAddress("local"))
	assert.False(t, IsNetworkAddress("alice"))
	assert.False(t, IsNetworkAddress("https://"))
	assert.False(t, IsNetworkAddress("ftp://pod.example"))
}

func TestLocation_IsLocal(t *testing.T) {
	assert.True(t, Location{Source: LocalSource}.IsLocal())
	assert.True(t, Location{Source: "device-cache"}.IsLocal())
	assert.False(t, Location{Source: "https://pod.example"}.IsLocal())
}

func TestNormalizeChannels(t *testing.T) {
	assert.Equal(t, []string{"caf\u00e9", "b"}, NormalizeChannels([]string{"cafe\u0301", "b", "caf\u00e9"}))

	got := NormalizeChannels(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
