package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graffiti-garden/implementation-federated/internal/engine"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

func sampleObject() graffiti.Object {
	return graffiti.Object{
		Location:     graffiti.Location{Actor: "alice", Source: "local", Name: "n1"},
		Value:        json.RawMessage(`{ "text": "hi" }`),
		Channels:     []string{"a", "b"},
		LastModified: 1704067200000,
	}
}

func TestOutputFormatter_TextObject(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Object(sampleObject()))
	assert.Equal(t, "local/alice/n1 1704067200000 live channels=[a,b] allowed=public {\"text\":\"hi\"}\n", buf.String())

	buf.Reset()
	obj := sampleObject()
	obj.Allowed = []string{"bob", "carol"}
	obj.Tombstone = true
	require.NoError(t, formatter.Object(obj))
	assert.Contains(t, buf.String(), " tombstone ")
	assert.Contains(t, buf.String(), "allowed=[bob,carol]")
}

func TestOutputFormatter_JSONObject(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Object(sampleObject()))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", data["actor"])
	assert.Equal(t, "n1", data["name"])
	assert.Nil(t, data["allowed"])
}

func TestOutputFormatter_Written(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Written("put", sampleObject()))
	assert.Equal(t, "put local/alice/n1 at 1704067200000\n", buf.String())
}

func TestOutputFormatter_Stat(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Stat(graffiti.ChannelStat{Channel: "general", Count: 3, LastModified: 42}))
	assert.Equal(t, "general count=3 lastModified=42\n", buf.String())
}

func TestOutputFormatter_Synced(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, ErrWriter: errBuf}
	obj := sampleObject()

	require.NoError(t, formatter.Synced(engine.SyncResult{Location: obj.Location, Object: obj, Accepted: true}))
	require.NoError(t, formatter.Synced(engine.SyncResult{Location: obj.Location, Object: obj}))
	require.NoError(t, formatter.Synced(engine.SyncResult{Location: obj.Location, Err: graffiti.NewError(graffiti.KindNotFound, "gone")}))

	assert.Equal(t, "local/alice/n1 accepted 1704067200000\nlocal/alice/n1 stale 1704067200000\n", buf.String())
	assert.Equal(t, "error: NotFound: gone\n", errBuf.String())
}

func TestOutputFormatter_JSONFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := graffiti.WithSource(graffiti.NewError(graffiti.KindProtocol, "bad record"), "https://pod.example")
	require.NoError(t, formatter.Failure(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ProtocolError", resp.Error.Code)
	assert.Equal(t, "https://pod.example", resp.Error.Source)

	buf.Reset()
	require.NoError(t, formatter.Failure(errors.New("plain")))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "Failure", resp.Error.Code)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Opening %s", "local.db")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Opening local.db")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "get failed", graffiti.NewError(graffiti.KindNotFound, "x"))
	assert.ErrorIs(t, wrapped, graffiti.ErrNotFound)
	assert.Equal(t, "get failed: NotFound: x", wrapped.Error())
}
