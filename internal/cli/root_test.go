package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "graffiti", cmd.Use)
	assert.Contains(t, cmd.Long, "federation of pods")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"put", "get", "patch", "delete", "discover", "watch", "channels", "orphans", "sync", "serve"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestPutCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	putCmd, _, err := cmd.Find([]string{"put"})
	require.NoError(t, err)

	for _, name := range []string{"name", "source", "channel", "allow", "private", "schema"} {
		assert.NotNil(t, putCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestDiscoverCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	discoverCmd, _, err := cmd.Find([]string{"discover"})
	require.NoError(t, err)

	for _, name := range []string{"channel", "schema", "source", "skip", "limit", "since"} {
		assert.NotNil(t, discoverCmd.Flags().Lookup(name), "flag %s", name)
	}

	channelsCmd, _, err := cmd.Find([]string{"channels"})
	require.NoError(t, err)
	assert.Nil(t, channelsCmd.Flags().Lookup("limit"), "channel stats are not windowed")
}

func TestSyncCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)

	followFlag := syncCmd.Flags().Lookup("follow")
	require.NotNil(t, followFlag)
	assert.Equal(t, "f", followFlag.Shorthand)
	require.NotNil(t, syncCmd.Flags().Lookup("source"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "get", "local/alice/n1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
