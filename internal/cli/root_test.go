package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "send", "stats", "cleanup"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stats", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stagehand.cue")
	content := `database: target: "` + filepath.Join(dir, "test.db") + `"`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSendCommand_RoundTrip(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"send", "--config", cfgPath, "+15551230000", "hello"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "user_type_selection_template")
}

func TestStatsCommand_Empty(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stats", "--config", cfgPath, "--format", "json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "{")
}

func TestCleanupCommand_NothingToRemove(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"cleanup", "--config", cfgPath, "--idle", "1h"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "removed 0 conversation(s)")
}

func TestSendCommand_BadConfigPath(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"send", "--config", "/nonexistent/stagehand.cue", "+15551230000", "hello"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
