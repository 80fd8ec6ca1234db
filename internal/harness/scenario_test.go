package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeScenario(t, `
name: smoke
steps:
  - from: "+15550001111"
    send: "hello"
    advance: 5m
    expect:
      template: user_type_selection_template
`)
	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", sc.Name)
	require.Len(t, sc.Steps, 1)
	assert.Equal(t, "5m", sc.Steps[0].Advance)
	require.NotNil(t, sc.Steps[0].Expect)
	assert.Equal(t, "user_type_selection_template", sc.Steps[0].Expect.Template)
}

func TestLoad_MissingName(t *testing.T) {
	path := writeScenario(t, `
steps:
  - from: "+15550001111"
    send: "hello"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoad_NoSteps(t *testing.T) {
	path := writeScenario(t, "name: empty\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}

func TestLoad_MissingFrom(t *testing.T) {
	path := writeScenario(t, `
name: bad
steps:
  - send: "hello"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from is required")
}

func TestLoad_BadAdvance(t *testing.T) {
	path := writeScenario(t, `
name: bad
steps:
  - from: "+15550001111"
    send: "hello"
    advance: "not-a-duration"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad advance")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
