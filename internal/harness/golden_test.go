package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/ and compares the
// resulting transcript against its golden file. Regenerate with
// `go test ./internal/harness -update` after intentional behavior changes.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenario files found")

	for _, path := range paths {
		sc, err := Load(path)
		require.NoError(t, err, "load %s", path)

		t.Run(sc.Name, func(t *testing.T) {
			result := Run(t, sc)

			data, err := json.MarshalIndent(result, "", "  ")
			require.NoError(t, err)

			g := goldie.New(t)
			g.Assert(t, sc.Name, append(data, '\n'))
		})
	}
}
