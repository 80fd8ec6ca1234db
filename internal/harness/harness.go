package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stagehand-bot/stagehand/internal/conversation"
	"github.com/stagehand-bot/stagehand/internal/db"
	"github.com/stagehand-bot/stagehand/internal/engine"
	"github.com/stagehand-bot/stagehand/internal/testutil"
)

// DefaultStart anchors scenario clocks when the file does not set one.
const DefaultStart = "2026-03-01T12:00:00Z"

// Result is the executed transcript, shaped for golden comparison.
type Result struct {
	ScenarioName string  `json:"scenario_name"`
	Transcript   []Entry `json:"transcript"`
}

// Entry records the outcome of one step: the response template plus the
// persisted state and history after commit.
type Entry struct {
	From     string   `json:"from"`
	Send     string   `json:"send"`
	Template string   `json:"template"`
	State    string   `json:"state"`
	History  []string `json:"history"`
}

// Run executes a scenario on a fresh sqlite-backed engine with a frozen
// clock and returns the transcript. Per-step expectations fail the test
// immediately with the step index in the message.
func Run(t *testing.T, sc *Scenario) *Result {
	t.Helper()
	ctx := context.Background()

	d, err := db.Open(db.Config{
		Engine: db.EngineSQLite,
		Target: filepath.Join(t.TempDir(), "scenario.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Connect(ctx))

	start := sc.Start
	if start == "" {
		start = DefaultStart
	}
	base, err := time.Parse(time.RFC3339, start)
	require.NoError(t, err, "scenario %s: bad start time", sc.Name)

	clock := testutil.NewClock(base)
	store := conversation.NewStore(d, conversation.WithNow(clock.Now))

	opts := []engine.Option{engine.WithNow(clock.Now)}
	if sc.TimeoutMinutes > 0 {
		opts = append(opts, engine.WithTimeout(time.Duration(sc.TimeoutMinutes)*time.Minute))
	}
	eng := engine.New(store, opts...)

	result := &Result{ScenarioName: sc.Name, Transcript: []Entry{}}
	for i, step := range sc.Steps {
		if step.Advance != "" {
			advance, err := time.ParseDuration(step.Advance)
			require.NoError(t, err)
			clock.Advance(advance)
		}

		resp, err := eng.HandleMessage(ctx, step.From, step.Send)
		require.NoError(t, err, "scenario %s: step %d", sc.Name, i)

		c, err := store.Get(ctx, step.From)
		require.NoError(t, err, "scenario %s: step %d", sc.Name, i)

		entry := Entry{
			From:     step.From,
			Send:     step.Send,
			Template: resp.Template,
			State:    string(c.CurrentState),
			History:  historyStrings(c.History),
		}
		result.Transcript = append(result.Transcript, entry)

		if step.Expect != nil {
			require.Equal(t, step.Expect.Template, entry.Template,
				"scenario %s: step %d: template", sc.Name, i)
			if step.Expect.State != "" {
				require.Equal(t, step.Expect.State, entry.State,
					"scenario %s: step %d: state", sc.Name, i)
			}
			if step.Expect.History != nil {
				require.Equal(t, step.Expect.History, entry.History,
					"scenario %s: step %d: history", sc.Name, i)
			}
		}
	}
	return result
}

func historyStrings(history []conversation.State) []string {
	out := make([]string, len(history))
	for i, s := range history {
		out[i] = string(s)
	}
	return out
}
