package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// CleanupOptions holds flags for the cleanup command.
type CleanupOptions struct {
	*RootOptions
	Idle time.Duration
}

// NewCleanupCommand creates the cleanup command: the maintenance sweep that
// removes long-idle conversations. Runs outside the per-message path; for
// example from cron.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete conversations idle for longer than --idle",
		Long: `Delete conversations whose last interaction is older than the
--idle window.

Example:
  stagehand cleanup --idle 24h
  stagehand cleanup --idle 168h --config ./stagehand.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			cutoff := time.Now().Add(-opts.Idle)
			removed, err := a.store.DeleteIdleBefore(ctx, cutoff)
			if err != nil {
				return WrapExitError(ExitFailure, "cleanup failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d conversation(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.Idle, "idle", 24*time.Hour, "idle window")

	return cmd
}
