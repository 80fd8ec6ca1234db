package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Show conversation counts per user type",
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

			counts, err := a.store.UserTypeCounts(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to collect statistics", err)
			}

			if rootOpts.Format == "json" {
				out := make(map[string]int64, len(counts))
				for ut, n := range counts {
					out[string(ut)] = n
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			for ut, n := range counts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", ut, n)
			}
			return nil
		},
	}
	return cmd
}
