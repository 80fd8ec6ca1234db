package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSendCommand creates the send command: a one-shot engine invocation for
// development and smoke testing, bypassing the webhook.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <phone-number> <message>",
		Short: "Feed one message through the conversation engine",
		Long: `Feed one message through the conversation engine and print the
response descriptor.

Example:
  stagehand send +15551230000 "hello"
  stagehand send --format json +15551230000 "studio_head"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.engine.HandleMessage(ctx, args[0], args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "message handling failed", err)
			}

			if rootOpts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template: %s\n", resp.Template)
			for k, v := range resp.Data {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", k, v)
			}
			return nil
		},
	}
	return cmd
}
