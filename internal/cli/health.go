package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/playerhub/internal/api/response"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Health

			if err := client.Get(cmd.Context(), "/health", &result); err != nil {
				return err
			}

			newCmdOutput(cmd).Print(result)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server info and connected players",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Status

			if err := client.Get(cmd.Context(), "/", &result); err != nil {
				return err
			}

			newCmdOutput(cmd).Print(result)
			return nil
		},
	}
}

func newCmdOutput(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
}
