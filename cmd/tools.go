package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Discover and list tools on the enabled servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			bridge, warnings, err := a.Bridge(ctx)
			if err != nil {
				return err
			}
			printTools(cmd.OutOrStdout(), bridge.Tools())
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		})
	},
}
