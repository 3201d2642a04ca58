package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"deepchat/settings"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage provider API keys",
}

var keySetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Store an API key and load the provider's models",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			key := args[1]
			res, err := a.settings.Apply(ctx, settings.Update{ProviderID: args[0], APIKey: &key})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stored key %s for %s\n", maskKey(key), args[0])
			if res.RefreshErr != nil {
				fmt.Fprintf(out, "Could not load models: %s\n", res.RefreshErr)
			} else if res.Refreshed {
				fmt.Fprintf(out, "%d models available\n", res.Models)
			}
			return nil
		})
	},
}

var keyRemoveCmd = &cobra.Command{
	Use:   "remove <provider>",
	Short: "Remove a provider's API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.settings.Apply(ctx, settings.Update{ProviderID: args[0], Remove: true}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed key for %s\n", args[0])
			return nil
		})
	},
}

var keyBaseURLCmd = &cobra.Command{
	Use:   "base-url <provider> [url]",
	Short: "Set a provider's base URL, or reset it to the default",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var baseURL string
			if len(args) == 2 {
				baseURL = args[1]
			}
			if _, err := a.settings.Apply(ctx, settings.Update{ProviderID: args[0], BaseURL: &baseURL}); err != nil {
				return err
			}
			p, _ := a.registry.Provider(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s now uses %s\n", args[0], p.ResolvedBaseURL())
			return nil
		})
	},
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which providers are configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			for _, st := range a.settings.Status() {
				state := "not configured"
				if cred, ok := a.creds.Get(st.Provider.ID); ok {
					state = "key " + maskKey(cred.APIKey)
				} else if st.Configured {
					state = "no key needed"
				}
				fmt.Fprintf(out, "%-12s %-20s %-18s %s\n", st.Provider.ID, st.Provider.Family, state, st.Provider.ResolvedBaseURL())
			}
			return nil
		})
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyRemoveCmd, keyBaseURLCmd, keyStatusCmd)
}
