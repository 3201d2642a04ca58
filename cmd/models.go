package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var modelsSearch string

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List the models a provider offers",
	Long: `List the models a provider offers. Without a provider, every provider
that has a credential (or needs none) is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var ids []string
			if len(args) == 1 {
				ids = args
			} else {
				for _, st := range a.settings.Status() {
					if st.Configured {
						ids = append(ids, st.Provider.ID)
					}
				}
			}

			out := cmd.OutOrStdout()
			for _, id := range ids {
				if _, err := a.catalog.Refresh(ctx, id); err != nil {
					if len(args) == 1 {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				printModels(out, a.catalog.Search(id, modelsSearch))
			}
			return nil
		})
	},
}

func init() {
	modelsCmd.Flags().StringVarP(&modelsSearch, "search", "s", "", "fuzzy-filter model IDs")
}
