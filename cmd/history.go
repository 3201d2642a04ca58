package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deepchat/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			convs, err := a.history.ListConversations(ctx)
			if err != nil {
				return err
			}
			printConversations(cmd.OutOrStdout(), convs)
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			conv, err := a.history.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}
			turns, err := a.history.List(ctx, conv.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n\n", conv.Title, conv.Selection())
			printTurns(out, turns)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.history.GetConversation(ctx, args[0]); err != nil {
				return err
			}
			if err := a.Manager(nil, nil).Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

var historySearchLimit int

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search message text across conversations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			results, err := a.history.Search(ctx, args[0], historySearchLimit)
			if err != nil {
				return err
			}
			printSearchResults(cmd.OutOrStdout(), results)
			return nil
		})
	},
}

var historyExportDir string

var historyExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			conv, err := a.history.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}

			path := storage.ExportFileName(historyExportDir, conv)
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			if err := a.history.Export(ctx, conv.ID, f); err != nil {
				f.Close()
				os.Remove(path)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
			return nil
		})
	},
}

func init() {
	historySearchCmd.Flags().IntVarP(&historySearchLimit, "limit", "n", 20, "maximum number of matches")
	historyExportCmd.Flags().StringVarP(&historyExportDir, "dir", "d", ".", "directory to write the export to")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historySearchCmd, historyExportCmd)
}
