package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"deepchat/mcp"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage the tool server catalog",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known tool servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			printServers(cmd.OutOrStdout(), a.servers.List())
			return nil
		})
	},
}

var serversInstallCmd = &cobra.Command{
	Use:   "install <id>",
	Short: "Mark a server as installed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.servers.Install(ctx, args[0]); err != nil {
				return err
			}
			srv, _ := a.servers.Get(args[0])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Installed %s\n", args[0])
			if err := mcp.CheckLauncher(srv.ServerConfig); err != nil {
				fmt.Fprintf(out, "Note: %v\n", err)
			}
			return nil
		})
	},
}

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.servers.SetEnabled(ctx, args[0], enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", args[0], use)
				return nil
			})
		},
	}
}

var serversAddRepo string

var serversAddCmd = &cobra.Command{
	Use:   "add <name> <description>",
	Short: "Add a custom server to the catalog",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			srv, err := a.servers.AddCustom(ctx, args[0], args[1], serversAddRepo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s. Set how to launch it with: deepchat servers configure %s\n", srv.ID, srv.ID)
			return nil
		})
	},
}

var (
	serversConfigureTransport string
	serversConfigureEnv       []string
)

var serversConfigureCmd = &cobra.Command{
	Use:   "configure <id> <command line | url>",
	Short: "Set how a server is launched",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			env, err := mcp.ParseEnv(serversConfigureEnv)
			if err != nil {
				return err
			}
			if err := a.servers.Configure(ctx, args[0], mcp.Transport(serversConfigureTransport), args[1], env); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configured %s\n", args[0])
			return nil
		})
	},
}

func init() {
	serversAddCmd.Flags().StringVar(&serversAddRepo, "repo", "", "source repository of the server")
	serversConfigureCmd.Flags().StringVarP(&serversConfigureTransport, "transport", "t", string(mcp.TransportStdio), "stdio, sse or streamable-http")
	serversConfigureCmd.Flags().StringArrayVarP(&serversConfigureEnv, "env", "e", nil, "environment variable for stdio servers, KEY=VALUE")

	serversCmd.AddCommand(
		serversListCmd,
		serversInstallCmd,
		setEnabledCmd("enable", "Enable an installed server", true),
		setEnabledCmd("disable", "Disable a server", false),
		serversAddCmd,
		serversConfigureCmd,
	)
}
