// Package cmd implements the deepchat command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deepchat/config"
	"deepchat/model"
)

var globalOpts appOptions

var rootCmd = &cobra.Command{
	Use:   "deepchat",
	Short: "Chat with LLM providers from the terminal",
	Long: `deepchat talks to OpenAI-compatible, Anthropic, Gemini, Groq and Ollama
models, with tools served over the Model Context Protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, chatOpts)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalOpts.dataDir, "data-dir", "", "data directory (default $DEEPCHAT_DATA_DIR or ~/.local/share/deepchat)")
	flags.BoolVar(&globalOpts.debug, "debug", false, "write a debug log to <data dir>/debug.log")
	flags.BoolVar(&globalOpts.ephemeral, "ephemeral", false, "keep history in memory only")

	rootCmd.AddCommand(chatCmd, modelsCmd, toolsCmd, keyCmd, historyCmd, serversCmd)
}

// withApp wires the components for one command run and closes them after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, globalOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[App] Close: %v", err)
		}
	}()

	return fn(ctx, a)
}

// Execute runs the command line and exits non-zero on failure.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", model.UserMessage(err))
		os.Exit(1)
	}
}
