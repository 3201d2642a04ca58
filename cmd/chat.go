package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"deepchat/config"
	"deepchat/model"
	"deepchat/orchestrator"
)

type chatOptions struct {
	model        string
	conversation string
}

var chatOpts chatOptions

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat. Type a message and press enter to send it.
Ctrl-C cancels a response in progress; at the prompt it exits.

Commands:
  /new [provider:model]   start a new conversation
  /switch <id>            continue a stored conversation
  /model <provider:model> change the model of this conversation
  /list                   list stored conversations
  /tools                  list available tools
  /quit                   exit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, chatOpts)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatOpts.model, "model", "m", "", "model to chat with, as provider:model")
	chatCmd.Flags().StringVarP(&chatOpts.conversation, "conversation", "c", "", "continue the conversation with this ID")
}

func runChat(cmd *cobra.Command, opts chatOptions) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		bridge, warnings, err := a.Bridge(ctx)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: tool server %s\n", w)
		}

		sel, err := a.DefaultSelection(opts.model)
		if err != nil {
			return err
		}

		session := &chatSession{out: cmd.OutOrStdout(), tools: bridge, defaultSel: sel}
		session.mgr = a.Manager(bridge, session.handleEvent)

		if opts.conversation != "" {
			_, err = session.mgr.Switch(ctx, opts.conversation)
		} else {
			_, err = session.mgr.New(ctx, sel)
		}
		if err != nil {
			return err
		}

		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		historyFile := filepath.Join(a.cfg.DataDir(), "chat_history")
		if f, err := os.Open(historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()

		session.banner()
		for {
			input, err := line.Prompt("> ")
			if err != nil {
				// Ctrl-C at the prompt, Ctrl-D or closed stdin.
				fmt.Fprintln(session.out)
				return nil
			}
			input = strings.TrimSpace(input)
			if input == "" {
				continue
			}
			line.AppendHistory(input)

			if strings.HasPrefix(input, "/") {
				quit, err := session.command(ctx, input)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", model.UserMessage(err))
				}
				if quit {
					return nil
				}
				continue
			}

			if err := session.send(ctx, input); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nerror: %s\n", model.UserMessage(err))
			}
		}
	})
}

// chatSession is the state of one interactive run.
type chatSession struct {
	mgr        *orchestrator.Manager
	tools      orchestrator.ToolSource
	defaultSel model.Selection

	mu  sync.Mutex
	out io.Writer
	// midLine is set while streamed text has not been terminated by a newline.
	midLine bool
}

func (s *chatSession) banner() {
	o := s.mgr.Current()
	if o == nil {
		return
	}
	conv := o.Conversation()
	fmt.Fprintf(s.out, "Conversation %s (%s)\n", conv.ID, conv.Selection())
	for _, t := range o.Turns() {
		if t.Role == model.RoleTool {
			continue
		}
		if t.Content != "" {
			fmt.Fprintf(s.out, "%s: %s\n", t.Role, t.Content)
		}
	}
}

// send runs one exchange on the current conversation. An interrupt while it
// runs cancels the response instead of exiting.
func (s *chatSession) send(ctx context.Context, text string) error {
	o := s.mgr.Current()
	if o == nil {
		return errors.New("no conversation, use /new")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	done := make(chan error, 1)
	go func() { done <- o.Send(ctx, text) }()

	var err error
	select {
	case err = <-done:
	case <-interrupt:
		o.Cancel()
		err = <-done
		s.endLine()
		fmt.Fprintln(s.out, "[cancelled]")
		return nil
	}

	s.endLine()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// command runs a slash command. It reports whether the session should end.
func (s *chatSession) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		sel := s.defaultSel
		if cur := s.mgr.Current(); cur != nil {
			sel = cur.Conversation().Selection()
		}
		if len(args) > 0 {
			parsed, err := model.ParseSelection(args[0])
			if err != nil {
				return false, err
			}
			sel = parsed
		}
		o, err := s.mgr.New(ctx, sel)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Started conversation %s (%s)\n", o.Conversation().ID, sel)

	case "/switch":
		if len(args) != 1 {
			return false, errors.New("usage: /switch <conversation id>")
		}
		if _, err := s.mgr.Switch(ctx, args[0]); err != nil {
			return false, err
		}
		s.banner()

	case "/model":
		if len(args) != 1 {
			return false, errors.New("usage: /model <provider:model>")
		}
		sel, err := model.ParseSelection(args[0])
		if err != nil {
			return false, err
		}
		o := s.mgr.Current()
		if o == nil {
			return false, errors.New("no conversation, use /new")
		}
		if err := o.Select(sel); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Now using %s\n", sel)

	case "/list":
		convs, err := s.mgr.List(ctx)
		if err != nil {
			return false, err
		}
		printConversations(s.out, convs)

	case "/tools":
		printTools(s.out, s.tools.Tools())

	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// handleEvent prints the progress of the current conversation. Events from
// conversations running in the background are not shown.
func (s *chatSession) handleEvent(e orchestrator.Event) {
	cur := s.mgr.Current()
	if cur == nil || cur.Conversation().ID != e.ConversationID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case orchestrator.EventDelta:
		switch e.Delta.Kind {
		case model.DeltaText:
			fmt.Fprint(s.out, e.Delta.Text)
			s.midLine = !strings.HasSuffix(e.Delta.Text, "\n")
		case model.DeltaToolCallStart:
			s.endLineLocked()
			fmt.Fprintf(s.out, "[calling %s]\n", e.Delta.ToolName)
		}

	case orchestrator.EventToolInvoked:
		if r := e.Turn.ToolResult; r != nil && r.IsError {
			s.endLineLocked()
			fmt.Fprintf(s.out, "[%s failed: %s]\n", r.ToolName, r.ErrorKind)
		}

	case orchestrator.EventConversationChanged:
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Conversation %s is now %q on %s", e.ConversationID, e.Conversation.Title, e.Conversation.Selection())
		}
	}
}

func (s *chatSession) endLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLineLocked()
}

func (s *chatSession) endLineLocked() {
	if s.midLine {
		fmt.Fprintln(s.out)
		s.midLine = false
	}
}
