// Package chatcmder provides the chat command: an interactive terminal
// client for a running parlor server.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/parlor/pkg/cliui"
	"github.com/papercomputeco/parlor/pkg/config"
	"github.com/papercomputeco/parlor/pkg/dotdir"
	"github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/session"
)

var (
	userPromptStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	assistantPromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type chatCommander struct {
	serverTarget string
	configDir    string
	fresh        bool
	raw          bool
	debug        bool

	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	client  *client
	state   session.State
	updates chan update
	dotdir  *dotdir.Manager
}

const chatLongDesc string = `Start an interactive chat with a running parlor server.

The chat command creates a session on the server (or resumes the one used
last time against the same server), submits each line you type as a question
and follows the session's event stream while the answer is generated.

Lines starting with "/" are commands:
  /new <name>        create a conversation and switch to it
  /use <name>        switch to a conversation
  /delete [name]     delete a conversation (default: the current one)
  /list              list conversations
  /history           show the question/answer pairs of the current conversation
  /templates         list question templates
  /template <title>  ask the question of a template card
  /export [md|json]  save the current conversation on the server
  /exit              quit (Ctrl+D works too)

Press Ctrl+C while an answer is generated to cancel it.

Examples:
  parlor chat
  parlor chat --server-target http://localhost:8080 --new`

const chatShortDesc string = "Interactive chat with a parlor server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagServerTarget})
			cmder.serverTarget = v.GetString(config.Flags[config.FlagServerTarget].ViperKey)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagServerTarget, &cmder.serverTarget)
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new session instead of resuming the last one")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Stream raw answer text instead of rendering markdown")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)
	c.client = newClient(c.serverTarget)
	c.dotdir = dotdir.NewManager()

	// Piped output gets plain text.
	if !isTerminal(c.out) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	state, err := c.resume(ctx)
	if err != nil {
		return err
	}
	c.state = state

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()

	c.updates = make(chan update, 64)
	var trace io.Writer
	if c.debug {
		trace = os.Stderr
	}
	go func() {
		defer close(c.updates)
		if err := c.client.follow(streamCtx, c.state.ID, c.updates, trace, c.logger); err != nil && streamCtx.Err() == nil {
			c.logger.Warn("event stream ended", "error", err)
		}
	}()

	agent, err := c.client.agent(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Session:"), cliui.DimStyle.Render(c.state.ID))
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Agent:"), cliui.NameStyle.Render(agentLabel(agent.Provider, agent.Model)))
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Conversation:"), cliui.NameStyle.Render(c.state.Current))
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your question and press Enter. /help for commands, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, userPromptStyle.Render("you> "))
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" {
			break
		}

		if strings.HasPrefix(line, "/") {
			err = c.command(ctx, line)
		} else {
			err = c.ask(ctx, line)
		}
		if err != nil {
			fmt.Fprintf(c.out, "  %s %s\n\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	c.saveResume()
	fmt.Fprintln(c.out)
	return nil
}

// resume returns the session to chat in: the one recorded in resume.json for
// the same server, or a new one.
func (c *chatCommander) resume(ctx context.Context) (session.State, error) {
	if !c.fresh {
		saved, err := c.dotdir.LoadResumeState(c.configDir)
		if err != nil {
			c.logger.Debug("ignoring resume state", "error", err)
		}
		if saved != nil && saved.Server == c.serverTarget {
			state, err := c.client.getSession(ctx, saved.SessionID)
			switch {
			case err == nil:
				fmt.Fprintf(c.out, "\n  %s Resuming session\n", cliui.SuccessMark)
				return state, nil
			case isStatus(err, http.StatusNotFound):
				c.logger.Debug("saved session no longer exists", "session_id", saved.SessionID)
			default:
				return session.State{}, err
			}
		}
	}

	state, err := c.client.createSession(ctx)
	if err != nil {
		return session.State{}, err
	}
	fmt.Fprintf(c.out, "\n  %s New session\n", cliui.DimStyle.Render("●"))
	return state, nil
}

func (c *chatCommander) saveResume() {
	err := c.dotdir.SaveResumeState(&dotdir.ResumeState{
		Server:       c.serverTarget,
		SessionID:    c.state.ID,
		Conversation: c.state.Current,
	}, c.configDir)
	if err != nil {
		c.logger.Debug("could not save resume state", "error", err)
	}
}

// ask submits a question and follows the events of the turn until its reply
// is final or the turn failed.
func (c *chatCommander) ask(ctx context.Context, question string) error {
	c.drain()

	if err := c.client.ask(ctx, c.state.ID, question); err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	view := newTurnView(c.out, c.state.Current, c.raw || !isTerminal(c.out), terminalWidth(c.out))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-interrupts:
			if err := c.client.cancel(ctx, c.state.ID); err != nil {
				c.logger.Debug("cancel failed", "error", err)
			}

		case u, ok := <-c.updates:
			if !ok {
				return errors.New("event stream closed")
			}
			c.apply(u)

			done, err := view.handle(u)
			if done {
				return err
			}
		}
	}
}

// drain applies updates that arrived while no turn was followed.
func (c *chatCommander) drain() {
	for {
		select {
		case u, ok := <-c.updates:
			if !ok {
				return
			}
			c.apply(u)
		default:
			return
		}
	}
}

// apply keeps the local view of the session in sync with the stream.
func (c *chatCommander) apply(u update) {
	if u.State != nil {
		c.state = *u.State
		return
	}
	if u.Event != nil {
		c.state.Current = u.Event.Current
		c.state.Busy = u.Event.Busy
	}
}

func agentLabel(provider, model string) string {
	if model == "" {
		return provider
	}
	return provider + " · " + model
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return min(width, 120)
}
