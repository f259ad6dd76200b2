// Package chatcmder provides the chat command: an interactive conversation
// with the configured model that remembers the user across sessions.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/cliui"
	"github.com/papercomputeco/lokal/pkg/config"
	"github.com/papercomputeco/lokal/pkg/dotdir"
	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/llm"
	"github.com/papercomputeco/lokal/pkg/memory"
	"github.com/papercomputeco/lokal/pkg/retriever"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

const (
	// historyLimit bounds the transcript sent with each request and saved
	// between runs. Older context is carried by long-term memory instead.
	historyLimit = 40

	closeTimeout = 30 * time.Second

	basePrompt = "You are a helpful personal assistant. Answer concisely."
	memoryHint = "Things you remember about the user from earlier conversations:"
)

const chatLongDesc string = `Start an interactive chat with the configured model.

Facts relevant to each message are recalled from long-term memory and given
to the model. After every reply the exchange is handed to the background
memory manager, which stores what is worth remembering.

The transcript is saved in the lokal directory, and the next "lokal chat"
resumes it. Use --new to start over; long-term memory is kept either way.

Commands inside the chat:
  /facts            list remembered facts
  /forget <ref>     forget a fact by id or text
  /erase            forget everything
  /exit             quit (Ctrl+D works too)

Examples:
  lokal chat
  lokal chat --provider openai --model gpt-4o-mini
  lokal chat --new`

const chatShortDesc string = "Chat with a model that remembers you"

var chatFlags = []string{
	config.FlagProvider,
	config.FlagModel,
	config.FlagTarget,
	config.FlagContextFacts,
	config.FlagPinIdentity,
}

type chatCommander struct {
	in     io.Reader
	out    io.Writer
	render bool

	generator    llm.Generator
	retriever    *retriever.Retriever
	manager      *memory.Manager
	store        facts.Store
	contextFacts int
	logger       *slog.Logger

	messages []llm.Message
}

func NewChatCmd() *cobra.Command {
	var (
		provider, model, target string
		contextFacts, pin       uint
		fresh                   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, fresh)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagProvider, &provider)
	config.AddStringFlag(cmd, config.Registry, config.FlagModel, &model)
	config.AddStringFlag(cmd, config.Registry, config.FlagTarget, &target)
	config.AddUintFlag(cmd, config.Registry, config.FlagContextFacts, &contextFacts)
	config.AddUintFlag(cmd, config.Registry, config.FlagPinIdentity, &pin)
	setup.AddStoreFlags(cmd)
	cmd.Flags().BoolVar(&fresh, "new", false, "Discard the saved transcript and start a new conversation")

	return cmd
}

func runChat(cmd *cobra.Command, fresh bool) error {
	env, err := setup.Open(cmd, chatFlags...)
	if err != nil {
		return err
	}
	defer env.Close()

	cfg := env.Config
	w := cmd.OutOrStdout()

	gen, err := setup.NewGenerator(cfg, env.ConfigDir, env.Logger)
	if err != nil {
		return err
	}

	r, err := setup.NewRetriever(cfg, env.Store, env.Logger)
	if err != nil {
		return err
	}

	dirs := dotdir.NewManager()
	if fresh {
		if err := dirs.ClearSession(env.ConfigDir); err != nil {
			return err
		}
	}

	session, err := dirs.LoadSession(env.ConfigDir)
	if err != nil {
		env.Logger.Warn("could not load saved transcript", "error", err)
	}

	mgr, err := setup.NewManager(cfg, env.Store, gen, nil, env.Logger)
	switch {
	case errors.Is(err, memory.ErrNotConfigured):
		fmt.Fprintf(w, "  %s\n", cliui.WarnStyle.Render("Long-term memory is disabled; nothing from this chat will be remembered."))
	case err != nil:
		return err
	}

	c := &chatCommander{
		in:           cmd.InOrStdin(),
		out:          w,
		render:       isTerminal(w),
		generator:    gen,
		retriever:    r,
		manager:      mgr,
		store:        env.Store,
		contextFacts: int(cfg.Memory.ContextFacts),
		logger:       env.Logger,
	}

	fmt.Fprintln(w)
	if session != nil && len(session.Messages) > 0 {
		for _, m := range session.Messages {
			c.messages = append(c.messages, llm.NewTextMessage(m.Role, m.Content))
		}
		fmt.Fprintf(w, "  %s Resuming conversation %s\n",
			cliui.SuccessMark,
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(c.messages))),
		)
	} else {
		fmt.Fprintf(w, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Fprintf(w, "  %s %s\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(modelName(cfg.LLM.Provider, cfg.LLM.Model)),
	)
	if n, err := env.Store.Count(cmd.Context()); err == nil {
		fmt.Fprintf(w, "  %s %d facts\n", cliui.KeyStyle.Render("Memory:"), n)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	loopErr := c.loop(cmd.Context())

	if err := dirs.SaveSession(c.session(cfg.LLM.Provider, cfg.LLM.Model), env.ConfigDir); err != nil {
		env.Logger.Warn("could not save transcript", "error", err)
	}

	if mgr != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := cliui.Step(w, "Updating memory", func() error { return mgr.Close(ctx) }); err != nil {
			env.Logger.Warn("memory manager did not finish", "error", err)
		}
		c.reportMemory()
	}

	fmt.Fprintln(w)
	return loopErr
}

// loop reads lines until EOF or /exit.
func (c *chatCommander) loop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		c.reportMemory()
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}
		if strings.HasPrefix(input, "/") {
			if err := c.command(ctx, input); err != nil {
				fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
			}
			continue
		}

		reply, err := c.turn(ctx, input)
		if err != nil {
			fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
			continue
		}

		c.print(reply)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// turn answers one user message and hands the exchange to the memory manager.
func (c *chatCommander) turn(ctx context.Context, input string) (string, error) {
	system := basePrompt
	remembered, err := c.retriever.RelevantFacts(ctx, input, c.contextFacts)
	if err != nil {
		// Chat keeps working without memory.
		c.logger.Warn("recalling facts failed", "error", err)
	} else if len(remembered) > 0 {
		system += "\n\n" + memoryHint + "\n" + retriever.Format(remembered)
	}

	messages := append(c.history(), llm.UserMessage(input))
	reply, err := c.generator.Generate(ctx, llm.Request{System: system, Messages: messages})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", llm.ErrEmptyResponse
	}

	c.messages = append(c.messages, llm.UserMessage(input), llm.AssistantMessage(reply))

	if c.manager != nil && !c.manager.RecordTurn(input, reply) {
		c.logger.Warn("memory is busy, this exchange will not be remembered")
	}
	return reply, nil
}

// command runs a slash command other than /exit.
func (c *chatCommander) command(ctx context.Context, input string) error {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/facts":
		list, err := c.store.List(ctx, facts.ListOptions{})
		if err != nil {
			return err
		}
		cliui.WriteFacts(c.out, list)
		fmt.Fprintln(c.out)
		return nil

	case "/forget":
		if arg == "" {
			return errors.New("usage: /forget <id or text>")
		}
		f, err := c.store.Remove(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "  %s Forgot %s\n\n", cliui.SuccessMark, f.Content)
		return nil

	case "/erase":
		if err := c.erase(ctx); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "  %s Forgot everything\n\n", cliui.SuccessMark)
		return nil

	default:
		return fmt.Errorf("unknown command %s", name)
	}
}

// reportMemory prints what the memory manager finished since the last call.
// It never blocks; once the manager is closed it reads until the event
// channel is drained.
func (c *chatCommander) reportMemory() {
	if c.manager == nil {
		return
	}

	for {
		select {
		case ev, ok := <-c.manager.Events():
			if !ok {
				return
			}
			switch {
			case ev.Err != nil:
				fmt.Fprintf(c.out, "  %s %s\n\n", cliui.WarnStyle.Render("Memory not updated:"), ev.Err)
			case len(ev.Applied) > 0:
				fmt.Fprintf(c.out, "  %s Memory updated %s\n\n",
					cliui.SuccessMark,
					cliui.DimStyle.Render(fmt.Sprintf("(%d changed, %d facts)", len(ev.Applied), ev.Count)),
				)
			}
		default:
			return
		}
	}
}

// erase goes through the manager when there is one so that it never
// interleaves with a batch being applied.
func (c *chatCommander) erase(ctx context.Context) error {
	if c.manager != nil {
		return c.manager.EraseAll(ctx)
	}
	return c.store.Clear(ctx)
}

func (c *chatCommander) history() []llm.Message {
	msgs := c.messages
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	return append([]llm.Message(nil), msgs...)
}

func (c *chatCommander) print(reply string) {
	if c.render {
		if out, err := cliui.RenderMarkdown(reply); err == nil {
			fmt.Fprintf(c.out, "%s\n%s", assistantPrompt, out)
			return
		}
	}
	fmt.Fprintf(c.out, "%s%s\n\n", assistantPrompt, reply)
}

func (c *chatCommander) session(provider, model string) *dotdir.Session {
	s := &dotdir.Session{Provider: provider, Model: model}
	for _, m := range c.messages {
		s.Messages = append(s.Messages, dotdir.SessionMessage{Role: m.Role, Content: m.Content})
	}
	s.Trim(historyLimit)
	return s
}

func modelName(provider, model string) string {
	if model == "" {
		return provider + " (default model)"
	}
	return provider + "/" + model
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
