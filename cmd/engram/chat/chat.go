// Package chatcmder provides the chat command for interactive sessions with
// the memory-grounded assistant.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/cliui"
	"github.com/engramchat/engram/pkg/config"
	"github.com/engramchat/engram/pkg/dotdir"
	"github.com/engramchat/engram/pkg/identity"
	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/logger"
	"github.com/engramchat/engram/pkg/orchestrator"
	"github.com/engramchat/engram/pkg/persona"
	"github.com/engramchat/engram/pkg/service"
	"github.com/engramchat/engram/pkg/session"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	userName    string
	personaName string
	configDir   string
	debug       bool
	render      bool

	cfg    *config.Config
	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session with the assistant.

The assistant remembers what you tell it. Facts from earlier conversations
are retrieved and used to ground every reply, keyed to the name you
introduce yourself with.

Session commands:
  /exit               Quit the session
  /new                Start a fresh conversation thread
  /persona <name>     Answer as the named persona
  /persona            Drop the active persona
  /personas           List available personas

The last used name and persona are remembered across runs.

Examples:
  engram chat --name Sam
  engram chat --name Sam --persona "Maya Chen"`

const chatShortDesc string = "Interactive chat with the memory-grounded assistant"

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

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagModel,
				config.FlagSQLite,
				config.FlagMaxFacts,
			})

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.userName, "name", "n", "", "Your name (defaults to the last session's name)")
	cmd.Flags().StringVarP(&cmder.personaName, "persona", "p", "", "Persona to answer as")
	cmd.Flags().BoolVar(&cmder.render, "render", false, "Render replies as markdown (waits for the full reply)")
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, new(string))
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, new(string))
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxFacts, new(int))

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()

	stack, err := service.BuildStack(ctx, c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building stack: %w", err)
	}
	defer stack.Close()

	dotdirManager := dotdir.NewManager()
	state, err := dotdirManager.LoadSessionState(c.configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}
	if state == nil {
		state = &dotdir.SessionState{}
	}

	if c.userName == "" {
		c.userName = state.UserName
	}
	if c.userName == "" {
		c.userName, err = promptForName()
		if err != nil {
			return err
		}
	}

	handle, err := stack.Resolver.ResolveOrCreate(ctx, c.userName)
	if err != nil {
		if errors.Is(err, identity.ErrEmptyUserName) {
			return fmt.Errorf("a name is required to chat")
		}
		return fmt.Errorf("resolving identity: %w", err)
	}

	sess := session.NewSession(strings.TrimSpace(c.userName), handle)

	if err := c.activatePersona(ctx, stack, sess, state); err != nil {
		return err
	}

	state.UserName = sess.UserName
	if err := dotdirManager.SaveSessionState(state, c.configDir); err != nil {
		c.logger.Warn("saving session state", zap.Error(err))
	}

	c.printBanner(sess)

	return c.loop(ctx, stack, sess, state, dotdirManager)
}

// activatePersona applies the persona flag or the remembered persona handle.
func (c *chatCommander) activatePersona(ctx context.Context, stack *service.Stack, sess *session.Session, state *dotdir.SessionState) error {
	if stack.Personas == nil {
		return nil
	}

	if c.personaName != "" {
		p, err := stack.Personas.Find(ctx, c.personaName)
		if err != nil {
			return fmt.Errorf("activating persona: %w", err)
		}
		sess.Persona = p
		state.PersonaHandle = p.Handle
		return nil
	}

	if state.PersonaHandle != "" {
		p, err := stack.Personas.Get(ctx, state.PersonaHandle)
		if err != nil {
			// The remembered persona may have been created against a
			// different database. Drop it quietly.
			state.PersonaHandle = ""
			return nil
		}
		sess.Persona = p
	}

	return nil
}

func (c *chatCommander) printBanner(sess *session.Session) {
	fmt.Println()
	fmt.Printf("  %s Chatting as %s\n", cliui.SuccessMark, cliui.NameStyle.Render(sess.UserName))
	if sess.Persona != nil {
		fmt.Printf("  %s %s\n",
			cliui.KeyStyle.Render("Persona:"),
			cliui.NameStyle.Render(sess.Persona.FullName),
		)
	}
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.ValueStyle.Render(c.cfg.LLM.Model),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))
}

func (c *chatCommander) loop(ctx context.Context, stack *service.Stack, sess *session.Session, state *dotdir.SessionState, dotdirManager *dotdir.Manager) error {
	var messages []llm.Message

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := c.handleCommand(ctx, input, stack, sess, state, dotdirManager, &messages)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			}
			if quit {
				break
			}
			continue
		}

		messages = append(messages, llm.NewMessage(llm.RoleUser, input))

		reply, err := c.streamTurn(ctx, stack, sess, messages)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n  %s %s\n", cliui.FailMark, orchestrator.UserFacingMessage(err))
			// Remove the failed user message so we can retry
			messages = messages[:len(messages)-1]
			continue
		}

		messages = append(messages, llm.NewMessage(llm.RoleAssistant, reply))

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// streamTurn runs one turn, printing the reply as it streams. Partials grow
// monotonically, so only the unseen suffix is printed per update. With
// --render the reply is buffered and rendered as markdown instead, since
// glamour cannot render incrementally.
func (c *chatCommander) streamTurn(ctx context.Context, stack *service.Stack, sess *session.Session, messages []llm.Message) (string, error) {
	var onPartial func(string)
	if !c.render {
		fmt.Print(assistantPrompt)
		var printed int
		onPartial = func(partial string) {
			fmt.Print(partial[printed:])
			printed = len(partial)
		}
	}

	result, err := stack.Orchestrator.RunTurn(ctx, orchestrator.Turn{
		Session:  sess,
		Messages: messages,
	}, onPartial)
	if err != nil {
		return "", err
	}

	if c.render {
		fmt.Print(assistantPrompt)
		rendered, renderErr := cliui.RenderMarkdown(result.Reply)
		if renderErr != nil {
			rendered = result.Reply
		}
		fmt.Print(rendered)
	}

	return result.Reply, nil
}

func (c *chatCommander) handleCommand(ctx context.Context, input string, stack *service.Stack, sess *session.Session, state *dotdir.SessionState, dotdirManager *dotdir.Manager, messages *[]llm.Message) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit":
		return true, nil

	case "/new":
		sess.Reset()
		*messages = nil
		fmt.Printf("  %s New conversation\n\n", cliui.SuccessMark)
		return false, nil

	case "/persona":
		if stack.Personas == nil {
			return false, fmt.Errorf("personas need the graph store (store.provider = graph)")
		}

		if arg == "" {
			sess.Persona = nil
			state.PersonaHandle = ""
			fmt.Printf("  %s Persona cleared\n\n", cliui.SuccessMark)
		} else {
			p, findErr := stack.Personas.Find(ctx, arg)
			if findErr != nil {
				var notFound persona.NotFoundError
				if errors.As(findErr, &notFound) {
					return false, fmt.Errorf("no persona named %q; see /personas", arg)
				}
				return false, findErr
			}
			sess.Persona = p
			state.PersonaHandle = p.Handle
			fmt.Printf("  %s Answering as %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(p.FullName))
		}

		if saveErr := dotdirManager.SaveSessionState(state, c.configDir); saveErr != nil {
			c.logger.Warn("saving session state", zap.Error(saveErr))
		}
		return false, nil

	case "/personas":
		if stack.Personas == nil {
			return false, fmt.Errorf("personas need the graph store (store.provider = graph)")
		}

		personas, listErr := stack.Personas.List(ctx)
		if listErr != nil {
			return false, listErr
		}
		if len(personas) == 0 {
			fmt.Printf("  %s\n\n", cliui.DimStyle.Render("No personas yet. Create one with: engram persona create"))
			return false, nil
		}

		fmt.Println()
		for _, p := range personas {
			fmt.Printf("  %s %s\n",
				cliui.NameStyle.Render(p.FullName),
				cliui.DimStyle.Render(fmt.Sprintf("(%d, %s)", p.Age, p.Profession)),
			)
		}
		fmt.Println()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
}

func promptForName() (string, error) {
	fmt.Print("\n  What's your name? ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("a name is required to chat")
	}

	name := strings.TrimSpace(scanner.Text())
	if name == "" {
		return "", fmt.Errorf("a name is required to chat")
	}

	return name, nil
}
