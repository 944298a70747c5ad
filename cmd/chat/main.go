package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"chat_gateway/internal/client"
	"chat_gateway/internal/config"
	"chat_gateway/internal/conversation"
	"chat_gateway/internal/providers"
	"chat_gateway/internal/storage"
	"chat_gateway/internal/uistream"
	"chat_gateway/internal/vault"
)

const help = `Commands:
  /provider <id>    switch provider (google, openai, anthropic, deepseek, qwen)
  /model <id>       switch model
  /key <api-key>    store an API key for the current provider (encrypted)
  /forget           remove the stored key of the current provider
  /new              start a new conversation
  /list             list conversations
  /use <id>         continue a conversation
  /delete <id>      delete a conversation
  /status           show provider, model and key state
  /quit             exit
Anything else is sent as a message.
`

type session struct {
	store  *conversation.Store
	kv     conversation.KV
	client *client.Client
	vault  *vault.Vault
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		server    string
		statePath string
		useRedis  bool
	)

	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Terminal client for the Chat Gateway",
		Long:          help,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			v, err := vault.New(cfg.Vault.Secret)
			if err != nil {
				return fmt.Errorf("failed to initialize vault: %w", err)
			}

			kv, closeKV, err := openState(cfg, statePath, useRedis)
			if err != nil {
				return err
			}
			defer closeKV()

			s := newSession(v, kv, client.New(server, nil), cmd.OutOrStdout())
			if err := s.store.Load(cmd.Context(), kv); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: ignoring saved state: %v\n", err)
			}
			return s.repl(cmd.Context(), cmd.InOrStdin())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&server, "server", "http://localhost:8080", "gateway base URL")
	flags.StringVar(&statePath, "state", "chat-state.db", "sqlite file holding provider, model and keys")
	flags.BoolVar(&useRedis, "redis", false, "keep state in Redis (REDIS_ADDR) instead of sqlite")
	return cmd
}

// openState returns the settings store and a func releasing it.
func openState(cfg *config.Config, statePath string, useRedis bool) (conversation.KV, func(), error) {
	if !useRedis {
		sq, err := conversation.OpenSQLiteKV(statePath)
		if err != nil {
			return nil, nil, err
		}
		return sq, func() { sq.Close() }, nil
	}

	redisCfg := storage.DefaultRedisConfig()
	if cfg.Redis.Address != "" {
		redisCfg.Address = cfg.Redis.Address
	}
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	rc, err := storage.NewRedisClient(redisCfg)
	if err != nil {
		return nil, nil, err
	}
	return conversation.NewRedisKV(rc.Client(), "chat_gateway:"), func() { rc.Close() }, nil
}

func newSession(v *vault.Vault, kv conversation.KV, c *client.Client, out io.Writer) *session {
	s := &session{
		store:  conversation.NewStore(),
		kv:     kv,
		client: c,
		vault:  v,
		out:    out,
	}
	s.client.OnChunk = s.printChunk
	return s
}

// repl reads lines until /quit or end of input.
func (s *session) repl(ctx context.Context, in io.Reader) error {
	fmt.Fprint(s.out, help)
	s.status()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		if err := s.handle(ctx, line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *session) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return s.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/provider":
		id, err := providers.ParseProviderID(arg)
		if err != nil {
			return err
		}
		if err := s.store.SetProvider(id); err != nil {
			return err
		}
		cfg, _ := providers.Lookup(id)
		if len(cfg.SupportedModels) > 0 {
			s.store.SetModel(cfg.SupportedModels[0])
		}
		s.status()
	case "/model":
		if err := s.store.SetModel(arg); err != nil {
			return err
		}
		s.status()
	case "/key":
		if arg == "" {
			return errors.New("usage: /key <api-key>")
		}
		material, err := s.vault.Encrypt(arg)
		if err != nil {
			return err
		}
		if err := s.store.SetAPIKey(s.store.Snapshot().CurrentProvider, material); err != nil {
			return err
		}
		s.status()
	case "/forget":
		s.store.RemoveAPIKey(s.store.Snapshot().CurrentProvider)
		s.status()
	case "/new":
		return s.store.SetCurrent("")
	case "/list":
		st := s.store.Snapshot()
		for _, c := range st.Conversations {
			marker := " "
			if c.ID == st.CurrentConversationID {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %s  %s (%d messages)\n", marker, c.ID, c.Title, len(c.Messages))
		}
		return nil
	case "/use":
		return s.store.SetCurrent(arg)
	case "/delete":
		return s.store.DeleteConversation(arg)
	case "/status":
		s.status()
		return nil
	default:
		fmt.Fprint(s.out, help)
		return nil
	}
	return s.store.Save(ctx, s.kv)
}

func (s *session) send(ctx context.Context, text string) error {
	turn := client.TurnFromState(s.store.Snapshot())
	_, err := s.client.Send(ctx, s.store, turn, text)
	fmt.Fprintln(s.out)

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Message)
	}
	return err
}

func (s *session) printChunk(c uistream.Chunk) {
	switch c.Type {
	case uistream.TypeTextDelta:
		fmt.Fprint(s.out, c.Delta)
	case uistream.TypeToolInputAvailable:
		fmt.Fprintf(s.out, "\n[tool %s %v]\n", c.ToolName, c.Input)
	case uistream.TypeToolOutputAvailable:
		fmt.Fprintf(s.out, "[result %v]\n", c.Output)
	}
}

func (s *session) status() {
	st := s.store.Snapshot()
	key := "no key"
	if material := st.APIKeys[st.CurrentProvider]; material != "" {
		key = vault.Mask(material)
		if _, ok := s.vault.Reveal(material); !ok {
			key = vault.DecryptFailedText
		}
	} else if st.CurrentProvider == providers.Google {
		key = "server default"
	}
	fmt.Fprintf(s.out, "provider=%s model=%s key=%s\n", st.CurrentProvider, st.CurrentModel, key)
}
