// Command synapse is an FX forward trading assistant. A model answers
// trader questions and calls the desk tools (pricing, limits, risk and
// booking) until it can reply.
//
// Usage:
//
//	ANTHROPIC_API_KEY=sk-... synapse chat
//	GEMINI_API_KEY=gk-...    synapse serve --addr :8000
//	echo "price 3M cable" | synapse ask
//
// Every config key can be set in a YAML file (--config) or as a
// SYNAPSE_ environment variable, e.g. SYNAPSE_CONVENTION=marker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/agent"
	bt "github.com/fwojciec/synapse/bubbletea"
	"github.com/fwojciec/synapse/fx"
	synhttp "github.com/fwojciec/synapse/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// providerFunc builds the model provider for a resolved config.
type providerFunc func(ctx context.Context, cfg Config) (synapse.Provider, string, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd(resolveProvider).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "synapse: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	config   string
	provider string
}

func buildRootCmd(newProvider providerFunc) *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "synapse",
		Short:         "FX forward trading assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "Provider: anthropic, gemini, openai (auto-detected from API keys if omitted)")

	setup := func(cmd *cobra.Command) (*app, error) {
		return setupApp(cmd, flags.config, newProvider)
	}
	root.AddCommand(
		buildChatCmd(setup),
		buildServeCmd(setup),
		buildAskCmd(setup),
		buildVersionCmd(),
	)
	return root
}

// setupApp resolves the config and wires the app for a subcommand.
func setupApp(cmd *cobra.Command, configPath string, newProvider providerFunc) (*app, error) {
	cfg, err := loadConfig(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	ctx := cmd.Context()
	provider, name, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, provider, name, logger)
}

func buildChatCmd(setup func(*cobra.Command) (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the desk assistant in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd.Context(), a, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().String("session", "", "Path to session file to resume and save")
	cmd.Flags().String("model", "", "Model ID (provider default if omitted)")
	cmd.Flags().String("convention", "", "Tool calling convention: native, marker")
	return cmd
}

func runChat(ctx context.Context, a *app, stderr io.Writer) error {
	session, err := a.loadSession()
	if err != nil {
		return err
	}
	m := bt.New(tuiAgent(a.loop), session, synapse.DefaultTheme(),
		bt.WithTitle(a.providerName+"/"+string(a.convention)))
	if err := bt.Run(ctx, m); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	path, err := a.saveSession(session)
	if err != nil {
		return err
	}
	if path != "" {
		fmt.Fprintf(stderr, "Session saved to %s\n", path)
	}
	return nil
}

// tuiAgent adapts the loop to the TUI. Failed turns reach the audit log
// here because the TUI shows the error itself instead of FailureText.
func tuiAgent(loop *agent.Loop) bt.AgentFunc {
	return func(ctx context.Context, s *synapse.Session, text string, onEvent func(synapse.Event)) error {
		_, err := loop.ProcessTurn(ctx, s, text, agent.WithEventHandler(onEvent))
		if err != nil && !errors.Is(err, context.Canceled) {
			loop.RecordFailure(ctx, s, err)
		}
		return err
	}
}

func buildServeCmd(setup func(*cobra.Command) (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and speech HTTP API",
		Long: `Serve the trading assistant over HTTP.

The server keeps one conversation and runs one turn at a time. Speech
endpoints are enabled when ELEVENLABS_API_KEY is set. Prometheus metrics
are exposed on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return newServer(a).ListenAndServe(cmd.Context(), a.cfg.HTTP.Addr)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :8000)")
	cmd.Flags().String("model", "", "Model ID (provider default if omitted)")
	cmd.Flags().String("convention", "", "Tool calling convention: native, marker")
	return cmd
}

func newServer(a *app) *synhttp.Server {
	cfg := synhttp.Config{
		Agent:        a.loop,
		SystemPrompt: fx.SystemPrompt,
		Tools:        a.registry.Names(),
		Convention:   a.convention,
		Trades:       a.store,
		Metrics:      promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
		Logger:       componentLogger(a.logger, "http"),
	}
	// A nil *elevenlabs.Client must not become a non-nil interface.
	if a.speech != nil {
		cfg.STT = a.speech
		cfg.TTS = a.speech
	}
	return synhttp.NewServer(cfg)
}

func buildAskCmd(setup func(*cobra.Command) (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the reply",
		Long:  "Ask one question and print the reply. The question is read from stdin when no arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read question: %w", err)
				}
				text = string(data)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return errors.New("no question given")
			}

			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return runAsk(cmd.Context(), a, text, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("session", "", "Path to session file to resume and save")
	cmd.Flags().String("model", "", "Model ID (provider default if omitted)")
	cmd.Flags().String("convention", "", "Tool calling convention: native, marker")
	return cmd
}

func runAsk(ctx context.Context, a *app, text string, out io.Writer) error {
	session, err := a.loadSession()
	if err != nil {
		return err
	}
	reply := a.loop.Respond(ctx, session, text)
	if _, err := fmt.Fprintln(out, reply); err != nil {
		return err
	}
	if a.cfg.SessionPath == "" {
		return nil
	}
	_, err = a.saveSession(session)
	return err
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "synapse %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
