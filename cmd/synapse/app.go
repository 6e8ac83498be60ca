package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/agent"
	"github.com/fwojciec/synapse/elevenlabs"
	"github.com/fwojciec/synapse/fx"
	"github.com/fwojciec/synapse/goldmark"
	synjson "github.com/fwojciec/synapse/json"
	"github.com/fwojciec/synapse/jsonschema"
	synprom "github.com/fwojciec/synapse/prometheus"
	"github.com/fwojciec/synapse/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg          Config
	logger       *slog.Logger
	providerName string
	convention   synapse.Convention

	store    *sqlite.Store
	registry *synapse.Registry
	loop     *agent.Loop
	speech   *elevenlabs.Client // nil without an ElevenLabs key
	metrics  *prometheus.Registry
}

// newApp wires the store, tools, executor and loop around provider.
func newApp(ctx context.Context, cfg Config, provider synapse.Provider, providerName string, logger *slog.Logger) (*app, error) {
	conv, err := synapse.ParseConvention(cfg.Convention)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		cfg:          cfg,
		logger:       logger,
		providerName: providerName,
		convention:   conv,
		store:        store,
		metrics:      prometheus.NewRegistry(),
	}
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := synprom.NewMetrics(a.metrics)

	deskOpts := []fx.Option{
		fx.WithAuditLog(store),
		fx.WithLogger(componentLogger(logger, "fx")),
	}
	if key := cfg.ElevenLabs.APIKey; key != "" {
		a.speech = elevenlabs.New(key,
			elevenlabs.WithVoice(cfg.ElevenLabs.VoiceID),
			elevenlabs.WithModel(cfg.ElevenLabs.ModelID),
			elevenlabs.WithSTTModel(cfg.ElevenLabs.STTModelID),
			elevenlabs.WithOutputFormat(cfg.ElevenLabs.OutputFormat),
		)
		deskOpts = append(deskOpts, fx.WithSpeech(a.speech, cfg.AudioDir))
	}
	desk := fx.NewDesk(fx.NewMarket(cfg.MarketData), store, deskOpts...)

	a.registry, err = synapse.NewRegistry(desk.Tools()...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("register tools: %w", err)
	}
	executor, err := jsonschema.New(a.registry,
		jsonschema.WithTimeout(cfg.ToolTimeout),
		jsonschema.WithLogger(componentLogger(logger, "executor")),
		jsonschema.WithMetrics(metrics),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("compile tool schemas: %w", err)
	}

	var extractor synapse.Extractor = synapse.NativeExtractor{}
	if conv == synapse.ConventionMarker {
		extractor = goldmark.MarkerExtractor{}
	}
	a.loop = agent.New(provider, extractor, executor, a.registry.Specs(),
		agent.WithMaxRounds(cfg.MaxRounds),
		agent.WithModel(cfg.Model),
		agent.WithProviderName(providerName),
		agent.WithLogger(componentLogger(logger, "agent")),
		agent.WithMetrics(metrics),
		agent.WithAuditLog(store),
	)
	return a, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

// loadSession resumes cfg.SessionPath when it exists and starts a fresh
// desk session otherwise.
func (a *app) loadSession() (*synapse.Session, error) {
	if a.cfg.SessionPath != "" {
		s, err := synjson.Load(a.cfg.SessionPath)
		switch {
		case err == nil:
			return s, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("load session: %w", err)
		}
	}
	return synapse.NewSession(fx.SystemPrompt), nil
}

// saveSession writes a non-empty session to cfg.SessionPath, or under the
// user's home directory when no path is configured. It returns the path
// written, or "" when there was nothing to save.
func (a *app) saveSession(s *synapse.Session) (string, error) {
	if s.Len() == 0 {
		return "", nil
	}
	path := a.cfg.SessionPath
	if path == "" {
		path = defaultSessionPath(s.ID)
	}
	if err := synjson.Save(path, s); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return path, nil
}

func defaultSessionPath(id string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".synapse", "sessions", id+".json")
}
