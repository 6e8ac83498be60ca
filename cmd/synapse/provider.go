package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/anthropic"
	"github.com/fwojciec/synapse/gemini"
	"github.com/fwojciec/synapse/openai"
)

// resolveProvider selects and constructs the provider. Without an explicit
// provider it is inferred from whichever single API key is set. The
// returned name labels metrics and the TUI.
func resolveProvider(ctx context.Context, cfg Config) (synapse.Provider, string, error) {
	name := cfg.Provider
	if name == "" {
		var found []string
		if cfg.Keys.Anthropic != "" {
			found = append(found, "anthropic")
		}
		if cfg.Keys.Gemini != "" {
			found = append(found, "gemini")
		}
		if cfg.Keys.OpenAI != "" {
			found = append(found, "openai")
		}
		switch len(found) {
		case 0:
			return nil, "", fmt.Errorf("no API key found: set ANTHROPIC_API_KEY, GEMINI_API_KEY or OPENAI_API_KEY (or use --provider and SYNAPSE_API_KEY)")
		case 1:
			name = found[0]
		default:
			return nil, "", fmt.Errorf("multiple API keys found (%v): use --provider to select", found)
		}
	}

	// An explicit key overrides the provider's own variable.
	key := cfg.APIKey
	switch name {
	case "anthropic":
		if key == "" {
			key = cfg.Keys.Anthropic
		}
		if key == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return anthropic.New(key), name, nil
	case "gemini":
		if key == "" {
			key = cfg.Keys.Gemini
		}
		if key == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY not set")
		}
		var opts []gemini.Option
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		client, err := gemini.New(ctx, key, opts...)
		if err != nil {
			return nil, "", err
		}
		return client, name, nil
	case "openai":
		if key == "" {
			key = cfg.Keys.OpenAI
		}
		if key == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		var opts []openai.Option
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		return openai.New(key, opts...), name, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q: must be \"anthropic\", \"gemini\" or \"openai\"", name)
	}
}
