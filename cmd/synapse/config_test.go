package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/synapse"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Convention:  "native",
		MaxRounds:   8,
		ToolTimeout: 30 * time.Second,
		DBPath:      "synapse.db",
		MarketData:  "data/*.csv",
		HTTP:        HTTPConfig{Addr: ":8000"},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "native", cfg.Convention)
	assert.Equal(t, 8, cfg.MaxRounds)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "synapse.db", cfg.DBPath)
	assert.Equal(t, "data/*.csv", cfg.MarketData)
	assert.Equal(t, "audio_outputs", cfg.AudioDir)
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, "JBFqnCBsd6RMkjVDRZzb", cfg.ElevenLabs.VoiceID)
	assert.Equal(t, "scribe_v1", cfg.ElevenLabs.STTModelID)
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "synapse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: gemini
convention: marker
max_rounds: 3
tool_timeout: 5s
http:
  addr: 127.0.0.1:9000
elevenlabs:
  voice_id: voice-2
log:
  level: debug
  format: json
`), 0o600))

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "marker", cfg.Convention)
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "voice-2", cfg.ElevenLabs.VoiceID)
	assert.Equal(t, "eleven_multilingual_v2", cfg.ElevenLabs.ModelID)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// Environment tests cannot run in parallel.
func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("SYNAPSE_MAX_ROUNDS", "4")
	t.Setenv("SYNAPSE_HTTP_ADDR", ":9999")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("ELEVENLABS_API_KEY", "xi-test")

	cfg, err := loadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxRounds)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "sk-test", cfg.Keys.Anthropic)
	assert.Equal(t, "xi-test", cfg.ElevenLabs.APIKey)
}

func TestLoadConfig_Flags(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "synapse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: gemini\nconvention: native\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("provider", "", "")
	flags.String("convention", "", "")
	flags.String("model", "", "")
	flags.String("addr", "", "")
	require.NoError(t, flags.Parse([]string{"--provider", "openai", "--addr", ":7000"}))

	cfg, err := loadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "native", cfg.Convention, "unset flags keep the file value")
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Empty(t, cfg.Model)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty provider", func(c *Config) { c.Provider = "" }, ""},
		{"unknown provider", func(c *Config) { c.Provider = "mistral" }, `unknown provider "mistral"`},
		{"unknown convention", func(c *Config) { c.Convention = "xml" }, `unknown calling convention "xml"`},
		{"zero rounds", func(c *Config) { c.MaxRounds = 0 }, "max_rounds must be at least 1"},
		{"zero timeout", func(c *Config) { c.ToolTimeout = 0 }, "tool_timeout must be positive"},
		{"no db", func(c *Config) { c.DBPath = "" }, "db_path is required"},
		{"no market data", func(c *Config) { c.MarketData = "" }, "market_data is required"},
		{"no addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr is required"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, `unknown log.level "loud"`},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, `unknown log.format "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.MaxRounds = 0
		cfg.Convention = "xml"
		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, synapse.ErrValidation)
		assert.Contains(t, err.Error(), "max_rounds")
	})
}
