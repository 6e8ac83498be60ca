package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/synapse"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. SYNAPSE_HTTP_ADDR.
const envPrefix = "SYNAPSE"

// Config is the resolved runtime configuration.
type Config struct {
	Provider    string           `mapstructure:"provider"`
	Model       string           `mapstructure:"model"`
	APIKey      string           `mapstructure:"api_key"`
	Convention  string           `mapstructure:"convention"`
	MaxRounds   int              `mapstructure:"max_rounds"`
	ToolTimeout time.Duration    `mapstructure:"tool_timeout"`
	SessionPath string           `mapstructure:"session_path"`
	DBPath      string           `mapstructure:"db_path"`
	MarketData  string           `mapstructure:"market_data"`
	AudioDir    string           `mapstructure:"audio_dir"`
	HTTP        HTTPConfig       `mapstructure:"http"`
	Log         LogConfig        `mapstructure:"log"`
	ElevenLabs  ElevenLabsConfig `mapstructure:"elevenlabs"`
	Keys        KeysConfig       `mapstructure:"keys"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ElevenLabsConfig struct {
	APIKey       string `mapstructure:"api_key"`
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	STTModelID   string `mapstructure:"stt_model_id"`
	OutputFormat string `mapstructure:"output_format"`
}

// KeysConfig holds the provider keys read from their standard variables.
type KeysConfig struct {
	Anthropic string `mapstructure:"anthropic"`
	Gemini    string `mapstructure:"gemini"`
	OpenAI    string `mapstructure:"openai"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "")
	v.SetDefault("model", "")
	v.SetDefault("api_key", "")
	v.SetDefault("convention", string(synapse.ConventionNative))
	v.SetDefault("max_rounds", 8)
	v.SetDefault("tool_timeout", "30s")
	v.SetDefault("session_path", "")
	v.SetDefault("db_path", "synapse.db")
	v.SetDefault("market_data", "data/*.csv")
	v.SetDefault("audio_dir", "audio_outputs")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("elevenlabs.api_key", "")
	v.SetDefault("elevenlabs.voice_id", "JBFqnCBsd6RMkjVDRZzb")
	v.SetDefault("elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("elevenlabs.stt_model_id", "scribe_v1")
	v.SetDefault("elevenlabs.output_format", "mp3_44100_128")
	v.SetDefault("keys.anthropic", "")
	v.SetDefault("keys.gemini", "")
	v.SetDefault("keys.openai", "")
}

// loadConfig reads the optional YAML file at path, then environment
// variables, then the flags that were set explicitly.
func loadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"keys.anthropic":     "ANTHROPIC_API_KEY",
		"keys.gemini":        "GEMINI_API_KEY",
		"keys.openai":        "OPENAI_API_KEY",
		"elevenlabs.api_key": "ELEVENLABS_API_KEY",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for _, name := range []string{"provider", "model", "convention", "session", "addr"} {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			key := name
			switch name {
			case "session":
				key = "session_path"
			case "addr":
				key = "http.addr"
			}
			v.Set(key, f.Value.String())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that have no safe fallback.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case "", "anthropic", "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q: must be \"anthropic\", \"gemini\" or \"openai\"", c.Provider))
	}
	if _, err := synapse.ParseConvention(c.Convention); err != nil {
		errs = append(errs, err)
	}
	if c.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("max_rounds must be at least 1, got %d", c.MaxRounds))
	}
	if c.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout must be positive, got %s", c.ToolTimeout))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.MarketData == "" {
		errs = append(errs, errors.New("market_data is required"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q: must be \"text\" or \"json\"", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
