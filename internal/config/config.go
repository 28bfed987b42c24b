// Package config loads the agent configuration from LOGAI_* environment
// variables. A double underscore separates nested keys, so
// LOGAI_SHIPPING__TARGET_ID sets shipping.target_id.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/Arun-Labana/logai-sdk/internal/daemon"
	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/server"
)

const envPrefix = "LOGAI_"

const (
	SinkSupabase = "supabase"
	SinkLoki     = "loki"
	SinkPostgres = "postgres"
	SinkS3       = "s3"
)

type Config struct {
	Sink string `koanf:"sink" validate:"oneof=supabase loki postgres s3"`

	// Shipping is checked by the processor on Start. A missing endpoint or
	// credential leaves shipping off without failing the agent.
	Shipping logging.Config `koanf:"shipping" validate:"-"`

	Tail   TailConfig   `koanf:"tail"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
}

type TailConfig struct {
	Enabled bool `koanf:"enabled"`

	daemon.Config `koanf:",squash"`
}

type ServerConfig struct {
	Enabled bool `koanf:"enabled"`

	server.Config `koanf:",squash"`
}

// LogConfig controls the agent's own diagnostics.
type LogConfig struct {
	Level      string `koanf:"level" validate:"oneof=debug info warn error"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
}

func Default() Config {
	return Config{
		Sink:     SinkSupabase,
		Shipping: logging.DefaultConfig(),
		Tail: TailConfig{
			Config: daemon.DefaultConfig(),
		},
		Server: ServerConfig{
			Enabled: true,
			Config:  server.Config{Addr: ":8080", BodyLimit: "1M"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load reads LOGAI_* variables over Default and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	cfg := Default()
	err = k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
