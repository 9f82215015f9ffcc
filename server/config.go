package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cidrotate/clm"
)

// Config is the server configuration, loaded from server.yaml (when
// present) with CIDROTATE_* environment overrides.
type Config struct {
	ListenAddr  string        `mapstructure:"listen_addr"`
	ALPN        string        `mapstructure:"alpn"`
	CertFile    string        `mapstructure:"cert_file"`
	KeyFile     string        `mapstructure:"key_file"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// Tick is the wake-up period of the per-connection rotation loop.
	Tick time.Duration `mapstructure:"tick"`

	// RotationLog is the JSONL file rotation events are appended to.
	RotationLog string `mapstructure:"rotation_log"`

	Rotation RotationConfig `mapstructure:"rotation"`

	Verbose bool `mapstructure:"verbose"`
}

// RotationConfig mirrors clm.Policy in config form.
type RotationConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	Jitter         time.Duration `mapstructure:"jitter"`
	MinGap         time.Duration `mapstructure:"min_gap"`
	RetryOnFailure bool          `mapstructure:"retry_on_failure"`
}

// Policy converts the config section to the runtime policy value.
func (c RotationConfig) Policy() clm.Policy {
	return clm.Policy{
		Interval:       c.Interval,
		Jitter:         c.Jitter,
		MinGap:         c.MinGap,
		RetryOnFailure: c.RetryOnFailure,
	}
}

// LoadConfig reads the config file at path. With an empty path it looks
// for ./server.yaml and falls back to defaults when none exists.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8443")
	v.SetDefault("alpn", "hq-interop")
	v.SetDefault("idle_timeout", 30*time.Second)
	v.SetDefault("tick", clm.DefaultTick)
	v.SetDefault("rotation_log", "rotation_server.jsonl")
	v.SetDefault("rotation.interval", 30*time.Second)
	v.SetDefault("rotation.jitter", 3*time.Second)
	v.SetDefault("rotation.min_gap", 10*time.Second)
	v.SetDefault("rotation.retry_on_failure", false)

	v.SetEnvPrefix("CIDROTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("server")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
