// Package config loads server configuration from the environment and desktop
// companion configuration from file/env via viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DesktopConfig holds the desktop companion settings.
type DesktopConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Version  string        `mapstructure:"version"`
	Logging  LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig controls companion log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// LoadDesktopConfig reads the companion configuration from an optional yaml
// file plus RELAY_-prefixed environment variables.
func LoadDesktopConfig(configPath string) (*DesktopConfig, error) {
	v := viper.New()

	v.SetDefault("endpoint", "ws://localhost:8080/streamer-events")
	v.SetDefault("version", "dev")
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("token", "RELAY_TOKEN")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("desktop")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg DesktopConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the required companion settings.
func (c *DesktopConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("token is required (set RELAY_TOKEN env var)")
	}
	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got %q", c.Endpoint)
	}
	return nil
}
