package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inkwell/internal/store"

	"github.com/spf13/viper"
)

const (
	BackendFile   = "file"
	BackendHybrid = "hybrid"
)

type Config struct {
	DataFile   string     `mapstructure:"data_file"`
	Backend    string     `mapstructure:"backend"`
	RedisAddr  string     `mapstructure:"redis_addr"`
	BadgerPath string     `mapstructure:"badger_path"`
	HTTP       HTTPConfig `mapstructure:"http"`
	Log        LogConfig  `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key so env vars and flags can override it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_file", store.DefaultFile)
	v.SetDefault("backend", BackendFile)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("badger_path", "./badger-data")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// Load reads settings in increasing priority: defaults, the config file
// (explicit path, or inkwell.yaml in . or the XDG config dir), INKWELL_*
// environment variables, and any flags already bound to v.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("inkwell")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "inkwell"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "inkwell"))
		}
	}

	v.SetEnvPrefix("INKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("config: %w", err)
		}
		// Config file not found; ignore and use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.DataFile == "" {
			return fmt.Errorf("config: data_file is required for the file backend")
		}
	case BackendHybrid:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: redis_addr is required for the hybrid backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (must be %s or %s)", c.Backend, BackendFile, BackendHybrid)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	return nil
}
