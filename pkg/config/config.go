package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	ModeReplace = "replace"
	ModeExtend  = "extend"
)

const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendSurreal = "surreal"
	BackendSQLite  = "sqlite"
)

type Config struct {
	Waifu struct {
		SourcePath           string   `yaml:"source_path"`
		SourceMode           string   `yaml:"source_mode"`
		Deduplicate          bool     `yaml:"deduplicate"`
		AcceptSuggestions    bool     `yaml:"accept_suggestions"`
		SuggestionsPath      string   `yaml:"suggestions_path"`
		FightCooldownSeconds int      `yaml:"fight_cooldown_seconds"`
		Admins               []string `yaml:"admins"`
		Franchises           []string `yaml:"franchises"`
	} `yaml:"waifu"`
	Storage struct {
		Backend     string `yaml:"backend"`
		Cache       bool   `yaml:"cache"`
		SQLitePath  string `yaml:"sqlite_path"`
		RedisPrefix string `yaml:"redis_prefix"`
	} `yaml:"storage"`
}

// Secrets are read from the environment (optionally seeded from .env).
type Secrets struct {
	DiscordToken     string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID   string `env:"DISCORD_GUILD_ID"`
	RedisURL         string `env:"REDIS_URL"`
	SurrealHost      string `env:"SURREAL_DB_HOST"`
	SurrealUser      string `env:"SURREAL_DB_USER"`
	SurrealPass      string `env:"SURREAL_DB_PASS"`
	SurrealNamespace string `env:"SURREAL_DB_NAMESPACE" envDefault:"waifu"`
	SurrealDatabase  string `env:"SURREAL_DB_DATABASE" envDefault:"waifu"`
}

// ConfigError reports a configuration value that cannot be used.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s=%q: %s", e.Field, e.Value, e.Reason)
}

func defaults() *Config {
	config := &Config{}
	config.Waifu.SourceMode = ModeExtend
	config.Waifu.Deduplicate = true
	config.Waifu.SuggestionsPath = "waifu-suggestions.txt"
	config.Waifu.FightCooldownSeconds = 300
	config.Storage.Backend = BackendMemory
	config.Storage.SQLitePath = "waifu.db"
	config.Storage.RedisPrefix = "waifu"
	return config
}

func LoadConfig(path string) (*Config, error) {
	config := defaults()

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return config, nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(file, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects values that would only fail later at startup.
func (c *Config) Validate() error {
	switch c.Waifu.SourceMode {
	case ModeReplace, ModeExtend:
	default:
		return &ConfigError{Field: "waifu.source_mode", Value: c.Waifu.SourceMode, Reason: "must be replace or extend"}
	}
	if c.Waifu.SourceMode == ModeReplace && c.Waifu.SourcePath == "" {
		return &ConfigError{Field: "waifu.source_path", Reason: "required when source_mode is replace"}
	}
	if c.Waifu.FightCooldownSeconds < 0 {
		return &ConfigError{Field: "waifu.fight_cooldown_seconds", Value: fmt.Sprint(c.Waifu.FightCooldownSeconds), Reason: "must not be negative"}
	}
	if c.Waifu.AcceptSuggestions && c.Waifu.SuggestionsPath == "" {
		return &ConfigError{Field: "waifu.suggestions_path", Reason: "required when accept_suggestions is set"}
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendRedis:
		if c.Storage.Cache {
			return &ConfigError{Field: "storage.cache", Value: "true", Reason: "only applies to surreal or sqlite backends"}
		}
	case BackendSurreal:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return &ConfigError{Field: "storage.sqlite_path", Reason: "required for sqlite backend"}
		}
	default:
		return &ConfigError{Field: "storage.backend", Value: c.Storage.Backend, Reason: "must be memory, redis, surreal or sqlite"}
	}

	return nil
}

// LoadSecrets reads secrets from the process environment.
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{}
	if err := env.Parse(secrets); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return secrets, nil
}

// UsesRedis reports whether the storage config needs a Redis connection,
// either as the backend itself or as a cache in front of a durable one.
func (c *Config) UsesRedis() bool {
	switch c.Storage.Backend {
	case BackendRedis:
		return true
	case BackendSurreal, BackendSQLite:
		return c.Storage.Cache
	}
	return false
}

// RequireFor checks that the secrets needed by the configured storage are present.
func (s *Secrets) RequireFor(c *Config) error {
	if c.UsesRedis() && s.RedisURL == "" {
		return &ConfigError{Field: "REDIS_URL", Reason: "required for redis storage"}
	}
	if c.Storage.Backend == BackendSurreal {
		if s.SurrealHost == "" {
			return &ConfigError{Field: "SURREAL_DB_HOST", Reason: "required for surreal storage"}
		}
		if s.SurrealUser == "" {
			return &ConfigError{Field: "SURREAL_DB_USER", Reason: "required for surreal storage"}
		}
		if s.SurrealPass == "" {
			return &ConfigError{Field: "SURREAL_DB_PASS", Reason: "required for surreal storage"}
		}
	}
	return nil
}
