// Package config loads service configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file in the working directory. Secrets may be supplied through
// *_FILE variables pointing at Docker or Kubernetes secret mounts.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the root configuration of the ScholarSource API.
type Config struct {
	HTTP       HTTPConfig
	Log        LogConfig        `envPrefix:"LOG_"`
	Store      StoreConfig      `envPrefix:"STORE_"`
	Postgres   PostgresConfig   `envPrefix:"DB_"`
	SQLite     SQLiteConfig     `envPrefix:"SQLITE_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Engine     EngineConfig     `envPrefix:"ENGINE_"`
	Runner     RunnerConfig     `envPrefix:"RUNNER_"`
	Notify     NotifyConfig
	Dispatcher DispatcherConfig `envPrefix:"DISPATCHER_"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.resolveSecrets()
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveSecrets lets *_FILE variables override inline secrets.
func (c *Config) resolveSecrets() {
	if s := GetSecretFile(c.Postgres.PasswordFile); s != "" {
		c.Postgres.Password = s
	}
	if s := GetSecretFile(c.Redis.PasswordFile); s != "" {
		c.Redis.Password = s
	}
	if s := GetSecretFile(c.Notify.ResendAPIKeyFile); s != "" {
		c.Notify.ResendAPIKey = s
	}
	if s := GetSecretFile(c.Notify.WebhookKeyFile); s != "" {
		c.Notify.WebhookKey = s
	}
}

// Sanitize applies guardrails to values loaded from env.
func (c *Config) Sanitize() {
	c.HTTP.Sanitize()
	c.Runner.Sanitize()
	c.Engine.Sanitize()
	c.Dispatcher.Sanitize()
	if c.Engine.ToolsURL == "" {
		c.Engine.ToolsURL = c.HTTP.ToolsBaseURL()
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StoreRedis:
	case StorePostgres:
		if c.Postgres.URL == "" && c.Postgres.Host == "" {
			return errors.New("config: DB_URL or DB_HOST is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Engine.Driver {
	case EngineDocker:
		if c.Engine.Image == "" {
			return errors.New("config: ENGINE_IMAGE is required for the docker engine")
		}
	case EngineRemote:
		if c.Engine.URL == "" {
			return errors.New("config: ENGINE_URL is required for the remote engine")
		}
	default:
		return fmt.Errorf("config: unknown ENGINE_DRIVER %q", c.Engine.Driver)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}
