package config

import (
	"fmt"
	"net/url"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Driver       string        `env:"DRIVER"        envDefault:"memory"`
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT" envDefault:"2s"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	// URL takes precedence over the discrete fields when set.
	URL          string `env:"URL"`
	Host         string `env:"HOST"`
	Port         int    `env:"PORT"          envDefault:"5432"`
	User         string `env:"USER"          envDefault:"scholarsource"`
	Password     string `env:"PASSWORD"`
	PasswordFile string `env:"PASSWORD_FILE"`
	Name         string `env:"NAME"          envDefault:"scholarsource"`
	SSLMode      string `env:"SSL_MODE"      envDefault:"disable"`
	MaxConns     int32  `env:"MAX_CONNS"     envDefault:"10"`

	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// DSN returns the connection string for pgx.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Name,
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SQLiteConfig contains the SQLite database location.
type SQLiteConfig struct {
	Path string `env:"PATH" envDefault:"scholarsource.db"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr         string `env:"ADDR"          envDefault:"localhost:6379"`
	Password     string `env:"PASSWORD"`
	PasswordFile string `env:"PASSWORD_FILE"`
	DB           int    `env:"DB"            envDefault:"0"`
	KeyPrefix    string `env:"KEY_PREFIX"    envDefault:"scholarsource:"`

	// TerminalTTL expires finished jobs; 0 keeps them forever.
	TerminalTTL time.Duration `env:"TERMINAL_TTL" envDefault:"0s"`
}
