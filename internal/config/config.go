// internal/config/config.go
//
// Server configuration.
// Values come from the environment (optionally seeded from a .env file) and
// are parsed into Config via struct tags.
//
// Environment variables:
//   APP_ENV (development | production), PORT, LOG_LEVEL, LOG_PRETTY, CLIENT_ORIGIN,
//   STORE_DRIVER (memory | sqlite | bolt), DATABASE_PATH, BOLT_PATH,
//   SESSION_TTL, ID_ATTEMPTS, TOKEN_SECRET, REQUIRE_ROLE_TOKEN,
//   REQUEST_TIMEOUT, SHUTDOWN_TIMEOUT

package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DevTokenSecret is the built-in signing secret. It is public, so it is only
// accepted in development.
const DevTokenSecret = "dev_secret_change_me"

// EnvDevelopment is the APP_ENV value for local development.
const EnvDevelopment = "development"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Config holds server configuration.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	Port      string `env:"PORT" envDefault:"5000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	ClientOrigin string `env:"CLIENT_ORIGIN" envDefault:"http://localhost:3000"`

	StoreDriver  string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/numguess.db"`
	BoltPath     string `env:"BOLT_PATH" envDefault:"./data/numguess.bolt"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	IDAttempts int           `env:"ID_ATTEMPTS" envDefault:"16"`

	TokenSecret      string `env:"TOKEN_SECRET" envDefault:"dev_secret_change_me"` // see DevTokenSecret
	RequireRoleToken bool   `env:"REQUIRE_ROLE_TOKEN" envDefault:"true"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	return cfg, nil
}

// Validate checks values that struct tags cannot express.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverBolt:
	default:
		return errors.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.IDAttempts <= 0 {
		return errors.New("ID_ATTEMPTS must be positive")
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.RequireRoleToken {
		if c.TokenSecret == "" {
			return errors.New("TOKEN_SECRET is required when REQUIRE_ROLE_TOKEN is set")
		}
		if c.UsesDevTokenSecret() && c.AppEnv != EnvDevelopment {
			return errors.Errorf("TOKEN_SECRET must be changed from the default when APP_ENV=%s", c.AppEnv)
		}
	}
	return nil
}

// UsesDevTokenSecret reports whether tokens are signed with the public
// default secret.
func (c Config) UsesDevTokenSecret() bool { return c.TokenSecret == DevTokenSecret }

// SetupLogging applies the log level and output format to the global logger.
func (c Config) SetupLogging() {
	if lvl, err := zerolog.ParseLevel(c.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", c.LogLevel).Msg("unknown log level, keeping default")
	}
	if c.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
