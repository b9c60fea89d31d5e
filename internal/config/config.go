package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	StoreDriverCSV      = "csv"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	QueueDriverFile  = "file"
	QueueDriverRedis = "redis"
)

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver             string `env:"STORE_DRIVER" envDefault:"csv"`
	DataDir                 string `env:"DATA_DIR" envDefault:"./data"`
	DatabaseURL             string `env:"DATABASE_URL"`
	QueueDriver             string `env:"QUEUE_DRIVER" envDefault:"file"`
	RedisURL                string `env:"REDIS_URL"`
	Timezone                string `env:"TIMEZONE" envDefault:"Local"`
	PollIntervalMs          int    `env:"POLL_INTERVAL_MS" envDefault:"100"`
	DebounceMs              int    `env:"DEBOUNCE_MS" envDefault:"3000"`
	WrongCardCooldownMs     int    `env:"WRONG_CARD_COOLDOWN_MS" envDefault:"2500"`
	SelfRegisterTTLSeconds  int    `env:"SELF_REGISTER_TTL_SECONDS" envDefault:"300"`
	AdminPasswordHash       string `env:"ADMIN_PASSWORD_HASH"`
	DeviceSecret            string `env:"DEVICE_SECRET"`
	DeviceID                string `env:"DEVICE_ID" envDefault:"room-1"`
	ReaderDevice            string `env:"READER_DEVICE"`
	PublicBaseURL           string `env:"PUBLIC_BASE_URL" envDefault:""`
	RegisterRateLimitPerMin int    `env:"REGISTER_RATE_LIMIT_PER_MIN" envDefault:"10"`
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c *Config) WrongCardCooldown() time.Duration {
	return time.Duration(c.WrongCardCooldownMs) * time.Millisecond
}

func (c *Config) SelfRegisterTTL() time.Duration {
	return time.Duration(c.SelfRegisterTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Location resolves the schedule time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// RegisterURL builds the public self-registration link for token.
func (c *Config) RegisterURL(token string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/register/" + token
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverCSV, StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.QueueDriver {
	case QueueDriverFile:
	case QueueDriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when QUEUE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("unknown QUEUE_DRIVER %q", c.QueueDriver)
	}

	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.SelfRegisterTTLSeconds <= 0 {
		return fmt.Errorf("SELF_REGISTER_TTL_SECONDS must be positive")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	} else {
		log.Warn().Msg("ADMIN_PASSWORD_HASH is empty: admin API disabled")
	}

	if c.DeviceSecret == "" {
		log.Warn().Msg("DEVICE_SECRET is empty: device scan endpoint disabled")
	}
	if c.PublicBaseURL == "" {
		log.Warn().Msg("PUBLIC_BASE_URL is empty: self-register links will be relative")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
