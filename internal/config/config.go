// Package config loads runtime settings from the environment, applies the
// service defaults and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultPort            = ":8080"
	defaultOrigin          = "http://localhost:8080"
	defaultMaxMessageSize  = 512
	defaultBurst           = 5
	defaultRefillInterval  = time.Second
	defaultSendBufferSize  = 256
	defaultHistoryCapacity = 1000
	defaultReplayLimit     = 20
	defaultDeliveryTimeout = 2 * time.Second
	defaultMaxContent      = 2000
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds every setting of the chat service.
type Config struct {
	Port string `env:"SERVER_PORT,default=:8080" validate:"required"`
	// Comma separated; "*" allows every origin.
	Origins        string `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	AllowedOrigins []string
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE,default=512"`
	SendBufferSize int   `env:"CONNECTION_BUFFER_SIZE,default=256"`
	// Per-connection token bucket: Burst messages, refilled over RefillInterval.
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`

	HistoryCapacity  int           `env:"CHAT_HISTORY_CAPACITY,default=1000"`
	ReplayLimit      int           `env:"CHAT_REPLAY_LIMIT,default=20"`
	DeliveryTimeout  time.Duration `env:"CHAT_DELIVERY_TIMEOUT,default=2s"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=2000"`

	JWTSecret     string `env:"JWT_SECRET" validate:"required_unless=DevAuthBypass true"`
	DevAuthBypass bool   `env:"DEV_AUTH_BYPASS,default=false"`

	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

var validate = validator.New()

// Default returns a Config populated with default values, with the dev auth
// bypass enabled so it is usable without a secret.
func Default() Config {
	cfg := Config{
		Port:                    defaultPort,
		Origins:                 defaultOrigin,
		MaxMessageSize:          defaultMaxMessageSize,
		SendBufferSize:          defaultSendBufferSize,
		RateLimitBurst:          defaultBurst,
		RateLimitRefillInterval: defaultRefillInterval,
		HistoryCapacity:         defaultHistoryCapacity,
		ReplayLimit:             defaultReplayLimit,
		DeliveryTimeout:         defaultDeliveryTimeout,
		MaxContentLength:        defaultMaxContent,
		DevAuthBypass:           true,
		LogLevel:                "INFO",
		ShutdownTimeout:         defaultShutdownTimeout,
	}
	return Sanitize(cfg)
}

// Load reads an optional .env file, then the process environment.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal environment: %w", err)
	}
	cfg = Sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sanitize replaces non-positive values with defaults and normalizes the
// origin allow-list.
func Sanitize(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultBurst
	}
	if cfg.RateLimitRefillInterval <= 0 {
		cfg.RateLimitRefillInterval = defaultRefillInterval
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = defaultHistoryCapacity
	}
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = defaultReplayLimit
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = defaultMaxContent
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if len(cfg.AllowedOrigins) == 0 && cfg.Origins != "" {
		cfg.AllowedOrigins = ParseOrigins(cfg.Origins)
	}
	return cfg
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParseOrigins splits a comma separated list, trimming blanks.
func ParseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NormalizeOrigin lower-cases scheme and host, dropping any path. It reports
// false for values that are not absolute origins.
func NormalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
