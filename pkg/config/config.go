package config

import (
	"fmt"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Alerts   AlertConfig    `envPrefix:"ALERT_"`
}

type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	CORSOrigins  string        `env:"CORS_ORIGINS" envDefault:"*"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	// StoreMode is "postgres" (Postgres + Redis) or "memory" for local runs.
	StoreMode     string `env:"STORE_MODE" envDefault:"postgres"`
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"true"`
}

// AuthConfig carries every identity policy knob.
type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET,required,unset"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"nexus-iam"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION" envDefault:"30m"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"12"`

	TOTPIssuer      string        `env:"TOTP_ISSUER" envDefault:"Nexus"`
	TOTPPeriod      time.Duration `env:"TOTP_PERIOD" envDefault:"30s"`
	TOTPSkew        uint          `env:"TOTP_SKEW" envDefault:"1"`
	BackupCodeCount int           `env:"BACKUP_CODE_COUNT" envDefault:"10"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"500ms"`
	SaveRetries  int           `env:"SAVE_RETRIES" envDefault:"1"`
}

type DatabaseConfig struct {
	Host         string        `env:"HOST" envDefault:"localhost"`
	Port         int           `env:"PORT" envDefault:"5432"`
	User         string        `env:"USER" envDefault:"postgres"`
	Password     string        `env:"PASSWORD,unset"`
	Name         string        `env:"NAME" envDefault:"nexus_iam"`
	SSLMode      string        `env:"SSLMODE" envDefault:"disable"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD,unset"`
	DB       int    `env:"DB" envDefault:"0"`
}

// KafkaConfig enables the Kafka event publisher when Brokers is non-empty.
// Without brokers, domain events are written to the log.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"iam.user-events"`
}

// AlertConfig controls the security alert emails sent on lockouts,
// password changes, 2FA changes and new API keys.
type AlertConfig struct {
	Enabled      bool   `env:"ENABLED" envDefault:"true"`
	From         string `env:"FROM" envDefault:"security@nexus.local"`
	Provider     string `env:"PROVIDER" envDefault:"console"`
	SESRegion    string `env:"SES_REGION"`
	SESConfigSet string `env:"SES_CONFIG_SET"`
	Workers      int    `env:"WORKERS" envDefault:"2"`
	MaxAttempts  int    `env:"MAX_ATTEMPTS" envDefault:"5"`
}

var ErrRegistry = errx.NewRegistry("CONFIG")

var CodeInvalidConfig = ErrRegistry.Register("INVALID", errx.TypeInternal, "Invalid configuration")

// Load parses the environment and checks cross-field constraints.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, ErrRegistry.NewWithCause(CodeInvalidConfig, fmt.Errorf("parse env: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would weaken the identity policy.
func (c *Config) Validate() error {
	a := c.Auth
	switch {
	case len(a.JWTSecret) < 32:
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "JWT_SECRET must be at least 32 bytes")
	case a.AccessTokenTTL <= 0 || a.RefreshTokenTTL <= 0 || a.SessionTTL <= 0:
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "token and session TTLs must be positive")
	case a.LockoutThreshold < 1:
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "LOCKOUT_THRESHOLD must be at least 1")
	case a.StoreTimeout <= 0:
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "STORE_TIMEOUT must be positive")
	case a.SaveRetries < 0:
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "SAVE_RETRIES cannot be negative")
	case c.Server.StoreMode != "postgres" && c.Server.StoreMode != "memory":
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "STORE_MODE must be postgres or memory")
	case c.Alerts.Provider != "console" && c.Alerts.Provider != "ses":
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "ALERT_PROVIDER must be console or ses")
	case c.Alerts.Enabled && c.Alerts.From == "":
		return ErrRegistry.NewWithMessage(CodeInvalidConfig, "ALERT_FROM is required when alerts are enabled")
	}
	return nil
}
