package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Format represents the output format
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config holds the logger configuration
type Config struct {
	Level        Level
	Format       Format
	EnableColors bool
	EnableCaller bool
	TimeFormat   string
	Output       io.Writer

	// RedactKeys lists field names whose values are never written.
	// Matching is case-insensitive.
	RedactKeys []string
}

// DefaultRedactKeys are the credential-bearing field names masked by default.
var DefaultRedactKeys = []string{
	"password",
	"current_password",
	"new_password",
	"secret",
	"two_factor_secret",
	"token",
	"access_token",
	"refresh_token",
	"backup_codes",
	"key",
	"api_key",
	"authorization",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:        LevelInfo,
		Format:       FormatConsole,
		EnableColors: true,
		TimeFormat:   time.RFC3339,
		Output:       os.Stdout,
		RedactKeys:   DefaultRedactKeys,
	}
}

type envConfig struct {
	Level  Level  `env:"LOG_LEVEL" envDefault:"info"`
	Format Format `env:"LOG_FORMAT" envDefault:"console"`
	Color  bool   `env:"LOG_COLOR" envDefault:"true"`
	Caller bool   `env:"LOG_CALLER" envDefault:"false"`
}

// LoadFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_COLOR and LOG_CALLER. A
// malformed value leaves the default in place.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return config
	}
	config.Level = ec.Level
	if strings.EqualFold(string(ec.Format), string(FormatJSON)) {
		config.Format = FormatJSON
	}
	config.EnableColors = ec.Color
	config.EnableCaller = ec.Caller
	return config
}
