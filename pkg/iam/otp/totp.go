package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"strings"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// Config controls TOTP generation and verification.
type Config struct {
	Issuer          string
	Period          time.Duration
	Skew            uint
	BackupCodeCount int
}

func DefaultConfig() Config {
	return Config{
		Issuer:          "Nexus",
		Period:          30 * time.Second,
		Skew:            1,
		BackupCodeCount: 10,
	}
}

const secretSize = 20

// Service verifies RFC 6238 codes and mints backup codes.
type Service struct {
	cfg   Config
	clock kernel.Clock
}

func NewService(cfg Config, clock kernel.Clock) *Service {
	if cfg.Period <= 0 {
		cfg.Period = 30 * time.Second
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = 10
	}
	if clock == nil {
		clock = kernel.SystemClock
	}
	return &Service{cfg: cfg, clock: clock}
}

// GenerateSecret returns a fresh base32 shared secret.
func (s *Service) GenerateSecret() (string, error) {
	raw := make([]byte, secretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", ErrRegistry.NewWithCause(CodeGenerationFailed, err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI renders the otpauth:// URI an authenticator app scans.
func (s *Service) ProvisioningURI(secret, account string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeGenerationFailed, err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: account,
		Period:      s.period(),
		Digits:      potp.DigitsSix,
		Algorithm:   potp.AlgorithmSHA1,
		Secret:      raw,
	})
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeGenerationFailed, err)
	}
	return key.URL(), nil
}

// Verify reports whether code is valid for secret now, accepting Skew steps
// on either side.
func (s *Service) Verify(secret, code string) bool {
	return s.VerifyAt(secret, code, s.clock.Now())
}

// VerifyAt is Verify at an explicit instant.
func (s *Service) VerifyAt(secret, code string, at time.Time) bool {
	_, ok := s.MatchAt(secret, code, at)
	return ok
}

// Match is Verify that also returns the time step the code belongs to.
// Callers keep the last accepted step so a code is never accepted twice.
func (s *Service) Match(secret, code string) (int64, bool) {
	return s.MatchAt(secret, code, s.clock.Now())
}

// MatchAt is Match at an explicit instant.
func (s *Service) MatchAt(secret, code string, at time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return 0, false
	}
	period := int64(s.period())
	opts := s.validateOpts()
	counter := at.Unix() / period
	skew := int64(s.cfg.Skew)
	for step := counter - skew; step <= counter+skew; step++ {
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// CodeAt returns the code for secret at the given instant.
func (s *Service) CodeAt(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), s.validateOpts())
}

func (s *Service) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.period(),
		Skew:      s.cfg.Skew,
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	}
}

func (s *Service) period() uint {
	return uint(s.cfg.Period / time.Second)
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
}
