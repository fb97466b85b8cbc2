package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// ============================================================================
// Token Types
// ============================================================================

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Principal is what a token is issued for.
type Principal struct {
	UserID    kernel.UserID
	TenantID  kernel.TenantID
	Email     string
	Username  string
	Roles     []string
	SessionID kernel.SessionID
}

// TokenClaims are the decoded claims of a signed token.
type TokenClaims struct {
	UserID    kernel.UserID    `json:"user_id"`
	TenantID  kernel.TenantID  `json:"tenant_id,omitempty"`
	Email     string           `json:"email,omitempty"`
	Username  string           `json:"username,omitempty"`
	Roles     []string         `json:"roles"`
	SessionID kernel.SessionID `json:"session_id,omitempty"`
	TokenID   string           `json:"jti"`
	Type      TokenType        `json:"type"`
	IssuedAt  time.Time        `json:"iat"`
	ExpiresAt time.Time        `json:"exp"`
}

// AuthContext converts validated access claims into the request principal.
func (c *TokenClaims) AuthContext() *kernel.AuthContext {
	return &kernel.AuthContext{
		UserID:    c.UserID,
		TenantID:  c.TenantID,
		Email:     c.Email,
		Username:  c.Username,
		Roles:     c.Roles,
		SessionID: c.SessionID,
		TokenID:   c.TokenID,
		ExpiresAt: c.ExpiresAt,
	}
}

// TokenPair is the result of a login or a refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// HashToken is the form refresh tokens are tracked under.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

// Expired, invalid and revoked are kept apart for telemetry. Callers outside
// the identity service only ever see iam.ErrInvalidToken.
var (
	CodeTokenExpired          = ErrRegistry.Register("TOKEN_EXPIRED", errx.TypeAuthentication, "Token expired")
	CodeTokenInvalid          = ErrRegistry.Register("TOKEN_INVALID", errx.TypeAuthentication, "Token invalid")
	CodeTokenRevoked          = ErrRegistry.Register("TOKEN_REVOKED", errx.TypeAuthentication, "Token revoked")
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, "Token generation failed")
)

func ErrTokenExpired() *errx.Error {
	return ErrRegistry.New(CodeTokenExpired)
}

func ErrTokenInvalid() *errx.Error {
	return ErrRegistry.New(CodeTokenInvalid)
}

func ErrTokenRevoked() *errx.Error {
	return ErrRegistry.New(CodeTokenRevoked)
}

func ErrTokenGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenGenerationFailed)
}

// FailureReason labels a token error for metrics.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errx.IsCode(err, CodeTokenExpired):
		return "expired"
	case errx.IsCode(err, CodeTokenRevoked):
		return "revoked"
	case errx.TypeOf(err) == errx.TypeUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}
