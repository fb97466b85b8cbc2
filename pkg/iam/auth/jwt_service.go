package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// JWTService signs and decodes HS256 tokens. It never touches a store.
type JWTService struct {
	secretKey       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	issuer          string
	clock           kernel.Clock
}

func NewJWTService(secretKey string, accessTokenTTL, refreshTokenTTL time.Duration, issuer string, clock kernel.Clock) *JWTService {
	if accessTokenTTL == 0 {
		accessTokenTTL = time.Hour
	}
	if refreshTokenTTL == 0 {
		refreshTokenTTL = 30 * 24 * time.Hour
	}
	if issuer == "" {
		issuer = "nexus-iam"
	}
	return &JWTService{
		secretKey:       []byte(secretKey),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		issuer:          issuer,
		clock:           clock,
	}
}

func (j *JWTService) AccessTokenTTL() time.Duration  { return j.accessTokenTTL }
func (j *JWTService) RefreshTokenTTL() time.Duration { return j.refreshTokenTTL }

type jwtClaims struct {
	TenantID  string    `json:"tenant_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	SessionID string    `json:"sid,omitempty"`
	Type      TokenType `json:"type"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a token for p valid for the access TTL.
func (j *JWTService) IssueAccessToken(p Principal) (string, *TokenClaims, error) {
	return j.issue(p, TokenTypeAccess, j.accessTokenTTL)
}

// IssueRefreshToken signs a refresh token. It carries no roles.
func (j *JWTService) IssueRefreshToken(p Principal) (string, *TokenClaims, error) {
	p.Roles = nil
	return j.issue(p, TokenTypeRefresh, j.refreshTokenTTL)
}

func (j *JWTService) issue(p Principal, typ TokenType, ttl time.Duration) (string, *TokenClaims, error) {
	// JWT dates have second precision.
	now := j.clock.Now().Truncate(time.Second)
	claims := jwtClaims{
		TenantID:  p.TenantID.String(),
		Email:     p.Email,
		Username:  p.Username,
		Roles:     slices.Clone(p.Roles),
		SessionID: p.SessionID.String(),
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", nil, ErrRegistry.NewWithCause(CodeTokenGenerationFailed, err)
	}
	return signed, claims.toTokenClaims(), nil
}

// Decode verifies signature, issuer and expiry and checks the token type.
// Expired tokens fail with CodeTokenExpired, everything else with
// CodeTokenInvalid.
func (j *JWTService) Decode(tokenString string, want TokenType) (*TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.clock.Now),
	)

	var claims jwtClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return j.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired()
		}
		return nil, ErrRegistry.NewWithCause(CodeTokenInvalid, err)
	}

	if claims.Type != want {
		return nil, ErrTokenInvalid().WithDetail("reason", "unexpected token type")
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid().WithDetail("reason", "missing subject or jti")
	}
	return claims.toTokenClaims(), nil
}

func (c jwtClaims) toTokenClaims() *TokenClaims {
	out := &TokenClaims{
		UserID:    kernel.UserID(c.Subject),
		TenantID:  kernel.TenantID(c.TenantID),
		Email:     c.Email,
		Username:  c.Username,
		Roles:     c.Roles,
		SessionID: kernel.SessionID(c.SessionID),
		TokenID:   c.ID,
		Type:      c.Type,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	if out.Roles == nil {
		out.Roles = []string{}
	}
	return out
}
