package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// TokenService combines signing with the revocation store. A token is valid
// only when it decodes and its jti is not blacklisted. Store calls carry a
// short timeout and any store failure rejects the token.
type TokenService struct {
	jwt     *JWTService
	store   RevocationStore
	clock   kernel.Clock
	timeout time.Duration
}

func NewTokenService(jwt *JWTService, store RevocationStore, clock kernel.Clock, timeout time.Duration) *TokenService {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &TokenService{jwt: jwt, store: store, clock: clock, timeout: timeout}
}

func (s *TokenService) AccessTokenTTL() time.Duration { return s.jwt.AccessTokenTTL() }

// IssuePair signs an access and a refresh token for p and starts tracking the
// refresh token.
func (s *TokenService) IssuePair(ctx context.Context, p Principal) (*TokenPair, error) {
	access, accessClaims, err := s.jwt.IssueAccessToken(p)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.jwt.IssueRefreshToken(p)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.StoreRefresh(ctx, HashToken(refresh), p.UserID, refreshClaims.ExpiresAt); err != nil {
		return nil, iam.ErrStoreUnavailable(err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.jwt.AccessTokenTTL().Seconds()),
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// ValidateAccessToken decodes token and checks the blacklist.
func (s *TokenService) ValidateAccessToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwt.Decode(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	revoked, err := s.store.IsBlacklisted(ctx, claims.TokenID)
	if err != nil {
		return nil, iam.ErrStoreUnavailable(err)
	}
	if revoked {
		return nil, ErrTokenRevoked()
	}
	return claims, nil
}

// DecodeRefreshToken checks a refresh token's signature and expiry without
// touching the store; the token stays usable.
func (s *TokenService) DecodeRefreshToken(token string) (*TokenClaims, error) {
	return s.jwt.Decode(token, TokenTypeRefresh)
}

// ConsumeRefreshToken decodes a refresh token and stops tracking it. A
// refresh token can be consumed once; the caller issues the replacement pair.
func (s *TokenService) ConsumeRefreshToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwt.Decode(token, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.store.ConsumeRefresh(ctx, HashToken(token))
	if err != nil {
		return nil, iam.ErrStoreUnavailable(err)
	}
	if !ok {
		return nil, ErrTokenRevoked()
	}
	return claims, nil
}

// RevokeRefreshToken stops tracking token. Unknown or undecodable tokens are
// ignored.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, token string) error {
	if _, err := s.jwt.Decode(token, TokenTypeRefresh); err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.store.ConsumeRefresh(ctx, HashToken(token)); err != nil {
		return iam.ErrStoreUnavailable(err)
	}
	return nil
}

// Revoke blacklists jti until its natural expiry. Already expired tokens need
// no record.
func (s *TokenService) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" || !expiresAt.After(s.clock.Now()) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Blacklist(ctx, jti, expiresAt); err != nil {
		return iam.ErrStoreUnavailable(err)
	}
	return nil
}

// RevokeAllRefreshTokens invalidates every refresh token of userID.
func (s *TokenService) RevokeAllRefreshTokens(ctx context.Context, userID kernel.UserID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.RevokeAllRefresh(ctx, userID); err != nil {
		return iam.ErrStoreUnavailable(err)
	}
	return nil
}
