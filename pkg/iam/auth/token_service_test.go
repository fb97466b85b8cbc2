package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

const secret = "test-secret-that-is-at-least-32-bytes-long"

var alice = auth.Principal{
	UserID:    "user-alice",
	TenantID:  "tenant-1",
	Email:     "alice@example.com",
	Username:  "alice",
	Roles:     []string{"admin", "team_member"},
	SessionID: "session-1",
}

func newTokens(clock kernel.Clock) (*auth.TokenService, *auth.JWTService) {
	jwtSvc := auth.NewJWTService(secret, time.Hour, 30*24*time.Hour, "nexus-test", clock)
	return auth.NewTokenService(jwtSvc, authinfra.NewMemoryRevocationStore(clock), clock, time.Second), jwtSvc
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := kernel.NewFixedClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	_, jwtSvc := newTokens(clock)

	token, issued, err := jwtSvc.IssueAccessToken(alice)
	require.NoError(t, err)

	claims, err := jwtSvc.Decode(token, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, claims.UserID)
	assert.Equal(t, alice.Roles, claims.Roles)
	assert.Equal(t, alice.TenantID, claims.TenantID)
	assert.Equal(t, alice.SessionID, claims.SessionID)
	assert.Equal(t, issued.TokenID, claims.TokenID)
	assert.NotEmpty(t, claims.TokenID)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt))
}

func TestRefreshTokenTTLAndType(t *testing.T) {
	clock := kernel.NewFixedClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	_, jwtSvc := newTokens(clock)

	token, _, err := jwtSvc.IssueRefreshToken(alice)
	require.NoError(t, err)

	claims, err := jwtSvc.Decode(token, auth.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeRefresh, claims.Type)
	assert.Empty(t, claims.Roles)
	assert.Equal(t, 30*24*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt))

	_, err = jwtSvc.Decode(token, auth.TokenTypeAccess)
	assert.True(t, errx.IsCode(err, auth.CodeTokenInvalid), "refresh token must not pass as access token")
}

func TestDecodeFailures(t *testing.T) {
	clock := kernel.NewFixedClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	_, jwtSvc := newTokens(clock)
	token, _, err := jwtSvc.IssueAccessToken(alice)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := kernel.NewFixedClock(clock.Now().Add(time.Hour + time.Second))
		_, err := auth.NewJWTService(secret, time.Hour, 0, "nexus-test", later).Decode(token, auth.TokenTypeAccess)
		assert.True(t, errx.IsCode(err, auth.CodeTokenExpired))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := auth.NewJWTService("another-secret-that-is-also-32-bytes!!", time.Hour, 0, "nexus-test", clock)
		_, err := other.Decode(token, auth.TokenTypeAccess)
		assert.True(t, errx.IsCode(err, auth.CodeTokenInvalid))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := auth.NewJWTService(secret, time.Hour, 0, "someone-else", clock)
		_, err := other.Decode(token, auth.TokenTypeAccess)
		assert.True(t, errx.IsCode(err, auth.CodeTokenInvalid))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := jwtSvc.Decode("not.a.token", auth.TokenTypeAccess)
		assert.True(t, errx.IsCode(err, auth.CodeTokenInvalid))
	})
}

func TestRevokedTokenIsRejectedBeforeExpiry(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens, jwtSvc := newTokens(clock)

	token, claims, err := jwtSvc.IssueAccessToken(alice)
	require.NoError(t, err)

	_, err = tokens.ValidateAccessToken(ctx, token)
	require.NoError(t, err)

	require.NoError(t, tokens.Revoke(ctx, claims.TokenID, claims.ExpiresAt))
	clock.Advance(time.Minute)

	_, err = tokens.ValidateAccessToken(ctx, token)
	assert.True(t, errx.IsCode(err, auth.CodeTokenRevoked))
	assert.Equal(t, "revoked", auth.FailureReason(err))
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens, _ := newTokens(clock)

	pair, err := tokens.IssuePair(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	claims, err := tokens.ConsumeRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, claims.UserID)

	_, err = tokens.ConsumeRefreshToken(ctx, pair.RefreshToken)
	assert.True(t, errx.IsCode(err, auth.CodeTokenRevoked))
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens, _ := newTokens(clock)

	first, err := tokens.IssuePair(ctx, alice)
	require.NoError(t, err)
	second, err := tokens.IssuePair(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, tokens.RevokeAllRefreshTokens(ctx, alice.UserID))

	_, err = tokens.ConsumeRefreshToken(ctx, first.RefreshToken)
	assert.Error(t, err)
	_, err = tokens.ConsumeRefreshToken(ctx, second.RefreshToken)
	assert.Error(t, err)
}

type brokenStore struct{ auth.RevocationStore }

func (brokenStore) IsBlacklisted(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestValidateFailsClosedWhenStoreIsDown(t *testing.T) {
	clock := kernel.NewFixedClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	jwtSvc := auth.NewJWTService(secret, time.Hour, 0, "nexus-test", clock)
	tokens := auth.NewTokenService(jwtSvc, brokenStore{}, clock, time.Second)

	token, _, err := jwtSvc.IssueAccessToken(alice)
	require.NoError(t, err)

	_, err = tokens.ValidateAccessToken(context.Background(), token)
	assert.True(t, errx.IsCode(err, iam.CodeStoreUnavailable))
}
