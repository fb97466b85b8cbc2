package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// RevocationStore is the TTL store behind token invalidation. Every record
// expires on its own; nothing is kept indefinitely.
type RevocationStore interface {
	// Blacklist rejects jti until the given time.
	Blacklist(ctx context.Context, jti string, until time.Time) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)

	// StoreRefresh tracks a live refresh token by its hash.
	StoreRefresh(ctx context.Context, tokenHash string, userID kernel.UserID, until time.Time) error
	// ConsumeRefresh removes a tracked refresh token and reports whether it
	// was present. Two concurrent consumers never both see true.
	ConsumeRefresh(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllRefresh(ctx context.Context, userID kernel.UserID) error
}

// AuditService records authentication events.
type AuditService interface {
	LogLoginAttempt(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, success bool, reason string, ip string, userAgent string)
	LogLogout(ctx context.Context, userID kernel.UserID, sessionID kernel.SessionID)
	LogTokenRefresh(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID)
	LogPasswordChanged(ctx context.Context, userID kernel.UserID, revokedSessions int)
	LogTwoFactorChanged(ctx context.Context, userID kernel.UserID, enabled bool)
	LogAPIKeyChanged(ctx context.Context, userID kernel.UserID, keyID string, action string)
	LogAccountCreated(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, provider string)
}
