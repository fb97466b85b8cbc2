package authinfra

import (
	"context"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct {
	clock kernel.Clock
}

func NewLogxAuditService(clock kernel.Clock) *LogxAuditService {
	return &LogxAuditService{clock: clock}
}

var _ auth.AuditService = (*LogxAuditService)(nil)

func (s *LogxAuditService) entry(ctx context.Context, event string, userID kernel.UserID) *logx.Entry {
	return logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": event,
		"user_id":     userID.String(),
		"timestamp":   s.clock.Now(),
	})
}

func (s *LogxAuditService) LogLoginAttempt(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, success bool, reason string, ip string, userAgent string) {
	e := s.entry(ctx, "login_attempt", userID).WithFields(logx.Fields{
		"tenant_id":  tenantID.String(),
		"success":    success,
		"ip":         ip,
		"user_agent": userAgent,
	})
	if !success {
		e.WithField("reason", reason).Warn("Audit: login failed")
		return
	}
	e.Info("Audit: login succeeded")
}

func (s *LogxAuditService) LogLogout(ctx context.Context, userID kernel.UserID, sessionID kernel.SessionID) {
	s.entry(ctx, "logout", userID).WithField("session_id", sessionID.String()).Info("Audit: logout")
}

func (s *LogxAuditService) LogTokenRefresh(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) {
	s.entry(ctx, "token_refresh", userID).WithField("tenant_id", tenantID.String()).Info("Audit: token refresh")
}

func (s *LogxAuditService) LogPasswordChanged(ctx context.Context, userID kernel.UserID, revokedSessions int) {
	s.entry(ctx, "password_changed", userID).WithField("revoked_sessions", revokedSessions).Info("Audit: password changed")
}

func (s *LogxAuditService) LogTwoFactorChanged(ctx context.Context, userID kernel.UserID, enabled bool) {
	s.entry(ctx, "two_factor_changed", userID).WithField("enabled", enabled).Info("Audit: two-factor changed")
}

func (s *LogxAuditService) LogAPIKeyChanged(ctx context.Context, userID kernel.UserID, keyID string, action string) {
	s.entry(ctx, "api_key_"+action, userID).WithField("key_id", keyID).Info("Audit: API key " + action)
}

func (s *LogxAuditService) LogAccountCreated(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, provider string) {
	s.entry(ctx, "account_created", userID).WithFields(logx.Fields{
		"tenant_id": tenantID.String(),
		"provider":  provider,
	}).Info("Audit: account created")
}
