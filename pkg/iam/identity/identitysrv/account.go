package identitysrv

import (
	"context"

	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/otp"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

// ============================================================================
// Password
// ============================================================================

// ChangePassword replaces the caller's password. Other sessions are revoked;
// with KeepCurrentSession=false the calling session and every refresh token
// go too.
func (s *IdentityService) ChangePassword(ctx context.Context, ac *kernel.AuthContext, req identity.ChangePasswordRequest) (err error) {
	ctx, span := s.startSpan(ctx, "ChangePassword")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return err
	}
	if err := identity.Validate(req); err != nil {
		return err
	}
	keepCurrent := req.KeepCurrentSession == nil || *req.KeepCurrentSession

	var revoked []kernel.SessionID
	_, err = s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		if !u.VerifyPassword(s.passwords, req.CurrentPassword) {
			return identity.ErrCurrentPasswordIncorrect()
		}
		now := s.clock.Now()
		if err := u.ChangePassword(s.passwords, req.NewPassword, id, now); err != nil {
			return err
		}
		if keepCurrent {
			revoked = u.RevokeOtherSessions(ac.SessionID, now)
		} else {
			revoked = u.RevokeAllSessions(now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, id, revoked...); err != nil {
		return err
	}
	if !keepCurrent {
		if err := s.tokens.RevokeAllRefreshTokens(ctx, id); err != nil {
			return err
		}
		if err := s.tokens.Revoke(ctx, ac.TokenID, ac.ExpiresAt); err != nil {
			return err
		}
	}

	s.audit.LogPasswordChanged(ctx, id, len(revoked))
	return nil
}

// ============================================================================
// Two-factor
// ============================================================================

// SetupTwoFactor generates a secret and stores it as pending until
// EnableTwoFactor proves possession.
func (s *IdentityService) SetupTwoFactor(ctx context.Context, ac *kernel.AuthContext) (_ *identity.TwoFactorSetupResponse, err error) {
	ctx, span := s.startSpan(ctx, "SetupTwoFactor")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return nil, err
	}
	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	u, err := s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		return u.BeginTwoFactorSetup(secret, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	uri, err := s.totp.ProvisioningURI(secret, u.Email())
	if err != nil {
		return nil, err
	}
	return &identity.TwoFactorSetupResponse{Secret: secret, QRURI: uri}, nil
}

// EnableTwoFactor turns 2FA on once the caller proves a current code. The
// backup codes are returned in plaintext exactly once.
func (s *IdentityService) EnableTwoFactor(ctx context.Context, ac *kernel.AuthContext, req identity.EnableTwoFactorRequest) (_ *identity.EnableTwoFactorResponse, err error) {
	ctx, span := s.startSpan(ctx, "EnableTwoFactor")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return nil, err
	}
	if err := identity.Validate(req); err != nil {
		return nil, err
	}
	codes, err := s.totp.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}

	var secret string
	u, err := s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		secret = req.Secret
		if secret == "" {
			secret = u.PendingTwoFactorSecret()
		}
		if secret == "" {
			return otp.ErrSecretRequired()
		}
		now := s.clock.Now()
		step, ok := s.totp.Match(secret, req.TOTPCode)
		if !ok || !u.AcceptTOTPStep(step, now) {
			return identity.ErrInvalidTwoFactor()
		}
		return u.EnableTwoFactor(secret, otp.HashBackupCodes(codes), now)
	})
	if err != nil {
		return nil, err
	}

	uri, err := s.totp.ProvisioningURI(secret, u.Email())
	if err != nil {
		return nil, err
	}
	s.audit.LogTwoFactorChanged(ctx, id, true)
	return &identity.EnableTwoFactorResponse{BackupCodes: codes, QRURI: uri}, nil
}

// DisableTwoFactor requires the account password.
func (s *IdentityService) DisableTwoFactor(ctx context.Context, ac *kernel.AuthContext, req identity.DisableTwoFactorRequest) (err error) {
	ctx, span := s.startSpan(ctx, "DisableTwoFactor")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return err
	}
	if err := identity.Validate(req); err != nil {
		return err
	}
	_, err = s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		if !u.VerifyPassword(s.passwords, req.Password) {
			return identity.ErrCurrentPasswordIncorrect()
		}
		return u.DisableTwoFactor(s.clock.Now())
	})
	if err != nil {
		return err
	}
	s.audit.LogTwoFactorChanged(ctx, id, false)
	return nil
}

// ============================================================================
// API keys
// ============================================================================

// CreateAPIKey issues a key for the caller. A key can only carry permissions
// its creator holds at creation time.
func (s *IdentityService) CreateAPIKey(ctx context.Context, ac *kernel.AuthContext, req identity.CreateAPIKeyRequest) (_ *identity.CreateAPIKeyResponse, err error) {
	ctx, span := s.startSpan(ctx, "CreateAPIKey")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return nil, err
	}
	if err := identity.Validate(req); err != nil {
		return nil, err
	}

	params := apikey.IssueParams{
		Name:        req.Name,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		RateLimit:   req.RateLimit,
		AllowedIPs:  req.AllowedIPs,
	}
	for _, in := range req.Permissions {
		params.Permissions = append(params.Permissions, in.ToPermission())
	}

	var (
		key       apikey.APIKey
		plaintext string
	)
	_, err = s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		for _, p := range params.Permissions {
			if !u.HasPermission(s.engine, p.ResourceType, p.PermissionType, p.ResourceID) {
				return identity.ErrPermissionNotHeld().
					WithDetail("resource_type", string(p.ResourceType)).
					WithDetail("permission_type", string(p.PermissionType))
			}
		}
		var err error
		key, plaintext, err = u.CreateAPIKey(params, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAPIKeyChanged(ctx, id, key.ID, "created")
	return &identity.CreateAPIKeyResponse{
		KeyID:        key.ID,
		PlaintextKey: plaintext,
		Permissions:  key.Permissions,
		APIKey:       key.ToDTO(),
		Message:      "Store this key now; it will not be shown again",
	}, nil
}

func (s *IdentityService) RevokeAPIKey(ctx context.Context, ac *kernel.AuthContext, keyID string) (err error) {
	ctx, span := s.startSpan(ctx, "RevokeAPIKey")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		return u.RevokeAPIKey(keyID, s.clock.Now())
	})
	if err != nil {
		return err
	}
	s.audit.LogAPIKeyChanged(ctx, id, keyID, "revoked")
	return nil
}

func (s *IdentityService) ListAPIKeys(ctx context.Context, ac *kernel.AuthContext) ([]apikey.DTO, error) {
	id, err := callerID(ac)
	if err != nil {
		return nil, err
	}
	u, err := s.loadCaller(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := u.APIKeys()
	out := make([]apikey.DTO, len(keys))
	for i, k := range keys {
		out[i] = k.ToDTO()
	}
	return out, nil
}

// ============================================================================
// Sessions and profile
// ============================================================================

// GetMe returns the caller's own view. API key callers see their owner.
// Accounts that can no longer sign in are refused.
func (s *IdentityService) GetMe(ctx context.Context, ac *kernel.AuthContext) (*identity.UserDTO, error) {
	if !ac.IsValid() {
		return nil, iam.ErrUnauthorized()
	}
	u, err := s.loadCaller(ctx, ac.UserID)
	if err != nil {
		return nil, err
	}
	dto := identity.ToUserDTO(u)
	return &dto, nil
}

func (s *IdentityService) ListSessions(ctx context.Context, ac *kernel.AuthContext) ([]identity.SessionDTO, error) {
	id, err := callerID(ac)
	if err != nil {
		return nil, err
	}
	u, err := s.loadCaller(ctx, id)
	if err != nil {
		return nil, err
	}
	active := u.ActiveSessions(s.clock.Now())
	out := make([]identity.SessionDTO, len(active))
	for i, sess := range active {
		out[i] = identity.SessionDTO{
			ID:             sess.ID,
			CreatedAt:      sess.CreatedAt,
			ExpiresAt:      sess.ExpiresAt,
			LastActivityAt: sess.LastActivityAt,
			Client:         sess.Client,
			Current:        sess.ID == ac.SessionID,
		}
	}
	return out, nil
}

// ExtendSession pushes the caller's current session out by the configured
// session TTL.
func (s *IdentityService) ExtendSession(ctx context.Context, ac *kernel.AuthContext) (_ *identity.SessionDTO, err error) {
	ctx, span := s.startSpan(ctx, "ExtendSession")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return nil, err
	}
	if ac.SessionID.IsEmpty() {
		return nil, user.ErrSessionNotFound()
	}

	var sess user.UserSession
	_, err = s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		var err error
		sess, err = u.ExtendSession(ac.SessionID, s.cfg.SessionTTL, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Extend(ctx, sess); err != nil {
		logx.WithContext(ctx).WithError(err).Error("failed to extend session in store")
		return nil, err
	}
	return &identity.SessionDTO{
		ID:             sess.ID,
		CreatedAt:      sess.CreatedAt,
		ExpiresAt:      sess.ExpiresAt,
		LastActivityAt: sess.LastActivityAt,
		Client:         sess.Client,
		Current:        true,
	}, nil
}

// RevokeSession ends one of the caller's sessions.
func (s *IdentityService) RevokeSession(ctx context.Context, ac *kernel.AuthContext, sid kernel.SessionID) (err error) {
	ctx, span := s.startSpan(ctx, "RevokeSession")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, id, func(u *user.User) error {
		if err := requireActive(u); err != nil {
			return err
		}
		if _, ok := u.Session(sid); !ok {
			return user.ErrSessionNotFound()
		}
		u.RevokeSession(sid, s.clock.Now())
		return nil
	})
	if err != nil {
		return err
	}
	return s.sessions.Revoke(ctx, id, sid)
}
