package identitysrv

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

// Register creates a user in PendingVerification.
func (s *IdentityService) Register(ctx context.Context, req identity.RegisterRequest) (_ *identity.UserDTO, err error) {
	ctx, span := s.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	if err := identity.Validate(req); err != nil {
		return nil, err
	}

	u, err := user.Register(s.passwords, user.RegisterParams{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		TenantID:  kernel.TenantID(req.TenantID),
		Provider:  iam.AuthProvider(req.Provider),
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, err
	}
	s.publish(ctx, u.PullEvents())
	s.audit.LogAccountCreated(ctx, u.ID(), u.TenantID(), string(u.Provider()))

	dto := identity.ToUserDTO(u)
	return &dto, nil
}

// findByLogin accepts either an email or a username.
func (s *IdentityService) findByLogin(ctx context.Context, login string) (*user.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return s.users.FindByEmail(ctx, login)
	}
	return s.users.FindByUsername(ctx, login)
}

// Login authenticates with a password and, when enabled, a second factor.
// Unknown users, wrong passwords, locked and disabled accounts all fail with
// the same error; only the audit log and metrics tell them apart.
func (s *IdentityService) Login(ctx context.Context, req identity.LoginRequest) (_ *identity.LoginResponse, err error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer func() { endSpan(span, err) }()

	if err := identity.Validate(req); err != nil {
		return nil, err
	}

	found, err := s.findByLogin(ctx, req.EmailOrUsername)
	if err != nil {
		if !errx.IsCode(err, user.CodeUserNotFound) {
			return nil, err
		}
		// equalize timing with a real verification
		s.passwords.Verify(req.Password, "")
		s.loginFailed(ctx, "", "", "unknown_user", req.Client)
		return nil, identity.ErrInvalidCredentials()
	}
	span.SetAttributes(attribute.String("user.id", found.ID().String()))

	var (
		outcome string
		sess    user.UserSession
	)
	u, err := s.mutate(ctx, found.ID(), func(u *user.User) error {
		now := s.clock.Now()
		u.ReleaseExpiredLock(now)
		passwordOK := u.VerifyPassword(s.passwords, req.Password)

		switch {
		case u.IsLocked(now):
			outcome = "locked"
			return keep(identity.ErrInvalidCredentials())
		case !passwordOK:
			outcome = "invalid_credentials"
			if u.RecordFailedLogin(s.cfg.LockoutThreshold, s.cfg.LockoutDuration, now) {
				identity.LockoutsTotal.Inc()
			}
			return keep(identity.ErrInvalidCredentials())
		case !u.Status().CanAuthenticate():
			outcome = "inactive"
			return keep(identity.ErrInvalidCredentials())
		}

		if u.TwoFactorEnabled() {
			if req.TOTPCode == "" {
				outcome = "requires_2fa"
				return nil
			}
			step, ok := s.totp.Match(u.TwoFactorSecret(), req.TOTPCode)
			if !(ok && u.AcceptTOTPStep(step, now)) && !u.ConsumeBackupCode(req.TOTPCode, now) {
				outcome = "invalid_2fa"
				if u.RecordFailedLogin(s.cfg.LockoutThreshold, s.cfg.LockoutDuration, now) {
					identity.LockoutsTotal.Inc()
				}
				return keep(identity.ErrInvalidTwoFactor())
			}
		}

		outcome = "success"
		sess = u.CreateSession(s.cfg.SessionTTL, user.ClientMetadata{
			IPAddress: req.Client.IPAddress,
			UserAgent: req.Client.UserAgent,
		}, now)
		return nil
	})
	if err != nil {
		if outcome != "" && outcome != "success" {
			s.loginFailed(ctx, found.ID(), found.TenantID(), outcome, req.Client)
		}
		return nil, err
	}

	if outcome == "requires_2fa" {
		identity.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
		return &identity.LoginResponse{Requires2FA: true, UserID: u.ID()}, nil
	}

	// The session and tokens are written after the user is saved. A failure
	// here leaves the saved login in place and is reported as unavailable.
	if err := s.sessions.Start(ctx, sess); err != nil {
		logx.WithContext(ctx).WithError(err).Error("failed to record session after login")
		return nil, err
	}
	pair, err := s.tokens.IssuePair(ctx, principalOf(u, sess.ID))
	if err != nil {
		return nil, err
	}

	identity.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	s.audit.LogLoginAttempt(ctx, u.ID(), u.TenantID(), true, "", req.Client.IPAddress, req.Client.UserAgent)

	dto := identity.ToUserDTO(u)
	return &identity.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		SessionID:    sess.ID,
		User:         &dto,
	}, nil
}

func (s *IdentityService) loginFailed(ctx context.Context, id kernel.UserID, tenant kernel.TenantID, reason string, client identity.ClientInfo) {
	identity.LoginAttemptsTotal.WithLabelValues(reason).Inc()
	s.audit.LogLoginAttempt(ctx, id, tenant, false, reason, client.IPAddress, client.UserAgent)
}

// Refresh rotates a refresh token: the presented token is consumed before the
// new pair is issued, so it can never be used twice. The account and session
// are checked first; a refusal there leaves the token unconsumed.
func (s *IdentityService) Refresh(ctx context.Context, req identity.RefreshRequest) (_ *identity.TokenResponse, err error) {
	ctx, span := s.startSpan(ctx, "Refresh")
	defer func() { endSpan(span, err) }()

	if err := identity.Validate(req); err != nil {
		return nil, err
	}

	claims, err := s.tokens.DecodeRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, opaqueTokenError(err)
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errx.IsCode(err, user.CodeUserNotFound) {
			return nil, iam.ErrInvalidToken()
		}
		return nil, err
	}
	now := s.clock.Now()
	if !u.Status().CanAuthenticate() || u.IsLocked(now) {
		return nil, iam.ErrInvalidToken()
	}
	if !claims.SessionID.IsEmpty() {
		if _, err := s.sessions.Validate(ctx, claims.SessionID); err != nil {
			return nil, opaqueTokenError(err)
		}
	}

	if _, err := s.tokens.ConsumeRefreshToken(ctx, req.RefreshToken); err != nil {
		return nil, opaqueTokenError(err)
	}

	pair, err := s.tokens.IssuePair(ctx, principalOf(u, claims.SessionID))
	if err != nil {
		return nil, err
	}
	s.audit.LogTokenRefresh(ctx, u.ID(), u.TenantID())

	return &identity.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// Logout revokes the session and blacklists the caller's access token. A
// refresh token in the request is revoked too.
func (s *IdentityService) Logout(ctx context.Context, ac *kernel.AuthContext, req identity.LogoutRequest) (err error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	id, err := callerID(ac)
	if err != nil {
		return err
	}

	sid := ac.SessionID
	if req.SessionID != "" {
		sid = kernel.SessionID(req.SessionID)
	}

	if !sid.IsEmpty() {
		_, err := s.mutate(ctx, id, func(u *user.User) error {
			if _, ok := u.Session(sid); !ok {
				return user.ErrSessionNotFound()
			}
			u.RevokeSession(sid, s.clock.Now())
			return nil
		})
		if err != nil {
			return err
		}
		if err := s.sessions.Revoke(ctx, id, sid); err != nil {
			return err
		}
	}

	if err := s.tokens.Revoke(ctx, ac.TokenID, ac.ExpiresAt); err != nil {
		return err
	}
	if req.AccessToken != "" {
		if other, err := s.tokens.ValidateAccessToken(ctx, req.AccessToken); err == nil && other.UserID == id {
			if err := s.tokens.Revoke(ctx, other.TokenID, other.ExpiresAt); err != nil {
				return err
			}
		}
	}
	if req.RefreshToken != "" {
		if err := s.tokens.RevokeRefreshToken(ctx, req.RefreshToken); err != nil {
			return err
		}
	}

	s.audit.LogLogout(ctx, id, sid)
	return nil
}

// ValidateAccessToken is the token check used by the middleware. A token
// whose session has been revoked or has expired is rejected with it. Failure
// kinds are counted separately and then collapsed into one error.
func (s *IdentityService) ValidateAccessToken(ctx context.Context, token string) (*auth.TokenClaims, error) {
	claims, err := s.tokens.ValidateAccessToken(ctx, token)
	if err == nil && !claims.SessionID.IsEmpty() {
		if _, serr := s.sessions.Validate(ctx, claims.SessionID); serr != nil {
			err = serr
		}
	}
	identity.TokenValidationTotal.WithLabelValues(auth.FailureReason(err)).Inc()
	if err != nil {
		return nil, opaqueTokenError(err)
	}
	return claims, nil
}

// ValidateToken answers service-to-service token checks. It never fails;
// anything but a valid token is reported as {valid:false}.
func (s *IdentityService) ValidateToken(ctx context.Context, req identity.ValidateTokenRequest) identity.ValidateTokenResponse {
	ctx, span := s.startSpan(ctx, "ValidateToken")
	defer span.End()

	claims, err := s.ValidateAccessToken(ctx, req.Token)
	if err != nil {
		return identity.ValidateTokenResponse{Valid: false}
	}
	exp := claims.ExpiresAt
	return identity.ValidateTokenResponse{
		Valid:     true,
		Subject:   claims.UserID,
		Roles:     claims.Roles,
		TenantID:  claims.TenantID,
		ExpiresAt: &exp,
	}
}

// opaqueTokenError keeps store outages visible and hides every other reason.
func opaqueTokenError(err error) error {
	if errx.TypeOf(err) == errx.TypeUnavailable {
		return err
	}
	return iam.ErrInvalidToken()
}
