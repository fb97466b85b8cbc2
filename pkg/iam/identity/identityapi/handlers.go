package identityapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity/identitysrv"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// IdentityHandlers exposes the identity use cases over HTTP.
type IdentityHandlers struct {
	service *identitysrv.IdentityService
	// SecureCookies marks the access token cookie Secure.
	SecureCookies bool
}

func NewIdentityHandlers(service *identitysrv.IdentityService) *IdentityHandlers {
	return &IdentityHandlers{service: service, SecureCookies: true}
}

// RegisterRoutes mounts every identity route on router.
//
//	/auth/*      registration, login, tokens and the caller's own account
//	/api-keys/*  the caller's machine credentials
//	/users/*     administration, guarded by permissions on the user resource
func (h *IdentityHandlers) RegisterRoutes(router fiber.Router, mw *auth.TokenMiddleware) {
	a := router.Group("/auth")
	a.Post("/register", h.Register)
	a.Post("/login", h.Login)
	a.Post("/token/refresh", h.Refresh)
	a.Post("/token/validate", h.ValidateToken)

	authed := a.Group("", mw.Authenticate())
	authed.Post("/logout", h.Logout)
	authed.Get("/me", h.Me)
	authed.Get("/permissions", h.MyPermissions)
	authed.Post("/authorize", h.Authorize)
	authed.Post("/password/change", h.ChangePassword)
	authed.Post("/2fa/setup", h.SetupTwoFactor)
	authed.Post("/2fa/enable", h.EnableTwoFactor)
	authed.Post("/2fa/disable", h.DisableTwoFactor)
	authed.Get("/sessions", h.ListSessions)
	authed.Post("/sessions/extend", h.ExtendSession)
	authed.Delete("/sessions/:id", h.RevokeSession)

	keys := router.Group("/api-keys", mw.Authenticate())
	keys.Post("/", h.CreateAPIKey)
	keys.Get("/", h.ListAPIKeys)
	keys.Delete("/:id", h.RevokeAPIKey)

	users := router.Group("/users", mw.Authenticate())
	read := mw.RequirePermission(authz.ResourceUser, authz.PermRead, "id")
	admin := mw.RequirePermission(authz.ResourceUser, authz.PermAdmin, "id")
	users.Get("/", mw.RequirePermission(authz.ResourceUser, authz.PermRead, ""), h.ListUsers)
	users.Get("/:id", read, h.GetUser)
	users.Get("/:id/permissions", read, h.GetUserPermissions)
	users.Post("/:id/verify-email", admin, h.VerifyEmail)
	users.Post("/:id/unlock", admin, h.Unlock)
	users.Post("/:id/deactivate", admin, h.Deactivate)
	users.Post("/:id/require-password-reset", admin, h.RequirePasswordReset)
	users.Post("/:id/roles", admin, h.AddRole)
	users.Delete("/:id/roles/:role", admin, h.RemoveRole)
	users.Post("/:id/permissions", admin, h.GrantPermission)
	users.Delete("/:id/permissions", admin, h.RevokePermission)
	users.Post("/:id/custom-roles", admin, h.AssignCustomRole)
	users.Delete("/:id/custom-roles/:name", admin, h.RemoveCustomRole)
	users.Delete("/:id", mw.RequirePermission(authz.ResourceUser, authz.PermDelete, "id"), h.DeleteUser)
}

// ============================================================================
// Helpers
// ============================================================================

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return identity.ErrInvalidRequest().WithDetail("reason", "malformed body")
	}
	return nil
}

func clientInfo(c *fiber.Ctx) identity.ClientInfo {
	return identity.ClientInfo{IPAddress: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}

func caller(c *fiber.Ctx) (*kernel.AuthContext, error) {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return nil, iam.ErrUnauthorized()
	}
	return ac, nil
}

func userParam(c *fiber.Ctx) kernel.UserID {
	return kernel.UserID(c.Params("id"))
}

func (h *IdentityHandlers) setAccessCookie(c *fiber.Ctx, token string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   h.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ============================================================================
// Authentication
// ============================================================================

func (h *IdentityHandlers) Register(c *fiber.Ctx) error {
	var req identity.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": u})
}

func (h *IdentityHandlers) Login(c *fiber.Ctx) error {
	var req identity.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.Client = clientInfo(c)

	resp, err := h.service.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	if resp.AccessToken != "" {
		h.setAccessCookie(c, resp.AccessToken, time.Duration(resp.ExpiresIn)*time.Second)
	}
	return c.JSON(resp)
}

func (h *IdentityHandlers) Refresh(c *fiber.Ctx) error {
	var req identity.RefreshRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	resp, err := h.service.Refresh(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.setAccessCookie(c, resp.AccessToken, time.Duration(resp.ExpiresIn)*time.Second)
	return c.JSON(resp)
}

func (h *IdentityHandlers) Logout(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.LogoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.service.Logout(c.UserContext(), ac, req); err != nil {
		return err
	}
	c.ClearCookie(auth.AccessTokenCookie)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *IdentityHandlers) ValidateToken(c *fiber.Ctx) error {
	var req identity.ValidateTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return c.JSON(h.service.ValidateToken(c.UserContext(), req))
}

func (h *IdentityHandlers) Authorize(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.AuthorizeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	resp, err := h.service.Check(c.UserContext(), ac, req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// ============================================================================
// Own account
// ============================================================================

func (h *IdentityHandlers) Me(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	u, err := h.service.GetMe(c.UserContext(), ac)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) MyPermissions(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	resp, err := h.service.GetUserPermissions(c.UserContext(), ac.UserID, authz.ResourceType(c.Query("resource_type")))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *IdentityHandlers) ChangePassword(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.ChangePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.service.ChangePassword(c.UserContext(), ac, req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password changed"})
}

func (h *IdentityHandlers) SetupTwoFactor(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	resp, err := h.service.SetupTwoFactor(c.UserContext(), ac)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *IdentityHandlers) EnableTwoFactor(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.EnableTwoFactorRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	resp, err := h.service.EnableTwoFactor(c.UserContext(), ac, req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *IdentityHandlers) DisableTwoFactor(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.DisableTwoFactorRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.service.DisableTwoFactor(c.UserContext(), ac, req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Two-factor authentication disabled"})
}

func (h *IdentityHandlers) ListSessions(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	sessions, err := h.service.ListSessions(c.UserContext(), ac)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

func (h *IdentityHandlers) ExtendSession(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	s, err := h.service.ExtendSession(c.UserContext(), ac)
	if err != nil {
		return err
	}
	return c.JSON(s)
}

func (h *IdentityHandlers) RevokeSession(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.service.RevokeSession(c.UserContext(), ac, kernel.SessionID(c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ============================================================================
// API keys
// ============================================================================

func (h *IdentityHandlers) CreateAPIKey(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.CreateAPIKeyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	resp, err := h.service.CreateAPIKey(c.UserContext(), ac, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *IdentityHandlers) ListAPIKeys(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	keys, err := h.service.ListAPIKeys(c.UserContext(), ac)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"api_keys": keys, "count": len(keys)})
}

func (h *IdentityHandlers) RevokeAPIKey(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.service.RevokeAPIKey(c.UserContext(), ac, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
