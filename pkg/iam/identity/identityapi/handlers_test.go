package identityapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity/identityapi"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity/identitysrv"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/otp"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/password"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/session"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/session/sessioninfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type harness struct {
	app   *fiber.App
	svc   *identitysrv.IdentityService
	users *userinfra.MemoryUserRepository
	clock *kernel.FixedClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := kernel.NewFixedClock(time.Now())
	jwt := auth.NewJWTService("handler-test-secret", time.Hour, 24*time.Hour, "nexus-iam", clock)

	users := userinfra.NewMemoryUserRepository()
	svc := identitysrv.NewIdentityService(identitysrv.Deps{
		Users:     users,
		Passwords: password.NewService(password.NewBcryptHasher(bcrypt.MinCost), password.DefaultPolicy()),
		TOTP:      otp.NewService(otp.DefaultConfig(), clock),
		Tokens:    auth.NewTokenService(jwt, authinfra.NewMemoryRevocationStore(clock), clock, time.Second),
		Sessions:  session.NewManager(sessioninfra.NewMemorySessionStore(clock), clock, time.Second),
		Engine:    authz.NewEngine(clock),
		Audit:     authinfra.NewLogxAuditService(clock),
		Clock:     clock,
	}, identitysrv.DefaultConfig())

	app := fiber.New(fiber.Config{ErrorHandler: errx.FiberErrorHandler})
	identityapi.NewIdentityHandlers(svc).RegisterRoutes(app, auth.NewAuthMiddleware(svc, nil, svc))
	return &harness{app: app, svc: svc, users: users, clock: clock}
}

func (h *harness) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (h *harness) registerActive(t *testing.T, username, pass string) kernel.UserID {
	t.Helper()
	status, body := h.do(t, "POST", "/auth/register", "", map[string]any{
		"email":      username + "@example.com",
		"username":   username,
		"first_name": "Test",
		"last_name":  "User",
		"password":   pass,
	})
	require.Equal(t, fiber.StatusCreated, status)
	id := kernel.UserID(body["user"].(map[string]any)["id"].(string))
	_, err := h.svc.VerifyEmail(context.Background(), id)
	require.NoError(t, err)
	return id
}

// promote writes a system role straight onto the stored user.
func (h *harness) promote(t *testing.T, id kernel.UserID, role authz.SystemRole) {
	t.Helper()
	ctx := context.Background()
	u, err := h.users.FindByID(ctx, id)
	require.NoError(t, err)
	require.NoError(t, u.AddRole(role, h.clock.Now()))
	require.NoError(t, h.users.Save(ctx, u))
}

func (h *harness) login(t *testing.T, username, pass string) string {
	t.Helper()
	status, body := h.do(t, "POST", "/auth/login", "", map[string]any{"email_or_username": username, "password": pass})
	require.Equal(t, fiber.StatusOK, status)
	return body["access_token"].(string)
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)
	h.registerActive(t, "carol", "Carol-Secret-7")

	status, body := h.do(t, "POST", "/auth/login", "", map[string]any{
		"email_or_username": "carol",
		"password":          "Wrong-Secret-7",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, identity.CodeInvalidCredentials.Code, body["code"])

	status, body = h.do(t, "POST", "/auth/login", "", map[string]any{
		"email_or_username": "carol",
		"password":          "Carol-Secret-7",
	})
	require.Equal(t, fiber.StatusOK, status)
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	status, body = h.do(t, "GET", "/auth/me", access, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "carol", body["username"])

	status, body = h.do(t, "POST", "/auth/token/validate", "", map[string]any{"token": access})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["valid"])

	status, body = h.do(t, "POST", "/auth/token/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, fiber.StatusOK, status)
	rotated := body["access_token"].(string)

	status, _ = h.do(t, "POST", "/auth/token/refresh", "", map[string]any{"refresh_token": refresh})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = h.do(t, "POST", "/auth/logout", rotated, nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, body = h.do(t, "GET", "/auth/me", rotated, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "IAM_INVALID_TOKEN", body["code"])

	status, body = h.do(t, "POST", "/auth/token/validate", "", map[string]any{"token": rotated})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["valid"])
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, "POST", "/auth/register", "", map[string]any{"email": "nope"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "details")

	h.registerActive(t, "dave", "Dave-Secret-7")
	status, _ = h.do(t, "POST", "/auth/register", "", map[string]any{
		"email":      "dave@example.com",
		"username":   "dave2",
		"first_name": "Dave",
		"last_name":  "Again",
		"password":   "Dave-Secret-7",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdminRoutesNeedPermission(t *testing.T) {
	h := newHarness(t)
	erin := h.registerActive(t, "erin", "Erin-Secret-7")
	frank := h.registerActive(t, "frank", "Frank-Secret-7")

	_, body := h.do(t, "POST", "/auth/login", "", map[string]any{"email_or_username": "erin", "password": "Erin-Secret-7"})
	token := body["access_token"].(string)

	status, _ := h.do(t, "GET", "/users", token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	h.promote(t, erin, authz.RoleAdmin)

	status, body = h.do(t, "GET", "/users", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["items"], 2)

	status, _ = h.do(t, "POST", "/users/"+frank.String()+"/deactivate", token, nil)
	assert.Equal(t, fiber.StatusOK, status)

	// admins may not delete
	status, _ = h.do(t, "DELETE", "/users/"+frank.String(), token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestAPIKeyRoutes(t *testing.T) {
	h := newHarness(t)
	gina := h.registerActive(t, "gina", "Gina-Secret-7")
	root := h.registerActive(t, "root", "Root-Secret-7")
	h.promote(t, root, authz.RoleSuperAdmin)
	_, err := h.svc.GrantPermission(context.Background(), &kernel.AuthContext{UserID: root}, gina, identity.PermissionInput{
		ResourceType:   authz.ResourceProject,
		PermissionType: authz.PermRead,
	})
	require.NoError(t, err)

	_, body := h.do(t, "POST", "/auth/login", "", map[string]any{"email_or_username": "gina", "password": "Gina-Secret-7"})
	token := body["access_token"].(string)

	status, body := h.do(t, "POST", "/api-keys", token, map[string]any{
		"name":        "ci",
		"permissions": []map[string]any{{"resource_type": "project", "permission_type": "read"}},
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.NotEmpty(t, body["plaintext_key"])
	keyID := body["key_id"].(string)

	status, body = h.do(t, "GET", "/api-keys", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, _ = h.do(t, "DELETE", "/api-keys/"+keyID, token, nil)
	assert.Equal(t, fiber.StatusNoContent, status)
}

func TestAdminCannotEscalateOverHTTP(t *testing.T) {
	h := newHarness(t)
	erin := h.registerActive(t, "erin", "Erin-Secret-7")
	frank := h.registerActive(t, "frank", "Frank-Secret-7")
	h.promote(t, erin, authz.RoleAdmin)
	token := h.login(t, "erin", "Erin-Secret-7")

	status, body := h.do(t, "POST", "/users/"+erin.String()+"/permissions", token, map[string]any{
		"resource_type": "user", "permission_type": "delete",
	})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "IAM_ACCESS_DENIED", body["code"])

	status, _ = h.do(t, "POST", "/users/"+erin.String()+"/roles", token, map[string]any{"role": "super_admin"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = h.do(t, "POST", "/users/"+frank.String()+"/roles", token, map[string]any{"role": "super_admin"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = h.do(t, "POST", "/users/"+frank.String()+"/custom-roles", token, map[string]any{
		"name":        "cleaner",
		"permissions": []map[string]any{{"resource_type": "user", "permission_type": "delete"}},
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = h.do(t, "POST", "/users/"+frank.String()+"/permissions", token, map[string]any{
		"resource_type": "project", "permission_type": "write",
	})
	assert.Equal(t, fiber.StatusOK, status)

	// still unable to delete after every attempt above
	status, _ = h.do(t, "DELETE", "/users/"+frank.String(), token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = h.do(t, "GET", "/users/"+frank.String(), token, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestInactiveUserLosesAccess(t *testing.T) {
	h := newHarness(t)
	hank := h.registerActive(t, "hank", "Hank-Secret-7")
	token := h.login(t, "hank", "Hank-Secret-7")

	status, _ := h.do(t, "GET", "/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, status)

	_, err := h.svc.Deactivate(context.Background(), hank)
	require.NoError(t, err)

	status, _ = h.do(t, "GET", "/auth/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = h.do(t, "POST", "/auth/2fa/setup", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = h.do(t, "POST", "/auth/password/change", token, map[string]any{
		"current_password": "Hank-Secret-7",
		"new_password":     "Hank-Secret-8",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestLockedOutUserLosesAccess(t *testing.T) {
	h := newHarness(t)
	h.registerActive(t, "iris", "Iris-Secret-7")
	token := h.login(t, "iris", "Iris-Secret-7")

	for i := 0; i < 5; i++ {
		h.do(t, "POST", "/auth/login", "", map[string]any{"email_or_username": "iris", "password": "Wrong-Secret-7"})
	}

	// the session is still live, the account is not
	status, body := h.do(t, "GET", "/auth/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "IAM_UNAUTHORIZED", body["code"])
	status, _ = h.do(t, "POST", "/auth/2fa/setup", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = h.do(t, "POST", "/auth/password/change", token, map[string]any{
		"current_password": "Iris-Secret-7",
		"new_password":     "Iris-Secret-8",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}
