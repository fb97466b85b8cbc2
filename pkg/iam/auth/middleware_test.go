package auth_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type roleAuthorizer struct{}

func (roleAuthorizer) Authorize(_ context.Context, ac *kernel.AuthContext, _ authz.ResourceType, pt authz.PermissionType, _ string) (bool, error) {
	return ac.HasRole(string(authz.RoleAdmin)) && pt != authz.PermDelete, nil
}

func newApp(tokens *auth.TokenService) *fiber.App {
	mw := auth.NewAuthMiddleware(tokens, nil, roleAuthorizer{})
	app := fiber.New(fiber.Config{ErrorHandler: errx.FiberErrorHandler})
	app.Get("/me", mw.Authenticate(), func(c *fiber.Ctx) error {
		ac, _ := auth.GetAuthContext(c)
		return c.SendString(ac.UserID.String())
	})
	app.Delete("/projects/:id", mw.Authenticate(), mw.RequirePermission(authz.ResourceProject, authz.PermDelete, "id"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/projects/:id", mw.Authenticate(), mw.RequirePermission(authz.ResourceProject, authz.PermRead, "id"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	clock := kernel.NewFixedClock(time.Now())
	tokens, jwtSvc := newTokens(clock)
	app := newApp(tokens)

	token, claims, err := jwtSvc.IssueAccessToken(alice)
	require.NoError(t, err)

	do := func(method, path, bearer string) int {
		req := httptest.NewRequest(method, path, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, do("GET", "/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, do("GET", "/me", "garbage"))
	assert.Equal(t, fiber.StatusOK, do("GET", "/me", token))
	assert.Equal(t, fiber.StatusOK, do("GET", "/projects/p1", token))
	assert.Equal(t, fiber.StatusForbidden, do("DELETE", "/projects/p1", token))

	require.NoError(t, tokens.Revoke(context.Background(), claims.TokenID, claims.ExpiresAt))
	assert.Equal(t, fiber.StatusUnauthorized, do("GET", "/me", token))
}

func TestMiddlewareAcceptsCookie(t *testing.T) {
	clock := kernel.NewFixedClock(time.Now())
	tokens, jwtSvc := newTokens(clock)
	app := newApp(tokens)

	token, _, err := jwtSvc.IssueAccessToken(alice)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Cookie", auth.AccessTokenCookie+"="+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
