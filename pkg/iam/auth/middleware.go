package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

const (
	// LocalsAuthKey is the fiber Locals key holding *kernel.AuthContext.
	LocalsAuthKey = "auth"

	AccessTokenCookie = "access_token"
	APIKeyHeader      = "X-API-Key"
)

type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*TokenClaims, error)
}

type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, plaintext, ip string) (*apikey.APIKey, error)
}

// Authorizer decides whether an authenticated caller may act on a resource.
type Authorizer interface {
	Authorize(ctx context.Context, ac *kernel.AuthContext, rt authz.ResourceType, pt authz.PermissionType, resourceID string) (bool, error)
}

// TokenMiddleware authenticates requests by bearer token, access cookie or
// API key header.
type TokenMiddleware struct {
	tokens     AccessTokenValidator
	keys       APIKeyAuthenticator
	authorizer Authorizer
}

// NewAuthMiddleware builds the middleware. keys may be nil to disable API key
// authentication.
func NewAuthMiddleware(tokens AccessTokenValidator, keys APIKeyAuthenticator, authorizer Authorizer) *TokenMiddleware {
	return &TokenMiddleware{tokens: tokens, keys: keys, authorizer: authorizer}
}

// Authenticate rejects requests without a valid credential. Every token
// failure produces the same error.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := am.resolve(c)
		if err != nil {
			return err
		}

		ctx := kernel.WithAuthContext(c.UserContext(), ac)
		ctx = logx.ContextWithUserID(ctx, ac.UserID.String())
		c.SetUserContext(ctx)
		c.Locals(LocalsAuthKey, ac)

		return c.Next()
	}
}

func (am *TokenMiddleware) resolve(c *fiber.Ctx) (*kernel.AuthContext, error) {
	if key := c.Get(APIKeyHeader); key != "" && am.keys != nil {
		k, err := am.keys.Authenticate(c.UserContext(), key, c.IP())
		if err != nil {
			if errx.TypeOf(err) == errx.TypeAuthentication {
				return nil, iam.ErrUnauthorized()
			}
			return nil, err
		}
		return &kernel.AuthContext{
			UserID:   k.UserID,
			IsAPIKey: true,
			APIKeyID: k.ID,
		}, nil
	}

	token := bearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		token = c.Cookies(AccessTokenCookie)
	}
	if token == "" {
		return nil, iam.ErrUnauthorized()
	}

	claims, err := am.tokens.ValidateAccessToken(c.UserContext(), token)
	if err != nil {
		if errx.TypeOf(err) == errx.TypeUnavailable {
			return nil, err
		}
		return nil, iam.ErrInvalidToken()
	}
	return claims.AuthContext(), nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireRole admits callers whose token carries any of roles. API key
// callers carry no roles and are always refused.
func (am *TokenMiddleware) RequireRole(roles ...authz.SystemRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok {
			return iam.ErrUnauthorized()
		}
		for _, r := range roles {
			if ac.HasRole(string(r)) {
				return c.Next()
			}
		}
		return iam.ErrAccessDenied()
	}
}

// RequirePermission evaluates the caller against the authorizer. When
// resourceParam is set the route parameter of that name is the resource id.
func (am *TokenMiddleware) RequirePermission(rt authz.ResourceType, pt authz.PermissionType, resourceParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok {
			return iam.ErrUnauthorized()
		}
		var resourceID string
		if resourceParam != "" {
			resourceID = c.Params(resourceParam)
		}
		allowed, err := am.authorizer.Authorize(c.UserContext(), ac, rt, pt, resourceID)
		if err != nil {
			return err
		}
		if !allowed {
			return iam.ErrAccessDenied().
				WithDetail("resource_type", string(rt)).
				WithDetail("permission", string(pt))
		}
		return c.Next()
	}
}

// GetAuthContext returns the principal stored by Authenticate.
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(LocalsAuthKey).(*kernel.AuthContext)
	return ac, ok && ac.IsValid()
}
