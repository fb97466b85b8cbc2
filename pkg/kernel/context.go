package kernel

import (
	"context"
	"slices"
	"time"
)

// ============================================================================
// AuthContext
// ============================================================================

// AuthContext describes the authenticated caller of a request. It is built
// either from a validated access token or from a validated API key.
type AuthContext struct {
	UserID    UserID    `json:"user_id"`
	TenantID  TenantID  `json:"tenant_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	SessionID SessionID `json:"session_id,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`

	IsAPIKey bool   `json:"is_api_key"`
	APIKeyID string `json:"api_key_id,omitempty"`
}

// IsValid reports whether the context identifies a caller.
func (ac *AuthContext) IsValid() bool {
	if ac == nil {
		return false
	}
	if ac.IsAPIKey {
		return ac.APIKeyID != ""
	}
	return !ac.UserID.IsEmpty()
}

// HasRole reports whether the token carried role. API key callers carry no
// roles.
func (ac *AuthContext) HasRole(role string) bool {
	return slices.Contains(ac.Roles, role)
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const AuthContextKey ContextKey = "auth_context"

// WithAuthContext returns a copy of ctx carrying ac.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}

// AuthFromContext returns the AuthContext stored by WithAuthContext.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return ac, ok && ac != nil
}
