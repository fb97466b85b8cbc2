package iam

import (
	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized     = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthentication, "Authentication required")
	CodeInvalidToken     = ErrRegistry.Register("INVALID_TOKEN", errx.TypeAuthentication, "Invalid or expired token")
	CodeAccessDenied     = ErrRegistry.Register("ACCESS_DENIED", errx.TypeAuthorization, "Access denied")
	CodeStoreUnavailable = ErrRegistry.Register("STORE_UNAVAILABLE", errx.TypeUnavailable, "Session store unavailable")
)

func ErrUnauthorized() *errx.Error {
	return ErrRegistry.New(CodeUnauthorized)
}

// ErrInvalidToken is the single error every token failure collapses to at the
// edge, whether the token was malformed, expired, revoked or unverifiable.
func ErrInvalidToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidToken)
}

func ErrAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeAccessDenied)
}

func ErrStoreUnavailable(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreUnavailable, cause)
}

// AuthProvider is the origin of a user's identity.
type AuthProvider string

const (
	AuthProviderLocal     AuthProvider = "local"
	AuthProviderKeycloak  AuthProvider = "keycloak"
	AuthProviderGoogle    AuthProvider = "google"
	AuthProviderMicrosoft AuthProvider = "microsoft"
	AuthProviderGitHub    AuthProvider = "github"
	AuthProviderSAML      AuthProvider = "saml"
)

// IsValid reports whether p is a known provider.
func (p AuthProvider) IsValid() bool {
	switch p {
	case AuthProviderLocal, AuthProviderKeycloak, AuthProviderGoogle,
		AuthProviderMicrosoft, AuthProviderGitHub, AuthProviderSAML:
		return true
	}
	return false
}

// UsesPassword reports whether users from p authenticate with a local secret.
func (p AuthProvider) UsesPassword() bool {
	return p == AuthProviderLocal
}
