package identity

import (
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// ============================================================================
// Requests
// ============================================================================

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Username  string `json:"username" validate:"required,min=3,max=50"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Password  string `json:"password,omitempty" validate:"max=128"`
	TenantID  string `json:"tenant_id,omitempty" validate:"max=64"`
	Provider  string `json:"provider,omitempty" validate:"omitempty,oneof=local keycloak google microsoft github saml"`
}

// ClientInfo is filled from the transport, never from the body.
type ClientInfo struct {
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type LoginRequest struct {
	EmailOrUsername string `json:"email_or_username" validate:"required,max=255"`
	Password        string `json:"password" validate:"required,max=128"`
	// TOTPCode also accepts a backup code.
	TOTPCode string     `json:"totp_code,omitempty" validate:"max=16"`
	Client   ClientInfo `json:"-"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
	// KeepCurrentSession defaults to true.
	KeepCurrentSession *bool `json:"keep_current_session,omitempty"`
}

type EnableTwoFactorRequest struct {
	TOTPCode string `json:"totp_code" validate:"required,numeric,len=6"`
	Secret   string `json:"secret,omitempty" validate:"omitempty,alphanum,max=128"`
}

type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

type PermissionInput struct {
	ResourceType   authz.ResourceType   `json:"resource_type" validate:"required"`
	PermissionType authz.PermissionType `json:"permission_type" validate:"required"`
	ResourceID     string               `json:"resource_id,omitempty"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
}

func (p PermissionInput) ToPermission() authz.Permission {
	return authz.Permission{
		ResourceType:   p.ResourceType,
		PermissionType: p.PermissionType,
		ResourceID:     p.ResourceID,
		ExpiresAt:      p.ExpiresAt,
	}
}

type CreateAPIKeyRequest struct {
	Name        string            `json:"name" validate:"required,max=100"`
	Description string            `json:"description,omitempty" validate:"max=500"`
	Permissions []PermissionInput `json:"permissions" validate:"required,min=1,dive"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	RateLimit   *int              `json:"rate_limit,omitempty" validate:"omitempty,min=1"`
	AllowedIPs  []string          `json:"allowed_ips,omitempty" validate:"omitempty,dive,ip|cidr"`
}

type ValidateTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type AuthorizeRequest struct {
	ResourceType   authz.ResourceType   `json:"resource_type" validate:"required"`
	PermissionType authz.PermissionType `json:"permission_type" validate:"required"`
	ResourceID     string               `json:"resource_id,omitempty"`
}

type RoleRequest struct {
	Role authz.SystemRole `json:"role" validate:"required"`
}

type ListUsersRequest struct {
	TenantID string `query:"tenant_id"`
	Status   string `query:"status"`
	kernel.PaginationOptions
}

// ============================================================================
// Responses
// ============================================================================

type UserDTO struct {
	ID               kernel.UserID      `json:"id"`
	Email            string             `json:"email"`
	Username         string             `json:"username"`
	FirstName        string             `json:"first_name"`
	LastName         string             `json:"last_name"`
	Status           user.Status        `json:"status"`
	TenantID         kernel.TenantID    `json:"tenant_id,omitempty"`
	Provider         string             `json:"auth_provider"`
	Roles            []authz.SystemRole `json:"roles"`
	EmailVerified    bool               `json:"email_verified"`
	TwoFactorEnabled bool               `json:"two_factor_enabled"`
	LastLoginAt      *time.Time         `json:"last_login_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	Version          int                `json:"version"`
}

func ToUserDTO(u *user.User) UserDTO {
	return UserDTO{
		ID:               u.ID(),
		Email:            u.Email(),
		Username:         u.Username(),
		FirstName:        u.FirstName(),
		LastName:         u.LastName(),
		Status:           u.Status(),
		TenantID:         u.TenantID(),
		Provider:         string(u.Provider()),
		Roles:            u.Roles(),
		EmailVerified:    u.EmailVerified(),
		TwoFactorEnabled: u.TwoFactorEnabled(),
		LastLoginAt:      u.LastLoginAt(),
		CreatedAt:        u.CreatedAt(),
		Version:          u.Version(),
	}
}

// LoginResponse carries either tokens or, when a second factor is needed,
// only Requires2FA and UserID.
type LoginResponse struct {
	AccessToken  string           `json:"access_token,omitempty"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	TokenType    string           `json:"token_type,omitempty"`
	ExpiresIn    int64            `json:"expires_in,omitempty"`
	SessionID    kernel.SessionID `json:"session_id,omitempty"`
	User         *UserDTO         `json:"user,omitempty"`
	Requires2FA  bool             `json:"requires_2fa,omitempty"`
	UserID       kernel.UserID    `json:"user_id,omitempty"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type TwoFactorSetupResponse struct {
	Secret string `json:"secret"`
	QRURI  string `json:"qr_uri"`
}

type EnableTwoFactorResponse struct {
	BackupCodes []string `json:"backup_codes"`
	QRURI       string   `json:"qr_uri"`
}

type CreateAPIKeyResponse struct {
	KeyID        string             `json:"key_id"`
	PlaintextKey string             `json:"plaintext_key"`
	Permissions  []authz.Permission `json:"permissions"`
	APIKey       apikey.DTO         `json:"api_key"`
	Message      string             `json:"message"`
}

type ValidateTokenResponse struct {
	Valid     bool            `json:"valid"`
	Subject   kernel.UserID   `json:"subject,omitempty"`
	Roles     []string        `json:"roles,omitempty"`
	TenantID  kernel.TenantID `json:"tenant_id,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

type AuthorizeResponse struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule,omitempty"`
}

type SessionDTO struct {
	ID             kernel.SessionID    `json:"session_id"`
	CreatedAt      time.Time           `json:"created_at"`
	ExpiresAt      time.Time           `json:"expires_at"`
	LastActivityAt time.Time           `json:"last_activity_at"`
	Client         user.ClientMetadata `json:"client"`
	Current        bool                `json:"current"`
}

type PermissionsResponse struct {
	UserID      kernel.UserID      `json:"user_id"`
	Roles       []authz.SystemRole `json:"roles"`
	Permissions []authz.Permission `json:"permissions"`
}
