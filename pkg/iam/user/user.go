package user

import (
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/password"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// ============================================================================
// Status
// ============================================================================

type Status string

const (
	StatusPendingVerification   Status = "pending_verification"
	StatusActive                Status = "active"
	StatusSuspended             Status = "suspended"
	StatusInactive              Status = "inactive"
	StatusPasswordResetRequired Status = "password_reset_required"
)

// CanAuthenticate reports whether users in s may log in.
func (s Status) CanAuthenticate() bool {
	return s == StatusActive || s == StatusPasswordResetRequired
}

// ============================================================================
// Aggregate
// ============================================================================

// User is the aggregate root for identity state. Every mutation goes through
// a method that bumps version; collections are never handed out by
// reference.
type User struct {
	id           kernel.UserID
	email        string
	username     string
	firstName    string
	lastName     string
	passwordHash string
	status       Status
	tenantID     kernel.TenantID
	provider     iam.AuthProvider
	externalID   string

	roles       []authz.SystemRole
	customRoles []authz.Role
	permissions []authz.Permission

	lastLoginAt         *time.Time
	passwordChangedAt   *time.Time
	failedLoginAttempts int
	lockedUntil         *time.Time
	emailVerified       bool

	twoFactorEnabled       bool
	twoFactorSecret        string
	pendingTwoFactorSecret string
	lastTOTPStep           int64
	backupCodeHashes       []string

	apiKeys  map[string]*apikey.APIKey
	sessions map[kernel.SessionID]*UserSession

	createdAt time.Time
	updatedAt time.Time

	version          int
	persistedVersion int
	events           []eventx.Event
}

// RegisterParams describes a new account.
type RegisterParams struct {
	Email      string
	Username   string
	FirstName  string
	LastName   string
	Password   string
	TenantID   kernel.TenantID
	Provider   iam.AuthProvider
	ExternalID string
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{3,50}$`)

// Register creates a user in PendingVerification. Local accounts must carry a
// password the policy approves; external identities may have none. Without
// explicit roles the user gets ClientUser inside a tenant and TeamMember
// otherwise.
func Register(pw *password.Service, p RegisterParams, now time.Time) (*User, error) {
	email := NormalizeEmail(p.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, ErrInvalidUser().WithDetail("field", "email")
	}
	username := strings.TrimSpace(p.Username)
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUser().WithDetail("field", "username")
	}
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return nil, ErrInvalidUser().WithDetail("field", "name")
	}

	provider := p.Provider
	if provider == "" {
		provider = iam.AuthProviderLocal
	}
	if !provider.IsValid() {
		return nil, ErrInvalidUser().WithDetail("field", "provider")
	}

	var hash string
	if provider.UsesPassword() {
		if p.Password == "" {
			return nil, ErrInvalidUser().WithDetail("field", "password")
		}
		h, err := pw.HashNew(p.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	role := authz.RoleTeamMember
	if !p.TenantID.IsEmpty() {
		role = authz.RoleClientUser
	}

	u := &User{
		id:           kernel.GenerateUserID(),
		email:        email,
		username:     username,
		firstName:    strings.TrimSpace(p.FirstName),
		lastName:     strings.TrimSpace(p.LastName),
		passwordHash: hash,
		status:       StatusPendingVerification,
		tenantID:     p.TenantID,
		provider:     provider,
		externalID:   p.ExternalID,
		roles:        []authz.SystemRole{role},
		apiKeys:      make(map[string]*apikey.APIKey),
		sessions:     make(map[kernel.SessionID]*UserSession),
		createdAt:    now,
	}
	if hash != "" {
		u.passwordChangedAt = &now
	}
	u.touch(now)
	u.record(EventUserCreated, now, map[string]any{
		"email":         u.email,
		"username":      u.username,
		"tenant_id":     u.tenantID.String(),
		"auth_provider": string(u.provider),
	})
	return u, nil
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) touch(now time.Time) {
	u.version++
	u.updatedAt = now
}

// ============================================================================
// Persistence
// ============================================================================

// Snapshot is the full persisted state of a User.
type Snapshot struct {
	ID                     kernel.UserID      `json:"id"`
	Email                  string             `json:"email"`
	Username               string             `json:"username"`
	FirstName              string             `json:"first_name"`
	LastName               string             `json:"last_name"`
	PasswordHash           string             `json:"-"`
	Status                 Status             `json:"status"`
	TenantID               kernel.TenantID    `json:"tenant_id,omitempty"`
	Provider               iam.AuthProvider   `json:"auth_provider"`
	ExternalID             string             `json:"external_id,omitempty"`
	Roles                  []authz.SystemRole `json:"roles"`
	CustomRoles            []authz.Role       `json:"custom_roles,omitempty"`
	Permissions            []authz.Permission `json:"permissions,omitempty"`
	LastLoginAt            *time.Time         `json:"last_login_at,omitempty"`
	PasswordChangedAt      *time.Time         `json:"password_changed_at,omitempty"`
	FailedLoginAttempts    int                `json:"failed_login_attempts"`
	LockedUntil            *time.Time         `json:"locked_until,omitempty"`
	EmailVerified          bool               `json:"email_verified"`
	TwoFactorEnabled       bool               `json:"two_factor_enabled"`
	TwoFactorSecret        string             `json:"-"`
	PendingTwoFactorSecret string             `json:"-"`
	LastTOTPStep           int64              `json:"-"`
	BackupCodeHashes       []string           `json:"-"`
	APIKeys                []apikey.APIKey    `json:"api_keys,omitempty"`
	Sessions               []UserSession      `json:"sessions,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
	Version                int                `json:"version"`
}

// Snapshot returns a deep copy of the current state.
func (u *User) Snapshot() Snapshot {
	keys := make([]apikey.APIKey, 0, len(u.apiKeys))
	for _, k := range u.apiKeys {
		keys = append(keys, cloneKey(*k))
	}
	slices.SortFunc(keys, func(a, b apikey.APIKey) int { return a.CreatedAt.Compare(b.CreatedAt) })

	sessions := make([]UserSession, 0, len(u.sessions))
	for _, s := range u.sessions {
		sessions = append(sessions, *s)
	}
	slices.SortFunc(sessions, func(a, b UserSession) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return Snapshot{
		ID:                     u.id,
		Email:                  u.email,
		Username:               u.username,
		FirstName:              u.firstName,
		LastName:               u.lastName,
		PasswordHash:           u.passwordHash,
		Status:                 u.status,
		TenantID:               u.tenantID,
		Provider:               u.provider,
		ExternalID:             u.externalID,
		Roles:                  slices.Clone(u.roles),
		CustomRoles:            cloneRoles(u.customRoles),
		Permissions:            slices.Clone(u.permissions),
		LastLoginAt:            u.lastLoginAt,
		PasswordChangedAt:      u.passwordChangedAt,
		FailedLoginAttempts:    u.failedLoginAttempts,
		LockedUntil:            u.lockedUntil,
		EmailVerified:          u.emailVerified,
		TwoFactorEnabled:       u.twoFactorEnabled,
		TwoFactorSecret:        u.twoFactorSecret,
		PendingTwoFactorSecret: u.pendingTwoFactorSecret,
		LastTOTPStep:           u.lastTOTPStep,
		BackupCodeHashes:       slices.Clone(u.backupCodeHashes),
		APIKeys:                keys,
		Sessions:               sessions,
		CreatedAt:              u.createdAt,
		UpdatedAt:              u.updatedAt,
		Version:                u.version,
	}
}

// Rehydrate rebuilds a persisted User. The snapshot's Version becomes the
// expected version for the next save.
func Rehydrate(s Snapshot) *User {
	u := &User{
		id:                     s.ID,
		email:                  s.Email,
		username:               s.Username,
		firstName:              s.FirstName,
		lastName:               s.LastName,
		passwordHash:           s.PasswordHash,
		status:                 s.Status,
		tenantID:               s.TenantID,
		provider:               s.Provider,
		externalID:             s.ExternalID,
		roles:                  slices.Clone(s.Roles),
		customRoles:            cloneRoles(s.CustomRoles),
		permissions:            slices.Clone(s.Permissions),
		lastLoginAt:            s.LastLoginAt,
		passwordChangedAt:      s.PasswordChangedAt,
		failedLoginAttempts:    s.FailedLoginAttempts,
		lockedUntil:            s.LockedUntil,
		emailVerified:          s.EmailVerified,
		twoFactorEnabled:       s.TwoFactorEnabled,
		twoFactorSecret:        s.TwoFactorSecret,
		pendingTwoFactorSecret: s.PendingTwoFactorSecret,
		lastTOTPStep:           s.LastTOTPStep,
		backupCodeHashes:       slices.Clone(s.BackupCodeHashes),
		apiKeys:                make(map[string]*apikey.APIKey, len(s.APIKeys)),
		sessions:               make(map[kernel.SessionID]*UserSession, len(s.Sessions)),
		createdAt:              s.CreatedAt,
		updatedAt:              s.UpdatedAt,
		version:                s.Version,
		persistedVersion:       s.Version,
	}
	for _, k := range s.APIKeys {
		k := cloneKey(k)
		u.apiKeys[k.ID] = &k
	}
	for _, sess := range s.Sessions {
		sess := sess
		u.sessions[sess.ID] = &sess
	}
	return u
}

// PersistedVersion is the version the store held when this instance was
// loaded, or 0 for a user never saved.
func (u *User) PersistedVersion() int { return u.persistedVersion }

// IsNew reports whether the user has never been saved.
func (u *User) IsNew() bool { return u.persistedVersion == 0 }

// MarkPersisted records a successful save.
func (u *User) MarkPersisted() { u.persistedVersion = u.version }

// HasChanges reports whether the user was mutated since it was loaded.
func (u *User) HasChanges() bool { return u.version != u.persistedVersion }

func cloneRoles(roles []authz.Role) []authz.Role {
	if roles == nil {
		return nil
	}
	out := make([]authz.Role, len(roles))
	for i, r := range roles {
		r.Permissions = slices.Clone(r.Permissions)
		out[i] = r
	}
	return out
}

func cloneKey(k apikey.APIKey) apikey.APIKey {
	k.Permissions = slices.Clone(k.Permissions)
	k.AllowedIPs = slices.Clone(k.AllowedIPs)
	return k
}

// ============================================================================
// Getters
// ============================================================================

func (u *User) ID() kernel.UserID               { return u.id }
func (u *User) Email() string                   { return u.email }
func (u *User) Username() string                { return u.username }
func (u *User) FirstName() string               { return u.firstName }
func (u *User) LastName() string                { return u.lastName }
func (u *User) Status() Status                  { return u.status }
func (u *User) TenantID() kernel.TenantID       { return u.tenantID }
func (u *User) Provider() iam.AuthProvider      { return u.provider }
func (u *User) Roles() []authz.SystemRole       { return slices.Clone(u.roles) }
func (u *User) CustomRoles() []authz.Role       { return cloneRoles(u.customRoles) }
func (u *User) Permissions() []authz.Permission { return slices.Clone(u.permissions) }
func (u *User) LastLoginAt() *time.Time         { return u.lastLoginAt }
func (u *User) FailedLoginAttempts() int        { return u.failedLoginAttempts }
func (u *User) LockedUntil() *time.Time         { return u.lockedUntil }
func (u *User) EmailVerified() bool             { return u.emailVerified }
func (u *User) TwoFactorEnabled() bool          { return u.twoFactorEnabled }
func (u *User) TwoFactorSecret() string         { return u.twoFactorSecret }
func (u *User) PendingTwoFactorSecret() string  { return u.pendingTwoFactorSecret }
func (u *User) BackupCodesRemaining() int       { return len(u.backupCodeHashes) }
func (u *User) HasPassword() bool               { return u.passwordHash != "" }
func (u *User) CreatedAt() time.Time            { return u.createdAt }
func (u *User) UpdatedAt() time.Time            { return u.updatedAt }
func (u *User) Version() int                    { return u.version }

// RoleNames returns roles as plain strings, as carried in tokens.
func (u *User) RoleNames() []string {
	out := make([]string, len(u.roles))
	for i, r := range u.roles {
		out[i] = string(r)
	}
	return out
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.firstName + " " + u.lastName)
}
