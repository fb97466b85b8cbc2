package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

const (
	// KeyPrefix marks every plaintext key issued by this service.
	KeyPrefix = "aic_"

	keyBytes      = 32
	displayLength = 12
)

// APIKey is a machine credential owned by a user. Only the SHA-256 of the
// plaintext is kept.
type APIKey struct {
	ID          string             `json:"id"`
	UserID      kernel.UserID      `json:"user_id"`
	KeyHash     string             `json:"key_hash"`
	KeyPrefix   string             `json:"key_prefix"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Permissions []authz.Permission `json:"permissions"`
	// RateLimit is requests per minute; nil means unlimited.
	RateLimit  *int       `json:"rate_limit,omitempty"`
	AllowedIPs []string   `json:"allowed_ips,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UsageCount int64      `json:"usage_count"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// IssueParams describes a key to mint.
type IssueParams struct {
	Name        string
	Description string
	Permissions []authz.Permission
	ExpiresAt   *time.Time
	RateLimit   *int
	AllowedIPs  []string
}

// Issue mints a key for owner and returns it with its plaintext. The
// plaintext is not recoverable afterwards.
func Issue(owner kernel.UserID, p IssueParams, now time.Time) (APIKey, string, error) {
	if strings.TrimSpace(p.Name) == "" {
		return APIKey{}, "", ErrInvalidParams().WithDetail("field", "name")
	}
	for _, perm := range p.Permissions {
		if !perm.ResourceType.IsValid() || !perm.PermissionType.IsValid() {
			return APIKey{}, "", ErrInvalidParams().WithDetail("field", "permissions")
		}
	}
	for _, entry := range p.AllowedIPs {
		if _, ok := parseIPRule(entry); !ok {
			return APIKey{}, "", ErrInvalidParams().WithDetail("field", "allowed_ips").WithDetail("value", entry)
		}
	}
	if p.RateLimit != nil && *p.RateLimit <= 0 {
		return APIKey{}, "", ErrInvalidParams().WithDetail("field", "rate_limit")
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return APIKey{}, "", ErrInvalidParams().WithDetail("field", "expires_at")
	}

	plaintext, err := GenerateAPIKey()
	if err != nil {
		return APIKey{}, "", err
	}

	perms := slices.Clone(p.Permissions)
	for i := range perms {
		if perms[i].GrantedAt.IsZero() {
			perms[i].GrantedAt = now
		}
		if perms[i].GrantedBy.IsEmpty() {
			perms[i].GrantedBy = owner
		}
	}

	key := APIKey{
		ID:          uuid.NewString(),
		UserID:      owner,
		KeyHash:     HashAPIKey(plaintext),
		KeyPrefix:   plaintext[:displayLength],
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		Permissions: perms,
		RateLimit:   p.RateLimit,
		AllowedIPs:  slices.Clone(p.AllowedIPs),
		ExpiresAt:   p.ExpiresAt,
		IsActive:    true,
		CreatedAt:   now,
	}
	return key, plaintext, nil
}

// GenerateAPIKey returns "aic_" followed by 32 random bytes, url-safe encoded.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", ErrRegistry.NewWithCause(CodeGenerationFailed, err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashAPIKey is the stored form of a plaintext key.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidateAPIKeyFormat rejects strings that could never be a key before any
// lookup happens.
func ValidateAPIKeyFormat(plaintext string) bool {
	if !strings.HasPrefix(plaintext, KeyPrefix) {
		return false
	}
	body := plaintext[len(KeyPrefix):]
	if len(body) != base64.RawURLEncoding.EncodedLen(keyBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil
}

func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// IsValid reports whether the key may authenticate at now.
func (k *APIKey) IsValid(now time.Time) bool {
	return k.IsActive && !k.IsExpired(now)
}

// Revoke deactivates the key. Revoking twice is a no-op.
func (k *APIKey) Revoke(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	k.IsActive = false
	k.RevokedAt = &now
	return true
}

// RecordUsage bumps the usage counter.
func (k *APIKey) RecordUsage(now time.Time) {
	k.UsageCount++
	k.LastUsedAt = &now
}

// Grants matches the key's own permission list. Roles of the owner are never
// consulted.
func (k *APIKey) Grants(rt authz.ResourceType, pt authz.PermissionType, resourceID string, now time.Time) bool {
	return authz.AnyMatches(k.Permissions, rt, pt, resourceID, now)
}

// AllowsIP reports whether ip may use the key. An empty allow list admits
// every address; entries are single addresses or CIDR prefixes.
func (k *APIKey) AllowsIP(ip string) bool {
	if len(k.AllowedIPs) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range k.AllowedIPs {
		if prefix, ok := parseIPRule(entry); ok && prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIPRule(entry string) (netip.Prefix, bool) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		return p.Masked(), err == nil
	}
	a, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, false
	}
	a = a.Unmap()
	return netip.PrefixFrom(a, a.BitLen()), true
}

// DTO is the public view of a key. It never carries the hash.
type DTO struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	KeyPrefix   string             `json:"key_prefix"`
	Permissions []authz.Permission `json:"permissions"`
	RateLimit   *int               `json:"rate_limit,omitempty"`
	AllowedIPs  []string           `json:"allowed_ips,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time         `json:"last_used_at,omitempty"`
	UsageCount  int64              `json:"usage_count"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (k APIKey) ToDTO() DTO {
	return DTO{
		ID:          k.ID,
		Name:        k.Name,
		Description: k.Description,
		KeyPrefix:   k.KeyPrefix,
		Permissions: slices.Clone(k.Permissions),
		RateLimit:   k.RateLimit,
		AllowedIPs:  slices.Clone(k.AllowedIPs),
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		UsageCount:  k.UsageCount,
		IsActive:    k.IsActive,
		CreatedAt:   k.CreatedAt,
	}
}
