package authz

import (
	"slices"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// SystemRole is one of the built-in roles.
type SystemRole string

const (
	RoleSuperAdmin     SystemRole = "super_admin"
	RoleAdmin          SystemRole = "admin"
	RoleProjectManager SystemRole = "project_manager"
	RoleTeamMember     SystemRole = "team_member"
	RoleClientAdmin    SystemRole = "client_admin"
	RoleClientUser     SystemRole = "client_user"
	RoleViewer         SystemRole = "viewer"
)

var systemRoles = []SystemRole{
	RoleSuperAdmin, RoleAdmin, RoleProjectManager, RoleTeamMember,
	RoleClientAdmin, RoleClientUser, RoleViewer,
}

func (r SystemRole) IsValid() bool  { return slices.Contains(systemRoles, r) }
func (r SystemRole) String() string { return string(r) }

// SystemRoles returns the built-in role catalog.
func SystemRoles() []SystemRole { return slices.Clone(systemRoles) }

// ResourceType is a class of protected resource.
type ResourceType string

const (
	ResourceClient       ResourceType = "client"
	ResourceProject      ResourceType = "project"
	ResourceInvoice      ResourceType = "invoice"
	ResourceSubscription ResourceType = "subscription"
	ResourceModel        ResourceType = "model"
	ResourceDocument     ResourceType = "document"
	ResourceUser         ResourceType = "user"
	ResourceSystem       ResourceType = "system"
)

var resourceTypes = []ResourceType{
	ResourceClient, ResourceProject, ResourceInvoice, ResourceSubscription,
	ResourceModel, ResourceDocument, ResourceUser, ResourceSystem,
}

func (r ResourceType) IsValid() bool { return slices.Contains(resourceTypes, r) }

// PermissionType is an action on a resource.
type PermissionType string

const (
	PermRead    PermissionType = "read"
	PermWrite   PermissionType = "write"
	PermDelete  PermissionType = "delete"
	PermAdmin   PermissionType = "admin"
	PermExecute PermissionType = "execute"
)

var permissionTypes = []PermissionType{PermRead, PermWrite, PermDelete, PermAdmin, PermExecute}

func (p PermissionType) IsValid() bool { return slices.Contains(permissionTypes, p) }

// Permission grants PermissionType on ResourceType. An empty ResourceID is a
// wildcard over every instance of the type.
type Permission struct {
	ResourceType   ResourceType   `json:"resource_type"`
	PermissionType PermissionType `json:"permission_type"`
	ResourceID     string         `json:"resource_id,omitempty"`
	GrantedBy      kernel.UserID  `json:"granted_by,omitempty"`
	GrantedAt      time.Time      `json:"granted_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
}

// IsWildcard reports whether p covers every instance of its resource type.
func (p Permission) IsWildcard() bool { return p.ResourceID == "" }

// IsExpired reports whether p has lapsed at now. Permissions without an
// expiry never lapse.
func (p Permission) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Matches reports whether p grants the request at now.
func (p Permission) Matches(rt ResourceType, pt PermissionType, resourceID string, now time.Time) bool {
	if p.IsExpired(now) || p.ResourceType != rt || p.PermissionType != pt {
		return false
	}
	return p.IsWildcard() || p.ResourceID == resourceID
}

// SameGrant reports whether p and o grant the same thing, ignoring who
// granted it and when.
func (p Permission) SameGrant(o Permission) bool {
	if p.ResourceType != o.ResourceType || p.PermissionType != o.PermissionType || p.ResourceID != o.ResourceID {
		return false
	}
	switch {
	case p.ExpiresAt == nil && o.ExpiresAt == nil:
		return true
	case p.ExpiresAt != nil && o.ExpiresAt != nil:
		return p.ExpiresAt.Equal(*o.ExpiresAt)
	}
	return false
}

// AnyMatches reports whether any of perms grants the request.
func AnyMatches(perms []Permission, rt ResourceType, pt PermissionType, resourceID string, now time.Time) bool {
	for _, p := range perms {
		if p.Matches(rt, pt, resourceID, now) {
			return true
		}
	}
	return false
}

// Role is a named bundle of permissions. Custom roles may be scoped to a
// tenant.
type Role struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name,omitempty"`
	Description string          `json:"description,omitempty"`
	Permissions []Permission    `json:"permissions"`
	IsSystem    bool            `json:"is_system"`
	TenantID    kernel.TenantID `json:"tenant_id,omitempty"`
	CreatedBy   kernel.UserID   `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Grants reports whether the role carries a matching permission.
func (r Role) Grants(rt ResourceType, pt PermissionType, resourceID string, now time.Time) bool {
	return AnyMatches(r.Permissions, rt, pt, resourceID, now)
}
