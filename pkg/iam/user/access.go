package user

import (
	"slices"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
)

// AddRole grants a system role. Granting a held role changes nothing.
func (u *User) AddRole(role authz.SystemRole, now time.Time) error {
	if !role.IsValid() {
		return ErrInvalidRole().WithDetail("role", string(role))
	}
	if slices.Contains(u.roles, role) {
		return nil
	}
	u.roles = append(u.roles, role)
	u.touch(now)
	u.record(EventUserRoleAdded, now, map[string]any{"role": string(role)})
	return nil
}

func (u *User) HasRole(role authz.SystemRole) bool { return slices.Contains(u.roles, role) }

// RemoveRole drops a system role. Removing a role not held changes nothing.
func (u *User) RemoveRole(role authz.SystemRole, now time.Time) {
	i := slices.Index(u.roles, role)
	if i < 0 {
		return
	}
	u.roles = slices.Delete(u.roles, i, i+1)
	u.touch(now)
	u.record(EventUserRoleRemoved, now, map[string]any{"role": string(role)})
}

// AddPermission grants a direct permission. An identical grant is not
// duplicated.
func (u *User) AddPermission(p authz.Permission, now time.Time) error {
	if !p.ResourceType.IsValid() || !p.PermissionType.IsValid() {
		return ErrInvalidPermission()
	}
	for _, held := range u.permissions {
		if held.SameGrant(p) {
			return nil
		}
	}
	if p.GrantedAt.IsZero() {
		p.GrantedAt = now
	}
	u.permissions = append(u.permissions, p)
	u.touch(now)
	return nil
}

// RemovePermission drops every direct grant equal to p.
func (u *User) RemovePermission(p authz.Permission, now time.Time) {
	before := len(u.permissions)
	u.permissions = slices.DeleteFunc(u.permissions, p.SameGrant)
	if len(u.permissions) != before {
		u.touch(now)
	}
}

// AssignCustomRole attaches a named permission bundle, replacing a role of
// the same name.
func (u *User) AssignCustomRole(role authz.Role, now time.Time) error {
	if role.Name == "" {
		return ErrInvalidRole().WithDetail("reason", "custom role needs a name")
	}
	for _, p := range role.Permissions {
		if !p.ResourceType.IsValid() || !p.PermissionType.IsValid() {
			return ErrInvalidPermission()
		}
	}
	role.Permissions = slices.Clone(role.Permissions)
	if i := slices.IndexFunc(u.customRoles, func(r authz.Role) bool { return r.Name == role.Name }); i >= 0 {
		u.customRoles[i] = role
	} else {
		u.customRoles = append(u.customRoles, role)
	}
	u.touch(now)
	return nil
}

func (u *User) RemoveCustomRole(name string, now time.Time) {
	before := len(u.customRoles)
	u.customRoles = slices.DeleteFunc(u.customRoles, func(r authz.Role) bool { return r.Name == name })
	if len(u.customRoles) != before {
		u.touch(now)
	}
}

// Subject is the user's input to the authorization engine.
func (u *User) Subject() authz.Subject {
	return authz.Subject{
		Roles:       slices.Clone(u.roles),
		CustomRoles: cloneRoles(u.customRoles),
		Permissions: slices.Clone(u.permissions),
	}
}

// HasPermission delegates to engine with this user's grants.
func (u *User) HasPermission(engine *authz.Engine, rt authz.ResourceType, pt authz.PermissionType, resourceID string) bool {
	return engine.Allowed(u.Subject(), authz.Request{
		ResourceType:   rt,
		PermissionType: pt,
		ResourceID:     resourceID,
	})
}

// EffectivePermissions lists unexpired direct and custom-role grants,
// optionally restricted to one resource type.
func (u *User) EffectivePermissions(rt authz.ResourceType, now time.Time) []authz.Permission {
	var out []authz.Permission
	add := func(perms []authz.Permission) {
		for _, p := range perms {
			if p.IsExpired(now) || (rt != "" && p.ResourceType != rt) {
				continue
			}
			out = append(out, p)
		}
	}
	add(u.permissions)
	for _, r := range u.customRoles {
		add(r.Permissions)
	}
	return out
}

// ============================================================================
// API keys
// ============================================================================

// CreateAPIKey mints a key owned by this user and returns it with the
// plaintext, which is never stored.
func (u *User) CreateAPIKey(p apikey.IssueParams, now time.Time) (apikey.APIKey, string, error) {
	key, plaintext, err := apikey.Issue(u.id, p, now)
	if err != nil {
		return apikey.APIKey{}, "", err
	}
	stored := cloneKey(key)
	u.apiKeys[key.ID] = &stored
	u.touch(now)
	u.record(EventAPIKeyCreated, now, map[string]any{
		"api_key_id":   key.ID,
		"api_key_name": key.Name,
	})
	return key, plaintext, nil
}

// RevokeAPIKey deactivates one of this user's keys.
func (u *User) RevokeAPIKey(id string, now time.Time) error {
	k, ok := u.apiKeys[id]
	if !ok {
		return apikey.ErrNotFound()
	}
	if !k.Revoke(now) {
		return nil
	}
	u.touch(now)
	u.record(EventAPIKeyRevoked, now, map[string]any{"api_key_id": id})
	return nil
}

// APIKey returns a copy of the key with id.
func (u *User) APIKey(id string) (apikey.APIKey, bool) {
	k, ok := u.apiKeys[id]
	if !ok {
		return apikey.APIKey{}, false
	}
	return cloneKey(*k), true
}

// APIKeys lists every key, oldest first.
func (u *User) APIKeys() []apikey.APIKey {
	out := make([]apikey.APIKey, 0, len(u.apiKeys))
	for _, k := range u.apiKeys {
		out = append(out, cloneKey(*k))
	}
	slices.SortFunc(out, func(a, b apikey.APIKey) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}
