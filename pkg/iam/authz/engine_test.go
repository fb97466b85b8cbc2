package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

func TestEngineEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	engine := NewEngine(kernel.NewFixedClock(now))

	tests := []struct {
		name    string
		subject Subject
		req     Request
		allowed bool
		rule    string
	}{
		{
			name:    "super admin allows everything",
			subject: Subject{Roles: []SystemRole{RoleSuperAdmin}},
			req:     Request{ResourceType: ResourceSystem, PermissionType: PermDelete},
			allowed: true,
			rule:    "super_admin",
		},
		{
			name:    "admin allows write",
			subject: Subject{Roles: []SystemRole{RoleAdmin}},
			req:     Request{ResourceType: ResourceInvoice, PermissionType: PermWrite, ResourceID: "inv-1"},
			allowed: true,
			rule:    "admin",
		},
		{
			name:    "admin denied delete",
			subject: Subject{Roles: []SystemRole{RoleAdmin}},
			req:     Request{ResourceType: ResourceInvoice, PermissionType: PermDelete, ResourceID: "inv-1"},
			allowed: false,
		},
		{
			name: "direct grant lets admin delete",
			subject: Subject{
				Roles:       []SystemRole{RoleAdmin},
				Permissions: []Permission{{ResourceType: ResourceInvoice, PermissionType: PermDelete}},
			},
			req:     Request{ResourceType: ResourceInvoice, PermissionType: PermDelete, ResourceID: "inv-1"},
			allowed: true,
			rule:    "direct_permission",
		},
		{
			name: "wildcard direct grant",
			subject: Subject{
				Permissions: []Permission{{ResourceType: ResourceProject, PermissionType: PermRead}},
			},
			req:     Request{ResourceType: ResourceProject, PermissionType: PermRead, ResourceID: "proj-1"},
			allowed: true,
			rule:    "direct_permission",
		},
		{
			name: "instance grant does not cover other instance",
			subject: Subject{
				Permissions: []Permission{{ResourceType: ResourceProject, PermissionType: PermRead, ResourceID: "proj-1"}},
			},
			req:     Request{ResourceType: ResourceProject, PermissionType: PermRead, ResourceID: "proj-2"},
			allowed: false,
		},
		{
			name: "expired grant is ignored",
			subject: Subject{
				Permissions: []Permission{{ResourceType: ResourceProject, PermissionType: PermRead, ExpiresAt: &past}},
			},
			req:     Request{ResourceType: ResourceProject, PermissionType: PermRead},
			allowed: false,
		},
		{
			name: "unexpired grant applies",
			subject: Subject{
				Permissions: []Permission{{ResourceType: ResourceProject, PermissionType: PermRead, ExpiresAt: &future}},
			},
			req:     Request{ResourceType: ResourceProject, PermissionType: PermRead},
			allowed: true,
			rule:    "direct_permission",
		},
		{
			name: "custom role grant",
			subject: Subject{
				CustomRoles: []Role{{
					Name:        "auditor",
					Permissions: []Permission{{ResourceType: ResourceDocument, PermissionType: PermRead}},
				}},
			},
			req:     Request{ResourceType: ResourceDocument, PermissionType: PermRead, ResourceID: "doc-1"},
			allowed: true,
			rule:    "custom_role",
		},
		{
			name:    "plain role without grants is denied",
			subject: Subject{Roles: []SystemRole{RoleTeamMember}},
			req:     Request{ResourceType: ResourceProject, PermissionType: PermRead},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Evaluate(tt.subject, tt.req)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.rule, d.Rule)
		})
	}
}

func TestPermissionSameGrant(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Permission{ResourceType: ResourceClient, PermissionType: PermRead, ExpiresAt: &at}
	b := Permission{ResourceType: ResourceClient, PermissionType: PermRead, ExpiresAt: &at, GrantedBy: "someone"}
	c := Permission{ResourceType: ResourceClient, PermissionType: PermRead}

	assert.True(t, a.SameGrant(b))
	assert.False(t, a.SameGrant(c))
}

func TestCatalogs(t *testing.T) {
	assert.Len(t, SystemRoles(), 7)
	assert.True(t, ResourceInvoice.IsValid())
	assert.False(t, ResourceType("planet").IsValid())
	assert.True(t, PermExecute.IsValid())
}
