package identitysrv

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// ============================================================================
// Authorization
// ============================================================================

// Authorize answers whether the caller may perform pt on a resource. API key
// callers are judged by the key's own permissions only.
func (s *IdentityService) Authorize(ctx context.Context, ac *kernel.AuthContext, rt authz.ResourceType, pt authz.PermissionType, resourceID string) (bool, error) {
	d, err := s.decide(ctx, ac, authz.Request{ResourceType: rt, PermissionType: pt, ResourceID: resourceID})
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Check is the service-to-service form of Authorize.
func (s *IdentityService) Check(ctx context.Context, ac *kernel.AuthContext, req identity.AuthorizeRequest) (_ *identity.AuthorizeResponse, err error) {
	ctx, span := s.startSpan(ctx, "Check",
		attribute.String("authz.resource_type", string(req.ResourceType)),
		attribute.String("authz.permission_type", string(req.PermissionType)))
	defer func() { endSpan(span, err) }()

	if err := identity.Validate(req); err != nil {
		return nil, err
	}
	d, err := s.decide(ctx, ac, authz.Request{
		ResourceType:   req.ResourceType,
		PermissionType: req.PermissionType,
		ResourceID:     req.ResourceID,
	})
	if err != nil {
		return nil, err
	}
	return &identity.AuthorizeResponse{Allowed: d.Allowed, Rule: d.Rule}, nil
}

func (s *IdentityService) decide(ctx context.Context, ac *kernel.AuthContext, r authz.Request) (authz.Decision, error) {
	if !ac.IsValid() {
		return authz.Decision{}, iam.ErrUnauthorized()
	}
	u, err := s.users.FindByID(ctx, ac.UserID)
	if err != nil {
		if errx.IsCode(err, user.CodeUserNotFound) {
			return authz.Decision{}, nil
		}
		return authz.Decision{}, err
	}
	now := s.clock.Now()
	if !u.Status().CanAuthenticate() {
		return authz.Decision{}, nil
	}

	if ac.IsAPIKey {
		key, ok := u.APIKey(ac.APIKeyID)
		if !ok || !key.IsValid(now) {
			return authz.Decision{}, nil
		}
		if key.Grants(r.ResourceType, r.PermissionType, r.ResourceID, now) {
			return authz.Decision{Allowed: true, Rule: "api_key_permission"}, nil
		}
		return authz.Decision{}, nil
	}
	return s.engine.Evaluate(u.Subject(), r), nil
}

// GetUserPermissions lists the unexpired direct and custom-role grants of a
// user, optionally for one resource type.
func (s *IdentityService) GetUserPermissions(ctx context.Context, id kernel.UserID, rt authz.ResourceType) (*identity.PermissionsResponse, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &identity.PermissionsResponse{
		UserID:      u.ID(),
		Roles:       u.Roles(),
		Permissions: u.EffectivePermissions(rt, s.clock.Now()),
	}, nil
}

// ============================================================================
// Administration
// ============================================================================

func (s *IdentityService) GetUser(ctx context.Context, id kernel.UserID) (*identity.UserDTO, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := identity.ToUserDTO(u)
	return &dto, nil
}

func (s *IdentityService) ListUsers(ctx context.Context, req identity.ListUsersRequest) (kernel.Paginated[identity.UserDTO], error) {
	page, err := s.users.List(ctx, user.ListFilter{
		TenantID: kernel.TenantID(req.TenantID),
		Status:   user.Status(req.Status),
	}, req.PaginationOptions)
	if err != nil {
		return kernel.Paginated[identity.UserDTO]{}, err
	}
	return kernel.MapPaginated(page, identity.ToUserDTO), nil
}

func (s *IdentityService) VerifyEmail(ctx context.Context, id kernel.UserID) (*identity.UserDTO, error) {
	return s.adminMutate(ctx, "VerifyEmail", id, func(u *user.User) error {
		u.VerifyEmail(s.clock.Now())
		return nil
	})
}

// UnlockAccount lifts a lockout before it elapses.
func (s *IdentityService) UnlockAccount(ctx context.Context, id kernel.UserID) (*identity.UserDTO, error) {
	return s.adminMutate(ctx, "UnlockAccount", id, func(u *user.User) error {
		u.Unlock(s.clock.Now())
		return nil
	})
}

// RequirePasswordReset forces the user through a password change.
func (s *IdentityService) RequirePasswordReset(ctx context.Context, id kernel.UserID) (*identity.UserDTO, error) {
	return s.adminMutate(ctx, "RequirePasswordReset", id, func(u *user.User) error {
		u.RequirePasswordReset(s.clock.Now())
		return nil
	})
}

// Deactivate makes the account Inactive and ends every session and refresh
// token it holds.
func (s *IdentityService) Deactivate(ctx context.Context, id kernel.UserID) (*identity.UserDTO, error) {
	var revoked []kernel.SessionID
	dto, err := s.adminMutate(ctx, "Deactivate", id, func(u *user.User) error {
		revoked = u.Deactivate(s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Revoke(ctx, id, revoked...); err != nil {
		return nil, err
	}
	if err := s.tokens.RevokeAllRefreshTokens(ctx, id); err != nil {
		return nil, err
	}
	return dto, nil
}

// ============================================================================
// Role and permission changes
// ============================================================================

// Role and grant changes are checked against the caller as well as the route
// guard: nobody changes their own access, only a super admin hands out or
// takes away the admin roles, Delete and Admin grants, or touches another
// super admin, and no caller grants what it does not hold itself.

func privilegedRole(r authz.SystemRole) bool {
	return r == authz.RoleSuperAdmin || r == authz.RoleAdmin
}

func privilegedPermission(pt authz.PermissionType) bool {
	return pt == authz.PermDelete || pt == authz.PermAdmin
}

// grantor loads the caller changing the access of target.
func (s *IdentityService) grantor(ctx context.Context, ac *kernel.AuthContext, target kernel.UserID) (*user.User, error) {
	id, err := callerID(ac)
	if err != nil {
		return nil, err
	}
	if id == target {
		return nil, iam.ErrAccessDenied().WithDetail("reason", "cannot change your own access")
	}
	return s.loadCaller(ctx, id)
}

func checkTarget(caller, target *user.User) error {
	if target.HasRole(authz.RoleSuperAdmin) && !caller.HasRole(authz.RoleSuperAdmin) {
		return iam.ErrAccessDenied().WithDetail("reason", "target is a super admin")
	}
	return nil
}

func checkRole(caller *user.User, role authz.SystemRole) error {
	if privilegedRole(role) && !caller.HasRole(authz.RoleSuperAdmin) {
		return iam.ErrAccessDenied().WithDetail("role", string(role))
	}
	return nil
}

func (s *IdentityService) checkPermission(caller *user.User, p authz.Permission) error {
	if privilegedPermission(p.PermissionType) && !caller.HasRole(authz.RoleSuperAdmin) {
		return iam.ErrAccessDenied().
			WithDetail("resource_type", string(p.ResourceType)).
			WithDetail("permission_type", string(p.PermissionType))
	}
	if !caller.HasPermission(s.engine, p.ResourceType, p.PermissionType, p.ResourceID) {
		return identity.ErrPermissionNotHeld().
			WithDetail("resource_type", string(p.ResourceType)).
			WithDetail("permission_type", string(p.PermissionType))
	}
	return nil
}

func (s *IdentityService) AddRole(ctx context.Context, ac *kernel.AuthContext, id kernel.UserID, req identity.RoleRequest) (*identity.UserDTO, error) {
	if err := identity.Validate(req); err != nil {
		return nil, err
	}
	caller, err := s.grantor(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	if err := checkRole(caller, req.Role); err != nil {
		return nil, err
	}
	return s.adminMutate(ctx, "AddRole", id, func(u *user.User) error {
		if err := checkTarget(caller, u); err != nil {
			return err
		}
		return u.AddRole(req.Role, s.clock.Now())
	})
}

func (s *IdentityService) RemoveRole(ctx context.Context, ac *kernel.AuthContext, id kernel.UserID, role authz.SystemRole) (*identity.UserDTO, error) {
	caller, err := s.grantor(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	if err := checkRole(caller, role); err != nil {
		return nil, err
	}
	return s.adminMutate(ctx, "RemoveRole", id, func(u *user.User) error {
		if err := checkTarget(caller, u); err != nil {
			return err
		}
		u.RemoveRole(role, s.clock.Now())
		return nil
	})
}

// GrantPermission adds a direct grant recorded as given by the caller.
func (s *IdentityService) GrantPermission(ctx context.Context, ac *kernel.AuthContext, id kernel.UserID, in identity.PermissionInput) (*identity.UserDTO, error) {
	if err := identity.Validate(in); err != nil {
		return nil, err
	}
	caller, err := s.grantor(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	p := in.ToPermission()
	if err := s.checkPermission(caller, p); err != nil {
		return nil, err
	}
	p.GrantedBy = caller.ID()
	return s.adminMutate(ctx, "GrantPermission", id, func(u *user.User) error {
		if err := checkTarget(caller, u); err != nil {
			return err
		}
		return u.AddPermission(p, s.clock.Now())
	})
}

func (s *IdentityService) RevokePermission(ctx context.Context, ac *kernel.AuthContext, id kernel.UserID, in identity.PermissionInput) (*identity.UserDTO, error) {
	if err := identity.Validate(in); err != nil {
		return nil, err
	}
	caller, err := s.grantor(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	p := in.ToPermission()
	if err := s.checkPermission(caller, p); err != nil {
		return nil, err
	}
	return s.adminMutate(ctx, "RevokePermission", id, func(u *user.User) error {
		if err := checkTarget(caller, u); err != nil {
			return err
		}
		u.RemovePermission(p, s.clock.Now())
		return nil
	})
}

// AssignCustomRole attaches a named permission bundle to the user. The
// caller must be able to grant every permission in it.
func (s *IdentityService) AssignCustomRole(ctx context.Context, ac *kernel.AuthContext, id kernel.UserID, role authz.Role) (*identity.UserDTO, error) {
	caller, err := s.grantor(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	for _, p := range role.Permissions {
		if err := s.checkPermission(caller, p); err != nil {
			return nil, err
		}
	}
	role.CreatedBy = caller.ID()
	return s.adminMutate(ctx, "AssignCustomRole", id, func(u *user.User) error {
		if err := checkTarget(caller, u); err != nil {
			return err
		}
		return u.AssignCustomRole(role, s.clock.Now())
	})
}

func (s *IdentityService) RemoveCustomRole(ctx context.Context, ac *kernel.AuthContext, id kernel.UserID, name string) (*identity.UserDTO, error) {
	caller, err := s.grantor(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	return s.adminMutate(ctx, "RemoveCustomRole", id, func(u *user.User) error {
		if err := checkTarget(caller, u); err != nil {
			return err
		}
		for _, r := range u.CustomRoles() {
			if r.Name != name {
				continue
			}
			for _, p := range r.Permissions {
				if err := s.checkPermission(caller, p); err != nil {
					return err
				}
			}
		}
		u.RemoveCustomRole(name, s.clock.Now())
		return nil
	})
}

// DeleteUser removes the user with its keys and ends its sessions.
func (s *IdentityService) DeleteUser(ctx context.Context, id kernel.UserID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteUser", attribute.String("user.id", id.String()))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	var sids []kernel.SessionID
	for _, sess := range u.ActiveSessions(s.clock.Now()) {
		sids = append(sids, sess.ID)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, id, sids...); err != nil {
		return err
	}
	return s.tokens.RevokeAllRefreshTokens(ctx, id)
}

func (s *IdentityService) adminMutate(ctx context.Context, op string, id kernel.UserID, fn func(u *user.User) error) (_ *identity.UserDTO, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("user.id", id.String()))
	defer func() { endSpan(span, err) }()

	u, err := s.mutate(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	dto := identity.ToUserDTO(u)
	return &dto, nil
}
