package identityapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

func (h *IdentityHandlers) ListUsers(c *fiber.Ctx) error {
	var req identity.ListUsersRequest
	if err := c.QueryParser(&req); err != nil {
		return identity.ErrInvalidRequest().WithDetail("reason", "malformed query")
	}
	page, err := h.service.ListUsers(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *IdentityHandlers) GetUser(c *fiber.Ctx) error {
	u, err := h.service.GetUser(c.UserContext(), userParam(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) GetUserPermissions(c *fiber.Ctx) error {
	resp, err := h.service.GetUserPermissions(c.UserContext(), userParam(c), authz.ResourceType(c.Query("resource_type")))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *IdentityHandlers) VerifyEmail(c *fiber.Ctx) error {
	u, err := h.service.VerifyEmail(c.UserContext(), userParam(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) Unlock(c *fiber.Ctx) error {
	u, err := h.service.UnlockAccount(c.UserContext(), userParam(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) Deactivate(c *fiber.Ctx) error {
	u, err := h.service.Deactivate(c.UserContext(), userParam(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) RequirePasswordReset(c *fiber.Ctx) error {
	u, err := h.service.RequirePasswordReset(c.UserContext(), userParam(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) AddRole(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.RoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.service.AddRole(c.UserContext(), ac, userParam(c), req)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) RemoveRole(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	u, err := h.service.RemoveRole(c.UserContext(), ac, userParam(c), authz.SystemRole(c.Params("role")))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) GrantPermission(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.PermissionInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.service.GrantPermission(c.UserContext(), ac, userParam(c), req)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) RevokePermission(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var req identity.PermissionInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.service.RevokePermission(c.UserContext(), ac, userParam(c), req)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) AssignCustomRole(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	var role authz.Role
	if err := parseBody(c, &role); err != nil {
		return err
	}
	u, err := h.service.AssignCustomRole(c.UserContext(), ac, userParam(c), role)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) RemoveCustomRole(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	u, err := h.service.RemoveCustomRole(c.UserContext(), ac, userParam(c), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *IdentityHandlers) DeleteUser(c *fiber.Ctx) error {
	if err := h.service.DeleteUser(c.UserContext(), kernel.UserID(c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
