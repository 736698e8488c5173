package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"openmarket/internal/domain"
	applog "openmarket/internal/log"
)

// Identity reads the caller from the gateway-set X-User-Id and X-User-Type
// headers. Authentication happens upstream; this service only needs to
// know who is asking.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, _ := strconv.ParseInt(c.Get("X-User-Id"), 10, 64)
		typ := c.Get("X-User-Type")
		if typ == "" {
			typ = "user"
		}
		c.Locals("caller", domain.Caller{ID: id, Type: typ})
		return c.Next()
	}
}

func callerOf(c *fiber.Ctx) domain.Caller {
	if u, ok := c.Locals("caller").(domain.Caller); ok {
		return u
	}
	return domain.Caller{}
}

// RequireUser rejects requests that carry no caller identity.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if callerOf(c).ID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": 0, "message": "login required"})
		}
		return c.Next()
	}
}

func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := callerOf(c)
		if !u.IsAdmin() {
			applog.Security(c, "access.denied.admin", map[string]any{"caller": u.ID, "type": u.Type})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": 0, "message": "forbidden"})
		}
		return c.Next()
	}
}
