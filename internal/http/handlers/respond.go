package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"openmarket/internal/domain"
	applog "openmarket/internal/log"
)

// ok wraps a payload in the {ok:1, <key>: ...} envelope.
func ok(c *fiber.Ctx, kv fiber.Map) error {
	body := fiber.Map{"ok": 1}
	for k, v := range kv {
		body[k] = v
	}
	return c.JSON(body)
}

// fail maps a domain error onto a status code and the {ok:0, message}
// envelope. Unknown errors surface as 500 and get logged here so handlers
// can just return fail(c, action, err).
func fail(c *fiber.Ctx, action string, err error) error {
	var (
		ve  *domain.ValidationError
		pe  *domain.ProductNotFoundError
		ise *domain.InsufficientStockError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ise):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"ok": 0, "message": err.Error()})
	case errors.As(err, &pe):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"ok": 0, "message": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": 0, "message": "not found"})
	case errors.Is(err, domain.ErrUnauthorized):
		applog.Security(c, action+".denied", map[string]any{"caller": callerOf(c).ID})
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": 0, "message": "forbidden"})
	case errors.Is(err, domain.ErrRegistryUnavailable):
		applog.Error(c, action, err, nil)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": 0, "message": "code registry unavailable"})
	default:
		applog.Error(c, action, err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": 0, "message": "internal error"})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": 0, "message": msg})
}
