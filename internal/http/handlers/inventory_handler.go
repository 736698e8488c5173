package handlers

import (
	"github.com/gofiber/fiber/v2"

	"openmarket/internal/services"
	"openmarket/internal/validate"
)

type InventoryHandler struct {
	Inv *services.InventoryService
}

// Availability reports how many units of a product can still be reserved.
func (h *InventoryHandler) Availability(c *fiber.Ctx) error {
	id, okID := validate.ID(c.Query("productId"))
	if !okID {
		return badRequest(c, "productId required")
	}
	avail, err := h.Inv.Available(id)
	if err != nil {
		return fail(c, "inventory.availability", err)
	}
	return ok(c, fiber.Map{"productId": id, "available": avail})
}
