package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "openmarket/internal/log"
	"openmarket/internal/services"
	"openmarket/internal/validate"
)

// SellerHandler serves the seller-side order views. Every order is
// narrowed to the caller's own lines before it leaves the service.
type SellerHandler struct {
	Order *services.OrderService
}

func (h *SellerHandler) ListOrders(c *fiber.Ctx) error {
	u := callerOf(c)
	page, err := h.Order.FindForSeller(u.ID, orderFilter(c))
	if err != nil {
		return fail(c, "seller.orders.list", err)
	}
	return ok(c, fiber.Map{"items": page.Items, "pagination": page.Pagination})
}

func (h *SellerHandler) GetOrder(c *fiber.Ctx) error {
	u := callerOf(c)
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid order id")
	}
	o, err := h.Order.FindForSellerByID(id, u.ID)
	if err != nil {
		return fail(c, "seller.orders.get", err)
	}
	return ok(c, fiber.Map{"item": o})
}

func (h *SellerHandler) Transition(c *fiber.Ctx) error {
	u := callerOf(c)
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid order id")
	}
	var patch services.OrderPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "malformed body")
	}
	o, err := h.Order.TransitionOrder(u, id, patch)
	if err != nil {
		return fail(c, "seller.orders.transition", err)
	}
	applog.Audit(c, "seller.orders.transition", map[string]any{"order": id, "state": patch.State, "actor": u.ID})
	return ok(c, fiber.Map{"item": o})
}

func (h *SellerHandler) TransitionLine(c *fiber.Ctx) error {
	u := callerOf(c)
	id, okID := validate.ID(c.Params("id"))
	pid, okPID := validate.ID(c.Params("pid"))
	if !okID || !okPID {
		return badRequest(c, "invalid id")
	}
	var patch services.OrderPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "malformed body")
	}
	o, err := h.Order.TransitionLine(u, id, pid, patch)
	if err != nil {
		return fail(c, "seller.orders.transition.line", err)
	}
	applog.Audit(c, "seller.orders.transition.line", map[string]any{"order": id, "product": pid, "state": patch.State, "actor": u.ID})
	return ok(c, fiber.Map{"item": o})
}
