package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"openmarket/internal/domain"
	"openmarket/internal/services"
	"openmarket/internal/validate"
)

type CartHandler struct {
	Cart *services.CartService
}

type addCartBody struct {
	ProductID int64 `json:"_id"`
	Quantity  int   `json:"quantity"`
}

func (h *CartHandler) Add(c *fiber.Ctx) error {
	u := callerOf(c)
	var body addCartBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "malformed body")
	}
	if body.ProductID <= 0 {
		return badRequest(c, "_id required")
	}
	list, err := h.Cart.AddOrMerge(u.ID, body.ProductID, body.Quantity)
	if err != nil {
		return fail(c, "cart.add", err)
	}
	return ok(c, fiber.Map{"item": list.Items, "cost": list.Cost})
}

func (h *CartHandler) List(c *fiber.Ctx) error {
	u := callerOf(c)
	var discount *domain.Discount
	if raw := c.Query("discount"); raw != "" {
		var d domain.Discount
		if err := json.Unmarshal([]byte(raw), &d); err == nil {
			discount = &d
		}
	}
	list, err := h.Cart.ListForUser(u.ID, discount)
	if err != nil {
		return fail(c, "cart.list", err)
	}
	return ok(c, fiber.Map{"item": list.Items, "cost": list.Cost})
}

type localCartBody struct {
	Products []services.LineRequest `json:"products"`
	Discount *domain.Discount       `json:"discount"`
}

// QuoteLocal prices a cart that lives only on the client, for visitors
// who have not signed in yet.
func (h *CartHandler) QuoteLocal(c *fiber.Ctx) error {
	var body localCartBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "malformed body")
	}
	quote, err := h.Cart.QuoteLocal(body.Products, body.Discount)
	if err != nil {
		return fail(c, "cart.local", err)
	}
	return ok(c, fiber.Map{"item": quote.Items, "cost": quote.Cost})
}

type updateCartBody struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateQuantity(c *fiber.Ctx) error {
	u := callerOf(c)
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid cart id")
	}
	var body updateCartBody
	if err := c.BodyParser(&body); err != nil || body.Quantity < 1 {
		return badRequest(c, "quantity must be at least 1")
	}
	line, err := h.Cart.UpdateQuantity(u, id, body.Quantity)
	if err != nil {
		return fail(c, "cart.update", err)
	}
	return ok(c, fiber.Map{"item": line})
}

func (h *CartHandler) Remove(c *fiber.Ctx) error {
	u := callerOf(c)
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid cart id")
	}
	if err := h.Cart.Remove(u, id); err != nil {
		return fail(c, "cart.remove", err)
	}
	return ok(c, nil)
}

type removeManyBody struct {
	IDs []int64 `json:"carts"`
}

func (h *CartHandler) RemoveMany(c *fiber.Ctx) error {
	u := callerOf(c)
	var body removeManyBody
	if err := c.BodyParser(&body); err != nil || len(body.IDs) == 0 {
		return badRequest(c, "carts required")
	}
	if err := h.Cart.RemoveMany(u, body.IDs); err != nil {
		return fail(c, "cart.remove.many", err)
	}
	return ok(c, nil)
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	u := callerOf(c)
	if err := h.Cart.Clear(u.ID); err != nil {
		return fail(c, "cart.clear", err)
	}
	return ok(c, nil)
}

type mergeBody struct {
	Products []services.LineRequest `json:"products"`
}

// Merge folds a client-side cart into the stored one, summing quantities
// on collision. Used after login to absorb the anonymous cart.
func (h *CartHandler) Merge(c *fiber.Ctx) error {
	u := callerOf(c)
	var body mergeBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "malformed body")
	}
	list, err := h.Cart.Merge(u.ID, body.Products)
	if err != nil {
		return fail(c, "cart.merge", err)
	}
	return ok(c, fiber.Map{"item": list.Items, "cost": list.Cost})
}

func (h *CartHandler) Replace(c *fiber.Ctx) error {
	u := callerOf(c)
	var body mergeBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "malformed body")
	}
	list, err := h.Cart.ReplaceAll(u.ID, body.Products)
	if err != nil {
		return fail(c, "cart.replace", err)
	}
	return ok(c, fiber.Map{"item": list.Items, "cost": list.Cost})
}
