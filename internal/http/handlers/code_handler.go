package handlers

import (
	"github.com/gofiber/fiber/v2"

	"openmarket/internal/domain"
	applog "openmarket/internal/log"
	"openmarket/internal/registry"
	"openmarket/internal/repos"
	"openmarket/internal/validate"
)

// CodeHandler serves the code registry: public reads come from the
// in-memory snapshot, admin writes go to the store and then republish.
type CodeHandler struct {
	Codes *repos.CodeRepo
	Reg   *registry.Registry
}

func (h *CodeHandler) List(c *fiber.Ctx) error {
	return ok(c, fiber.Map{
		"item":    h.Reg.Nested(),
		"flatten": h.Reg.Flat(),
	})
}

func (h *CodeHandler) Get(c *fiber.Ctx) error {
	id, okID := validate.Code(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid code group id")
	}
	g, found := h.Reg.Group(id)
	if !found {
		return fail(c, "codes.get", domain.ErrNotFound)
	}
	return ok(c, fiber.Map{"item": g})
}

type codeGroupBody struct {
	ID    string             `json:"_id"`
	Title string             `json:"title"`
	Codes []domain.CodeEntry `json:"codes"`
}

func (h *CodeHandler) group(c *fiber.Ctx) (domain.CodeGroup, bool) {
	var body codeGroupBody
	if err := c.BodyParser(&body); err != nil {
		return domain.CodeGroup{}, false
	}
	id, okID := validate.Code(body.ID)
	title, okTitle := validate.Title(body.Title)
	if !okID || !okTitle {
		return domain.CodeGroup{}, false
	}
	for _, e := range body.Codes {
		if _, okCode := validate.Code(e.Code); !okCode {
			return domain.CodeGroup{}, false
		}
	}
	return domain.CodeGroup{ID: id, Title: title, Codes: body.Codes}, true
}

func (h *CodeHandler) Create(c *fiber.Ctx) error {
	g, okG := h.group(c)
	if !okG {
		return badRequest(c, "invalid code group")
	}
	created, err := h.Codes.Create(g)
	if err != nil {
		return fail(c, "codes.create", err)
	}
	if err := h.Reg.Reload(); err != nil {
		return fail(c, "codes.create", err)
	}
	applog.Audit(c, "codes.create", map[string]any{"group": created.ID, "actor": callerOf(c).ID})
	return ok(c, fiber.Map{"item": created})
}

func (h *CodeHandler) Update(c *fiber.Ctx) error {
	id, okID := validate.Code(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid code group id")
	}
	g, okG := h.group(c)
	if !okG {
		return badRequest(c, "invalid code group")
	}
	updated, err := h.Codes.Update(id, g)
	if err != nil {
		return fail(c, "codes.update", err)
	}
	if err := h.Reg.Reload(); err != nil {
		return fail(c, "codes.update", err)
	}
	applog.Audit(c, "codes.update", map[string]any{"group": id, "actor": callerOf(c).ID})
	return ok(c, fiber.Map{"item": updated})
}

func (h *CodeHandler) Delete(c *fiber.Ctx) error {
	id, okID := validate.Code(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid code group id")
	}
	if err := h.Codes.Delete(id); err != nil {
		return fail(c, "codes.delete", err)
	}
	if err := h.Reg.Reload(); err != nil {
		return fail(c, "codes.delete", err)
	}
	applog.Audit(c, "codes.delete", map[string]any{"group": id, "actor": callerOf(c).ID})
	return ok(c, nil)
}
