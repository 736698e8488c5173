package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"openmarket/internal/domain"
	applog "openmarket/internal/log"
	"openmarket/internal/repos"
	"openmarket/internal/services"
	"openmarket/internal/validate"
)

type OrderHandler struct {
	Order *services.OrderService
}

type createOrderBody struct {
	Products   []services.LineRequest `json:"products"`
	Address    domain.Address         `json:"address"`
	State      string                 `json:"state"`
	FromCart   bool                   `json:"fromCart"`
	Discount   *domain.Discount       `json:"discount"`
	ExternalID string                 `json:"external_id"`
	DryRun     bool                   `json:"dry_run"`
}

// Create places an order. Retries are deduplicated on external_id; when the
// body carries none we honor X-Idempotency-Key, and failing that mint one so
// a duplicate submit of the same response is still traceable.
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	u := callerOf(c)
	var body createOrderBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "malformed body")
	}
	extID := body.ExternalID
	if extID == "" {
		extID = c.Get("X-Idempotency-Key")
	}
	if extID == "" && !body.DryRun {
		extID = uuid.NewString()
	}

	o, err := h.Order.Create(services.CreateOrderRequest{
		UserID:         u.ID,
		Products:       body.Products,
		Address:        body.Address,
		State:          body.State,
		FromCart:       body.FromCart,
		ClientDiscount: body.Discount,
		ExternalID:     extID,
		DryRun:         body.DryRun,
	})
	if err != nil {
		return fail(c, "order.create", err)
	}
	if !body.DryRun {
		applog.Audit(c, "order.create", map[string]any{"order": o.ID, "user": u.ID, "external_id": extID})
	}
	return ok(c, fiber.Map{"item": o})
}

func orderFilter(c *fiber.Ctx) repos.OrderFilter {
	col, asc := validate.Sort(c.Query("sort"))
	return repos.OrderFilter{
		State:   c.Query("state"),
		Keyword: c.Query("keyword"),
		Page:    validate.Page(c.Query("page")),
		Limit:   validate.Limit(c.Query("limit")),
		SortBy:  col,
		Asc:     asc,
	}
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	u := callerOf(c)
	page, err := h.Order.FindForUser(u.ID, orderFilter(c))
	if err != nil {
		return fail(c, "order.list", err)
	}
	return ok(c, fiber.Map{"items": page.Items, "pagination": page.Pagination})
}

func (h *OrderHandler) States(c *fiber.Ctx) error {
	u := callerOf(c)
	states, err := h.Order.FindStates(u.ID)
	if err != nil {
		return fail(c, "order.states", err)
	}
	return ok(c, fiber.Map{"items": states})
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	u := callerOf(c)
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		return badRequest(c, "invalid order id")
	}
	scope := u.ID
	if u.IsAdmin() {
		scope = 0
	}
	o, err := h.Order.FindByID(id, scope)
	if err != nil {
		return fail(c, "order.get", err)
	}
	return ok(c, fiber.Map{"item": o})
}

func (h *OrderHandler) Transition(c *fiber.Ctx) error {
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
		return fail(c, "order.transition", err)
	}
	applog.Audit(c, "order.transition", map[string]any{"order": id, "state": patch.State, "actor": u.ID})
	return ok(c, fiber.Map{"item": o})
}

func (h *OrderHandler) TransitionLine(c *fiber.Ctx) error {
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
		return fail(c, "order.transition.line", err)
	}
	applog.Audit(c, "order.transition.line", map[string]any{"order": id, "product": pid, "state": patch.State, "actor": u.ID})
	return ok(c, fiber.Map{"item": o})
}

type attachReviewBody struct {
	ReplyID int64 `json:"replyId"`
}

func (h *OrderHandler) AttachReview(c *fiber.Ctx) error {
	u := callerOf(c)
	id, okID := validate.ID(c.Params("id"))
	pid, okPID := validate.ID(c.Params("pid"))
	if !okID || !okPID {
		return badRequest(c, "invalid id")
	}
	var body attachReviewBody
	if err := c.BodyParser(&body); err != nil || body.ReplyID <= 0 {
		return badRequest(c, "replyId required")
	}
	if err := h.Order.AttachReviewReference(u, id, pid, body.ReplyID); err != nil {
		return fail(c, "order.review.attach", err)
	}
	return ok(c, nil)
}
