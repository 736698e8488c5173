package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jmoiron/sqlx"

	applog "openmarket/internal/log"
	"openmarket/internal/registry"
	"openmarket/internal/repos"
	"openmarket/internal/services"
)

type Deps struct {
	OrderHandler     *OrderHandler
	SellerHandler    *SellerHandler
	CartHandler      *CartHandler
	CodeHandler      *CodeHandler
	InventoryHandler *InventoryHandler
	Registry         *registry.Registry
}

func NewDeps(db *sqlx.DB) *Deps {
	codeRepo := repos.NewCodeRepo(db)
	prodRepo := repos.NewProductRepo(db)
	invRepo := repos.NewInventoryRepo(db)
	cartRepo := repos.NewCartRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	userRepo := repos.NewUserRepo(db)

	reg := registry.New(codeRepo)
	estimator := services.NewStandardEstimator(reg)
	invSvc := services.NewInventoryService(invRepo)
	cartSvc := services.NewCartService(cartRepo, prodRepo, userRepo, estimator)
	orderSvc := services.NewOrderService(orderRepo, prodRepo, invSvc, cartRepo, userRepo, reg, estimator)

	return &Deps{
		OrderHandler:     &OrderHandler{Order: orderSvc},
		SellerHandler:    &SellerHandler{Order: orderSvc},
		CartHandler:      &CartHandler{Cart: cartSvc},
		CodeHandler:      &CodeHandler{Codes: codeRepo, Reg: reg},
		InventoryHandler: &InventoryHandler{Inv: invSvc},
		Registry:         reg,
	}
}

// Register mounts every route. Split out of main so handler tests can
// stand up the same app against a throwaway database.
func (d *Deps) Register(app *fiber.App) {
	app.Use(Identity())

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": 1}) })

	app.Get("/codes", d.CodeHandler.List)
	app.Get("/codes/:id", d.CodeHandler.Get)

	api := app.Group("/api/v1")
	availLimiter := limiter.New(limiter.Config{
		Max:        15,
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|avail"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.availability.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"ok": 0, "message": "rate limit exceeded, retry soon"})
		},
	})
	api.Get("/availability", availLimiter, d.InventoryHandler.Availability)

	app.Post("/carts/local", d.CartHandler.QuoteLocal)

	carts := app.Group("/carts", RequireUser())
	carts.Post("/", d.CartHandler.Add)
	carts.Get("/", d.CartHandler.List)
	carts.Put("/replace", d.CartHandler.Replace)
	carts.Put("/", d.CartHandler.Merge)
	carts.Delete("/cleanup", d.CartHandler.Clear)
	carts.Patch("/:id", d.CartHandler.UpdateQuantity)
	carts.Delete("/:id", d.CartHandler.Remove)
	carts.Delete("/", d.CartHandler.RemoveMany)

	orders := app.Group("/orders", RequireUser())
	orders.Post("/", d.OrderHandler.Create)
	orders.Get("/state", d.OrderHandler.States)
	orders.Get("/", d.OrderHandler.List)
	orders.Get("/:id", d.OrderHandler.Get)
	orders.Patch("/:id/products/:pid/reply", d.OrderHandler.AttachReview)
	orders.Patch("/:id/products/:pid", d.OrderHandler.TransitionLine)
	orders.Patch("/:id", d.OrderHandler.Transition)

	seller := app.Group("/seller", RequireUser())
	seller.Get("/orders", d.SellerHandler.ListOrders)
	seller.Get("/orders/:id", d.SellerHandler.GetOrder)
	seller.Patch("/orders/:id/products/:pid", d.SellerHandler.TransitionLine)
	seller.Patch("/orders/:id", d.SellerHandler.Transition)

	admin := app.Group("/admin", RequireUser(), RequireAdmin())
	admin.Post("/codes", d.CodeHandler.Create)
	admin.Put("/codes/:id", d.CodeHandler.Update)
	admin.Delete("/codes/:id", d.CodeHandler.Delete)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": 0, "message": "not found"})
	})
}
