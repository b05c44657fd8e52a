// Package webapi exposes the HTTP surface of the conversion platform
// using the Fiber web framework.
package webapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/stellarpay/starbridge/pkg/config"
	conversionsvc "github.com/stellarpay/starbridge/pkg/service/conversion"
	orderbooksvc "github.com/stellarpay/starbridge/pkg/service/orderbook"
	paymentsvc "github.com/stellarpay/starbridge/pkg/service/payment"
)

// NewApp builds the Fiber application with all routes registered.
func NewApp(
	conversions *conversionsvc.Service,
	orders *orderbooksvc.Service,
	payments *paymentsvc.Service,
	cfg *config.App,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
			return ErrorResponseJSON(c, status, "Internal Server Error", err.Error())
		},
	})

	app.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return ErrorResponseJSON(c, fiber.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded")
		},
	}))
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("starbridge is up")
	})

	ConversionRoutes(app, conversions, cfg)
	OrderRoutes(app, orders, cfg)
	PaymentRoutes(app, payments, cfg)

	return app
}
