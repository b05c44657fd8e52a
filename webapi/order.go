package webapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/config"
	"github.com/stellarpay/starbridge/pkg/middleware"
	orderbooksvc "github.com/stellarpay/starbridge/pkg/service/orderbook"
)

// CreateOrderRequest places a P2P order. Sell orders are sized in Stars,
// buy orders in TON.
type CreateOrderRequest struct {
	Type        string `json:"type" validate:"required,oneof=buy sell"`
	StarsAmount int64  `json:"starsAmount" validate:"omitempty,gt=0"`
	TonAmount   string `json:"tonAmount" validate:"omitempty"`
	Rate        string `json:"rate" validate:"required"`
}

// OrderRoutes registers the P2P order book endpoints.
//
//   - POST   /orders     : Place a buy or sell order.
//   - DELETE /orders/:id : Cancel an open order owned by the caller.
func OrderRoutes(app *fiber.App, svc *orderbooksvc.Service, cfg *config.App) {
	app.Post("/orders", middleware.JwtProtected(cfg.Jwt), CreateOrder(svc))
	app.Delete("/orders/:id", middleware.JwtProtected(cfg.Jwt), CancelOrder(svc))
}

// CreateOrder returns a handler placing an order. A sell that crosses an
// open buy is matched before the response returns.
func CreateOrder(svc *orderbooksvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		input, err := BindAndValidate[CreateOrderRequest](c)
		if input == nil {
			return err
		}

		rate, err := decimal.NewFromString(input.Rate)
		if err != nil || rate.LessThanOrEqual(decimal.Zero) {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid rate", input.Rate)
		}

		switch input.Type {
		case "sell":
			if input.StarsAmount <= 0 {
				return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid order", "sell orders require starsAmount")
			}
			order, err := svc.CreateSellOrder(c.UserContext(), userID, input.StarsAmount, rate)
			if err != nil {
				log.Errorf("Failed to create sell order: %v", err)
				return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to create order", err.Error())
			}
			return SuccessResponseJSON(c, fiber.StatusCreated, "Order created", order)
		default:
			tonAmount, err := decimal.NewFromString(input.TonAmount)
			if err != nil || tonAmount.LessThanOrEqual(decimal.Zero) {
				return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid order", "buy orders require tonAmount")
			}
			order, err := svc.CreateBuyOrder(c.UserContext(), userID, tonAmount, rate)
			if err != nil {
				log.Errorf("Failed to create buy order: %v", err)
				return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to create order", err.Error())
			}
			return SuccessResponseJSON(c, fiber.StatusCreated, "Order created", order)
		}
	}
}

// CancelOrder returns a handler cancelling an open order. Matched or
// completed orders cannot be cancelled.
func CancelOrder(svc *orderbooksvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		orderID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid order ID", err.Error())
		}

		if err := svc.CancelOrder(c.UserContext(), userID, orderID); err != nil {
			log.Errorf("Failed to cancel order %s: %v", orderID, err)
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to cancel order", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Order cancelled", nil)
	}
}
