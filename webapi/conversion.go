package webapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/stellarpay/starbridge/pkg/config"
	"github.com/stellarpay/starbridge/pkg/middleware"
	conversionsvc "github.com/stellarpay/starbridge/pkg/service/conversion"
)

// QuoteRequest asks for an indicative Stars→TON quote.
type QuoteRequest struct {
	StarsAmount    int64  `json:"starsAmount" validate:"required,gt=0"`
	TargetCurrency string `json:"targetCurrency" validate:"required,len=3"`
}

// LockRateRequest locks the current quote for a short window.
type LockRateRequest struct {
	StarsAmount    int64  `json:"starsAmount" validate:"required,gt=0"`
	TargetCurrency string `json:"targetCurrency" validate:"required,len=3"`
}

// CreateConversionRequest starts a conversion over received payments.
type CreateConversionRequest struct {
	PaymentIDs     []string `json:"paymentIds" validate:"required,min=1,dive,uuid"`
	TargetCurrency string   `json:"targetCurrency" validate:"required,len=3"`
}

// ConversionRoutes registers the conversion endpoints.
//
//   - POST /quotes            : Indicative quote for a Stars amount.
//   - POST /quotes/lock       : Lock the current rate for the quote window.
//   - POST /conversions       : Create a conversion from received payments.
//   - GET  /conversions/:id   : Fetch one conversion.
func ConversionRoutes(app *fiber.App, svc *conversionsvc.Service, cfg *config.App) {
	app.Post("/quotes", middleware.JwtProtected(cfg.Jwt), GetQuote(svc))
	app.Post("/quotes/lock", middleware.JwtProtected(cfg.Jwt), LockRate(svc, cfg))
	app.Post("/conversions", middleware.JwtProtected(cfg.Jwt), CreateConversion(svc))
	app.Get("/conversions/:id", middleware.JwtProtected(cfg.Jwt), GetConversion(svc))
}

// GetQuote returns a handler serving indicative quotes. Quotes are not
// persisted; locking is a separate call.
func GetQuote(svc *conversionsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := BindAndValidate[QuoteRequest](c)
		if input == nil {
			return err
		}
		quote, err := svc.Quote(c.UserContext(), input.StarsAmount, "XTR", input.TargetCurrency)
		if err != nil {
			log.Errorf("Failed to compute quote: %v", err)
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to compute quote", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Quote computed", quote)
	}
}

// LockRate returns a handler that locks the current rate, creating a
// rate_locked conversion the client can fund within the validity window.
func LockRate(svc *conversionsvc.Service, cfg *config.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		input, err := BindAndValidate[LockRateRequest](c)
		if input == nil {
			return err
		}
		conv, err := svc.LockRate(c.UserContext(), userID, input.StarsAmount, "XTR", input.TargetCurrency, cfg.Rates.QuoteValidity)
		if err != nil {
			log.Errorf("Failed to lock rate: %v", err)
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to lock rate", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusCreated, "Rate locked", conv)
	}
}

// CreateConversion returns a handler that accepts a conversion request and
// hands execution to the background worker. The response carries the
// pending conversion; poll GET /conversions/:id for progress.
func CreateConversion(svc *conversionsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		input, err := BindAndValidate[CreateConversionRequest](c)
		if input == nil {
			return err
		}

		paymentIDs := make([]uuid.UUID, 0, len(input.PaymentIDs))
		for _, raw := range input.PaymentIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid payment ID", raw)
			}
			paymentIDs = append(paymentIDs, id)
		}

		conv, err := svc.CreateConversion(c.UserContext(), userID, paymentIDs, input.TargetCurrency)
		if err != nil {
			log.Errorf("Failed to create conversion: %v", err)
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to create conversion", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusAccepted, "Conversion accepted", conv)
	}
}

// GetConversion returns a handler fetching one conversion owned by the
// caller.
func GetConversion(svc *conversionsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid conversion ID", err.Error())
		}

		conv, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to fetch conversion", err.Error())
		}
		if conv.UserID != userID {
			return ErrorResponseJSON(c, fiber.StatusNotFound, "Conversion not found", nil)
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Conversion", conv)
	}
}
