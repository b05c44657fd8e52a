package webapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/config"
	"github.com/stellarpay/starbridge/pkg/middleware"
	paymentsvc "github.com/stellarpay/starbridge/pkg/service/payment"
)

// PaymentWebhookRequest is a validated Stars payment notification from a
// platform integration.
type PaymentWebhookRequest struct {
	ExternalPaymentID string `json:"externalPaymentId" validate:"required"`
	StarsAmount       int64  `json:"starsAmount" validate:"required,gt=0"`
	Payload           string `json:"payload"`
}

// CreateDepositRequest issues a manual TON deposit intent against the
// platform hot wallet.
type CreateDepositRequest struct {
	ExpectedAmount string `json:"expectedAmount" validate:"required"`
	PaymentID      string `json:"paymentId" validate:"omitempty,uuid"`
}

// PaymentRoutes registers payment ingestion and deposit endpoints.
//
//   - POST /payments/webhook : Ingest a Stars payment notification.
//   - POST /deposits         : Issue a manual deposit intent.
func PaymentRoutes(app *fiber.App, svc *paymentsvc.Service, cfg *config.App) {
	app.Post("/payments/webhook", middleware.JwtProtected(cfg.Jwt), PaymentWebhook(svc))
	app.Post("/deposits", middleware.JwtProtected(cfg.Jwt), CreateDeposit(svc, cfg))
}

// PaymentWebhook returns a handler ingesting Stars payments. Redeliveries
// of the same externalPaymentId return the original row.
func PaymentWebhook(svc *paymentsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		input, err := BindAndValidate[PaymentWebhookRequest](c)
		if input == nil {
			return err
		}

		p, err := svc.Ingest(c.UserContext(), paymentsvc.IngestCmd{
			UserID:            userID,
			ExternalPaymentID: input.ExternalPaymentID,
			StarsAmount:       input.StarsAmount,
			RawPayload:        input.Payload,
		})
		if err != nil {
			log.Errorf("Failed to ingest payment: %v", err)
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to ingest payment", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusCreated, "Payment ingested", p)
	}
}

// CreateDeposit returns a handler issuing a manual deposit intent. The
// deposit monitor confirms it once the transfer lands on-chain.
func CreateDeposit(svc *paymentsvc.Service, cfg *config.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		input, err := BindAndValidate[CreateDepositRequest](c)
		if input == nil {
			return err
		}

		expected, err := decimal.NewFromString(input.ExpectedAmount)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid expected amount", input.ExpectedAmount)
		}

		var paymentID *uuid.UUID
		if input.PaymentID != "" {
			id, err := uuid.Parse(input.PaymentID)
			if err != nil {
				return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid payment ID", input.PaymentID)
			}
			paymentID = &id
		}

		d, err := svc.IssueDeposit(c.UserContext(), userID, cfg.Ton.HotWallet, expected, cfg.Ton.DepositTTL, paymentID)
		if err != nil {
			log.Errorf("Failed to issue deposit: %v", err)
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to issue deposit", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusCreated, "Deposit issued", d)
	}
}
