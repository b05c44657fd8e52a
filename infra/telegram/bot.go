// Package telegram receives Telegram Stars payments over the Bot API and
// feeds them into payment ingestion. It is a thin transport: validation
// and idempotency live in the payment service.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/stellarpay/starbridge/pkg/service/payment"
)

// userNamespace turns Telegram numeric user IDs into stable platform
// user UUIDs.
var userNamespace = uuid.MustParse("7c9e6579-7425-40de-944b-e07fc1f90ae7")

// Bot wraps the Telegram bot with Stars payment handling.
type Bot struct {
	bot      *bot.Bot
	payments *payment.Service
	log      *slog.Logger
}

// New creates the bot and registers its handlers.
func New(token string, payments *payment.Service, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		payments: payments,
		log:      log.With("component", "telegram_bot"),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b.bot = tgBot

	return b, nil
}

// Start starts long polling. Blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// PlatformUserID maps a Telegram user ID to its platform user UUID.
func PlatformUserID(telegramID int64) uuid.UUID {
	return uuid.NewSHA1(userNamespace, []byte(fmt.Sprintf("tg:%d", telegramID)))
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	switch {
	case update.PreCheckoutQuery != nil:
		b.answerPreCheckout(ctx, tgBot, update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		b.handleSuccessfulPayment(ctx, update.Message)
	}
}

// answerPreCheckout approves the checkout; Telegram requires an answer
// within 10 seconds or the payment is cancelled.
func (b *Bot) answerPreCheckout(ctx context.Context, tgBot *bot.Bot, q *models.PreCheckoutQuery) {
	if _, err := tgBot.AnswerPreCheckoutQuery(ctx, &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: q.ID,
		OK:                 true,
	}); err != nil {
		b.log.Error("answer pre-checkout failed", "query_id", q.ID, "error", err)
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *models.Message) {
	sp := msg.SuccessfulPayment
	if sp.Currency != "XTR" {
		b.log.Warn("ignoring non-Stars payment", "currency", sp.Currency)
		return
	}

	raw, err := json.Marshal(sp)
	if err != nil {
		raw = nil
	}

	p, err := b.payments.Ingest(ctx, payment.IngestCmd{
		UserID:            PlatformUserID(msg.From.ID),
		ExternalPaymentID: sp.TelegramPaymentChargeID,
		StarsAmount:       int64(sp.TotalAmount),
		RawPayload:        string(raw),
	})
	if err != nil {
		b.log.Error("stars payment ingestion failed",
			"charge_id", sp.TelegramPaymentChargeID,
			"telegram_user", msg.From.ID,
			"error", err,
		)
		return
	}

	b.log.Info("stars payment ingested",
		"payment_id", p.ID,
		"stars", p.StarsAmount,
		"telegram_user", msg.From.ID,
	)
}
