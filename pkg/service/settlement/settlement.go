// Package settlement batches completed conversions into fiat settlement
// records and finalizes them. The cycle is two-phase: prepare creates
// settlement rows, complete finalizes them; both phases are bounded per
// cycle and exactly-once per conversion.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
	"github.com/stellarpay/starbridge/pkg/service/fees"
)

// Processor runs the periodic settlement cycle.
type Processor struct {
	uow      repository.UnitOfWork
	fees     *fees.Service
	webhooks provider.WebhookQueue
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates the settlement processor. batch bounds the rows handled per
// phase per cycle.
func New(
	uow repository.UnitOfWork,
	feeSvc *fees.Service,
	webhooks provider.WebhookQueue,
	batch int,
	logger *slog.Logger,
	opts ...Option,
) *Processor {
	p := &Processor{
		uow:      uow,
		fees:     feeSvc,
		webhooks: webhooks,
		batch:    batch,
		logger:   logger.With("service", "settlement"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessCycle runs one prepare pass then one complete pass. Safe to call
// back to back: the second call finds settlements already created and
// conversions already settled, and does nothing.
func (p *Processor) ProcessCycle(ctx context.Context) {
	if err := p.prepare(ctx); err != nil {
		p.logger.Error("prepare phase", "error", err)
	}
	if err := p.complete(ctx); err != nil {
		p.logger.Error("complete phase", "error", err)
	}
}

// prepare scans completed conversions not yet settled, computes the fiat
// amount and creates one Settlement per conversion.
func (p *Processor) prepare(ctx context.Context) error {
	convs, err := p.uow.Conversions().ListSettleable(ctx, p.batch)
	if err != nil {
		return fmt.Errorf("list settleable conversions: %w", err)
	}

	for _, conv := range convs {
		if err := p.prepareOne(ctx, conv); err != nil {
			p.logger.Error("prepare settlement", "conversion_id", conv.ID, "error", err)
		}
	}
	return nil
}

func (p *Processor) prepareOne(ctx context.Context, conv *domain.Conversion) error {
	// Exactly-once: an existing settlement (or an already-set
	// settlement_id) means a previous cycle got here first.
	if conv.SettlementID != nil {
		return nil
	}
	if existing, err := p.uow.Settlements().GetByConversion(ctx, conv.ID); err == nil && existing != nil {
		return nil
	} else if err != nil && !errors.Is(err, domain.ErrSettlementNotFound) {
		return err
	}

	fiatAmount, fiatCurrency, err := p.fiatAmount(ctx, conv)
	if err != nil {
		return err
	}

	settlement := &domain.Settlement{
		ID:           uuid.New(),
		UserID:       conv.UserID,
		ConversionID: conv.ID,
		FiatAmount:   fiatAmount,
		FiatCurrency: fiatCurrency,
		Status:       domain.SettlementPending,
		CreatedAt:    p.now(),
	}

	return p.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Settlements().Create(ctx, settlement); err != nil {
			return err
		}
		ok, err := uow.Conversions().SetSettlement(ctx, conv.ID, settlement.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Raced another processor instance; roll the row back.
			return fmt.Errorf("conversion %s already has a settlement", conv.ID)
		}
		_, err = uow.Conversions().UpdateSettlementReadiness(ctx, conv.ID,
			[]domain.SettlementReadiness{domain.SettlementReadinessPending, domain.SettlementReadinessReady},
			domain.SettlementReadinessProcessing)
		return err
	})
}

// fiatAmount converts the target amount into fiat at the configured
// static TON/USD rate, rounded to 2 decimals. Already-fiat targets pass
// through unchanged.
func (p *Processor) fiatAmount(ctx context.Context, conv *domain.Conversion) (decimal.Decimal, string, error) {
	if conv.TargetAmount == nil {
		return decimal.Zero, "", fmt.Errorf("conversion %s has no target amount", conv.ID)
	}
	rate, currency, err := p.fees.SettlementRate(ctx)
	if err != nil {
		return decimal.Zero, "", err
	}
	if conv.TargetCurrency == currency {
		return conv.TargetAmount.Round(2), currency, nil
	}
	return conv.TargetAmount.Mul(rate).Round(2), currency, nil
}

// complete finalizes unfinished settlements: generated transaction
// reference, conversion settled, payments settled, webhook out.
func (p *Processor) complete(ctx context.Context) error {
	settlements, err := p.uow.Settlements().ListUnfinished(ctx, p.batch)
	if err != nil {
		return fmt.Errorf("list unfinished settlements: %w", err)
	}

	for _, s := range settlements {
		if err := p.completeOne(ctx, s); err != nil {
			p.logger.Error("complete settlement", "settlement_id", s.ID, "error", err)
		}
	}
	return nil
}

func (p *Processor) completeOne(ctx context.Context, s *domain.Settlement) error {
	conv, err := p.uow.Conversions().Get(ctx, s.ConversionID)
	if err != nil {
		return err
	}

	txRef := fmt.Sprintf("SETTLE-%s-%d", s.ID, p.now().Unix())
	var claimed bool
	err = p.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		ok, err := uow.Settlements().MarkCompleted(ctx, s.ID, txRef)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		claimed = true
		if _, err := uow.Conversions().UpdateSettlementReadiness(ctx, s.ConversionID,
			[]domain.SettlementReadiness{domain.SettlementReadinessProcessing, domain.SettlementReadinessReady, domain.SettlementReadinessPending},
			domain.SettlementReadinessSettled); err != nil {
			return err
		}
		for _, pid := range conv.PaymentIDs {
			if _, err := uow.Payments().UpdateStatus(ctx, pid, domain.PaymentConverted, domain.PaymentSettled); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !claimed {
		// Another processor finalized it first; it owns the webhook.
		return nil
	}

	p.logger.Info("settlement completed",
		"settlement_id", s.ID,
		"conversion_id", s.ConversionID,
		"fiat_amount", s.FiatAmount,
		"tx_ref", txRef,
	)

	event := domain.SettlementCompleted{
		SettlementID: s.ID,
		ConversionID: s.ConversionID,
		UserID:       s.UserID,
		FiatAmount:   s.FiatAmount,
		FiatCurrency: s.FiatCurrency,
		OccurredAt:   p.now(),
	}
	if err := p.webhooks.QueueEvent(ctx, s.UserID.String(), event.Type(), event); err != nil {
		p.logger.Warn("queue settlement.completed webhook", "settlement_id", s.ID, "error", err)
	}
	return nil
}
