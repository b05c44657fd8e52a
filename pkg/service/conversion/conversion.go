// Package conversion orchestrates a conversion from quoting through
// rate-lock, route execution and on-chain commitment. Confirmation
// polling and settlement are driven by the monitors.
package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/eventbus"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
	"github.com/stellarpay/starbridge/pkg/service/fees"
	"github.com/stellarpay/starbridge/pkg/service/rates"
	"github.com/stellarpay/starbridge/pkg/service/router"
)

// P2PExecutor sells stars into the P2P book on behalf of a conversion and
// returns the on-chain transfer hash. Implemented by the order book
// service.
type P2PExecutor interface {
	SellStars(ctx context.Context, userID uuid.UUID, starsAmount int64, rate decimal.Decimal) (string, error)
}

// Service is the conversion state machine.
//
// Quote and LockRate are synchronous and surface errors to the caller.
// CreateConversion validates synchronously, then hands execution to the
// background worker via the event bus: route selection and swap
// submission failures are recorded on the row, never returned to the
// creating request.
type Service struct {
	uow    repository.UnitOfWork
	fees   *fees.Service
	rates  *rates.Service
	router *router.Service
	dex    provider.DexAggregator
	p2p    P2PExecutor
	bus    eventbus.Bus
	logger *slog.Logger

	quoteValidity time.Duration
	slippagePct   decimal.Decimal
	retryDelays   []time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSleep overrides the retry delay sleeper, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

// New creates the conversion service. slippagePct is the fraction below
// the quoted output accepted as minimum output on DEX swaps.
func New(
	uow repository.UnitOfWork,
	feeSvc *fees.Service,
	rateSvc *rates.Service,
	routerSvc *router.Service,
	dex provider.DexAggregator,
	p2p P2PExecutor,
	bus eventbus.Bus,
	quoteValidity time.Duration,
	slippagePct decimal.Decimal,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		uow:           uow,
		fees:          feeSvc,
		rates:         rateSvc,
		router:        routerSvc,
		dex:           dex,
		p2p:           p2p,
		bus:           bus,
		logger:        logger.With("service", "conversion"),
		quoteValidity: quoteValidity,
		slippagePct:   slippagePct,
		retryDelays:   []time.Duration{time.Second, 3 * time.Second, 5 * time.Second},
		now:           time.Now,
	}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterWorker subscribes the background execution worker to the bus.
func (s *Service) RegisterWorker() {
	s.bus.Register(domain.EventConversionCreated, func(ctx context.Context, e domain.Event) error {
		created, ok := e.(domain.ConversionCreated)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", e)
		}
		s.Execute(ctx, created.ConversionID)
		return nil
	})
}

// Quote prices a conversion without mutating any state. Idempotent given
// identical inputs and the current cached rate.
func (s *Service) Quote(ctx context.Context, sourceAmount int64, sourceCurrency, targetCurrency string) (*domain.Quote, error) {
	min, err := s.fees.MinConversionStars(ctx)
	if err != nil {
		return nil, err
	}
	if sourceAmount < min {
		return nil, domain.NewValidationError("sourceAmount",
			fmt.Sprintf("below minimum of %d stars", min))
	}

	breakdown, err := s.fees.Breakdown(ctx, sourceAmount)
	if err != nil {
		return nil, err
	}
	agg, err := s.rates.AggregatedRate(ctx, sourceCurrency, targetCurrency)
	if err != nil {
		return nil, err
	}

	// Fees are subtracted in source-currency terms before conversion,
	// never added after. The net principal is floored to whole stars so
	// the quoted target matches the amount execution can transfer; the
	// fractional remainder stays with the fee total.
	net := decimal.NewFromInt(sourceAmount).Sub(breakdown.Total).Floor()
	return &domain.Quote{
		SourceAmount:   sourceAmount,
		SourceCurrency: sourceCurrency,
		TargetCurrency: targetCurrency,
		ExchangeRate:   agg.Rate,
		Fees:           breakdown,
		TargetAmount:   net.Mul(agg.Rate),
		ValidUntil:     s.now().Add(s.quoteValidity),
	}, nil
}

// LockRate persists a rate_locked conversion row guaranteeing the quoted
// rate until now + duration. Expired locks are not purged by any timer;
// consumers check RateLockValid before trusting them.
func (s *Service) LockRate(ctx context.Context, userID uuid.UUID, sourceAmount int64, sourceCurrency, targetCurrency string, duration time.Duration) (*domain.Conversion, error) {
	quote, err := s.Quote(ctx, sourceAmount, sourceCurrency, targetCurrency)
	if err != nil {
		return nil, err
	}

	lockedUntil := s.now().Add(duration)
	conv := &domain.Conversion{
		ID:                    uuid.New(),
		UserID:                userID,
		SourceCurrency:        sourceCurrency,
		TargetCurrency:        targetCurrency,
		SourceAmount:          sourceAmount,
		TargetAmount:          &quote.TargetAmount,
		ExchangeRate:          &quote.ExchangeRate,
		RateLockedUntil:       &lockedUntil,
		Status:                domain.ConversionRateLocked,
		Fees:                  quote.Fees,
		PlatformFeeAmount:     quote.Fees.Platform,
		PlatformFeePercentage: quote.Fees.PlatformPercentage,
		SettlementStatus:      domain.SettlementReadinessPending,
		CreatedAt:             s.now(),
	}
	if err := s.uow.Conversions().Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("persist rate lock: %w", err)
	}
	s.logger.Info("rate locked",
		"conversion_id", conv.ID,
		"rate", quote.ExchangeRate,
		"locked_until", lockedUntil,
	)
	return conv, nil
}

// CreateConversion validates the referenced payments, re-quotes, persists
// the conversion with its fee ledger entry, marks the payments
// converting, and hands execution to the worker. The payment-status guard
// makes double-converting the same payments impossible: a payment already
// converting fails the guarded update and rolls the whole creation back.
func (s *Service) CreateConversion(ctx context.Context, userID uuid.UUID, paymentIDs []uuid.UUID, targetCurrency string) (*domain.Conversion, error) {
	if len(paymentIDs) == 0 {
		return nil, domain.NewValidationError("paymentIds", "must not be empty")
	}

	payments, err := s.uow.Payments().ListByIDs(ctx, paymentIDs)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	if len(payments) != len(paymentIDs) {
		return nil, domain.ErrPaymentNotFound
	}

	var sourceAmount int64
	for _, p := range payments {
		if p.UserID != userID {
			return nil, domain.NewValidationError("paymentIds", "payment does not belong to user")
		}
		if !p.Convertible() {
			return nil, domain.ErrPaymentNotConvertible
		}
		sourceAmount += p.StarsAmount
	}

	quote, err := s.Quote(ctx, sourceAmount, "XTR", targetCurrency)
	if err != nil {
		return nil, err
	}

	settlementRate, _, err := s.fees.SettlementRate(ctx)
	if err != nil {
		return nil, err
	}

	conv := &domain.Conversion{
		ID:                    uuid.New(),
		UserID:                userID,
		PaymentIDs:            paymentIDs,
		SourceCurrency:        quote.SourceCurrency,
		TargetCurrency:        targetCurrency,
		SourceAmount:          sourceAmount,
		TargetAmount:          &quote.TargetAmount,
		ExchangeRate:          &quote.ExchangeRate,
		Status:                domain.ConversionPending,
		Fees:                  quote.Fees,
		PlatformFeeAmount:     quote.Fees.Platform,
		PlatformFeePercentage: quote.Fees.PlatformPercentage,
		SettlementStatus:      domain.SettlementReadinessPending,
		CreatedAt:             s.now(),
	}

	feeTon := quote.Fees.Platform.Mul(quote.ExchangeRate)
	fee := &domain.PlatformFee{
		ID:             uuid.New(),
		ConversionID:   &conv.ID,
		UserID:         userID,
		FeePercentage:  quote.Fees.PlatformPercentage,
		FeeAmountStars: quote.Fees.Platform,
		FeeAmountTon:   feeTon,
		FeeAmountUsd:   feeTon.Mul(settlementRate),
		Status:         domain.FeePending,
		CreatedAt:      s.now(),
	}

	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Conversions().Create(ctx, conv); err != nil {
			return err
		}
		for _, p := range payments {
			ok, err := uow.Payments().UpdateStatus(ctx, p.ID, domain.PaymentReceived, domain.PaymentConverting)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrPaymentNotConvertible
			}
		}
		return uow.Fees().Create(ctx, fee)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversion created",
		"conversion_id", conv.ID,
		"user_id", userID,
		"source_amount", sourceAmount,
		"target_amount", quote.TargetAmount,
	)

	// Fire-and-forget handoff: the caller already has its answer, the
	// worker picks the conversion up from here.
	if err := s.bus.Emit(ctx, domain.ConversionCreated{
		ConversionID: conv.ID,
		UserID:       userID,
		OccurredAt:   s.now(),
	}); err != nil {
		s.logger.Error("failed to enqueue conversion execution", "conversion_id", conv.ID, "error", err)
	}
	return conv, nil
}

// Get returns a conversion by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Conversion, error) {
	return s.uow.Conversions().Get(ctx, id)
}
