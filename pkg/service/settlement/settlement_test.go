package settlement_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraprovider "github.com/stellarpay/starbridge/infra/provider"
	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/repository"
	"github.com/stellarpay/starbridge/pkg/repository/fake"
	"github.com/stellarpay/starbridge/pkg/service/fees"
	"github.com/stellarpay/starbridge/pkg/service/settlement"
)

type fixture struct {
	uow      *fake.UoW
	webhooks *infraprovider.MemoryWebhookQueue
	proc     *settlement.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.Default()

	uow := fake.NewUoW()
	uow.SetActiveConfig(&domain.PlatformConfig{
		ID:                   uuid.New(),
		Version:              1,
		PlatformFeePct:       decimal.RequireFromString("0.015"),
		DexFeePct:            decimal.RequireFromString("0.003"),
		NetworkFeePct:        decimal.RequireFromString("0.002"),
		MinConversionStars:   100,
		SettlementTonUsdRate: decimal.RequireFromString("5.40"),
		SettlementCurrency:   "USD",
		Active:               true,
	})

	webhooks := infraprovider.NewMemoryWebhookQueue()
	feeSvc := fees.New(uow.Config(), logger)
	return &fixture{
		uow:      uow,
		webhooks: webhooks,
		proc:     settlement.New(uow, feeSvc, webhooks, 50, logger),
	}
}

func (f *fixture) seedCompletedConversion(t *testing.T, targetCurrency string, targetAmount string, paymentIDs []uuid.UUID) *domain.Conversion {
	t.Helper()
	target := decimal.RequireFromString(targetAmount)
	rate := decimal.RequireFromString("0.00015")
	conv := &domain.Conversion{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		PaymentIDs:       paymentIDs,
		SourceCurrency:   "XTR",
		TargetCurrency:   targetCurrency,
		SourceAmount:     1000,
		TargetAmount:     &target,
		ExchangeRate:     &rate,
		Status:           domain.ConversionCompleted,
		SettlementStatus: domain.SettlementReadinessPending,
		CreatedAt:        time.Now(),
	}
	require.NoError(t, f.uow.Conversions().Create(context.Background(), conv))
	return conv
}

func TestProcessCycle_SettlesCompletedConversion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment := &domain.Payment{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		ExternalPaymentID: "ext-settle",
		StarsAmount:       1000,
		Status:            domain.PaymentConverted,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, f.uow.Payments().Create(ctx, payment))

	conv := f.seedCompletedConversion(t, "TON", "0.147", []uuid.UUID{payment.ID})

	f.proc.ProcessCycle(ctx)

	s, err := f.uow.Settlements().GetByConversion(ctx, conv.ID)
	require.NoError(t, err)
	// 0.147 TON × 5.40 = 0.7938, rounded to 0.79 USD.
	assert.True(t, s.FiatAmount.Equal(decimal.RequireFromString("0.79")), "fiat: %s", s.FiatAmount)
	assert.Equal(t, "USD", s.FiatCurrency)
	assert.Equal(t, domain.SettlementCompletedStatus, s.Status)
	assert.Contains(t, s.TransactionID, "SETTLE-")

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementReadinessSettled, stored.SettlementStatus)
	require.NotNil(t, stored.SettlementID)
	assert.Equal(t, s.ID, *stored.SettlementID)

	storedPayment, err := f.uow.Payments().Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSettled, storedPayment.Status)

	assert.Equal(t, []string{domain.EventSettlementComplete}, f.webhooks.QueuedTypes())
}

func TestProcessCycle_ExactlyOncePerConversion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv := f.seedCompletedConversion(t, "TON", "0.147", nil)

	f.proc.ProcessCycle(ctx)
	f.proc.ProcessCycle(ctx)

	s, err := f.uow.Settlements().GetByConversion(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompletedStatus, s.Status)
	assert.Equal(t, []string{domain.EventSettlementComplete}, f.webhooks.QueuedTypes())
}

func TestProcessCycle_FiatTargetPassesThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv := f.seedCompletedConversion(t, "USD", "12.345", nil)

	f.proc.ProcessCycle(ctx)

	s, err := f.uow.Settlements().GetByConversion(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, s.FiatAmount.Equal(decimal.RequireFromString("12.35")), "fiat: %s", s.FiatAmount)
	assert.Equal(t, "USD", s.FiatCurrency)
}

// lostRaceUoW misses every MarkCompleted guard, as when another
// processor instance finalizes the settlement first.
type lostRaceUoW struct {
	repository.UnitOfWork
}

func (u *lostRaceUoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.UnitOfWork.Do(ctx, func(inner repository.UnitOfWork) error {
		return fn(&lostRaceUoW{inner})
	})
}

func (u *lostRaceUoW) Settlements() repository.SettlementRepository {
	return &lostRaceSettlements{u.UnitOfWork.Settlements()}
}

type lostRaceSettlements struct {
	repository.SettlementRepository
}

func (r *lostRaceSettlements) MarkCompleted(ctx context.Context, id uuid.UUID, transactionID string) (bool, error) {
	return false, nil
}

func TestProcessCycle_LostCompletionRaceQueuesNoWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv := f.seedCompletedConversion(t, "TON", "0.147", nil)

	logger := slog.Default()
	feeSvc := fees.New(f.uow.Config(), logger)
	racing := settlement.New(&lostRaceUoW{f.uow}, feeSvc, f.webhooks, 50, logger)

	racing.ProcessCycle(ctx)

	// The settlement row was prepared, but completion lost the race:
	// the winning processor owns the webhook and the readiness advance.
	s, err := f.uow.Settlements().GetByConversion(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPending, s.Status)

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementReadinessProcessing, stored.SettlementStatus)

	assert.Empty(t, f.webhooks.QueuedTypes())
}

func TestProcessCycle_IgnoresUnfinishedConversions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	target := decimal.RequireFromString("0.147")
	conv := &domain.Conversion{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		SourceCurrency:   "XTR",
		TargetCurrency:   "TON",
		SourceAmount:     1000,
		TargetAmount:     &target,
		Status:           domain.ConversionPhase2Committed,
		SettlementStatus: domain.SettlementReadinessPending,
		CreatedAt:        time.Now(),
	}
	require.NoError(t, f.uow.Conversions().Create(ctx, conv))

	f.proc.ProcessCycle(ctx)

	_, err := f.uow.Settlements().GetByConversion(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrSettlementNotFound)
	assert.Empty(t, f.webhooks.QueuedTypes())
}
