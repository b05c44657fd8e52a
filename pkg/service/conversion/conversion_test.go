package conversion_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infracache "github.com/stellarpay/starbridge/infra/cache"
	infraeventbus "github.com/stellarpay/starbridge/infra/eventbus"
	infraprovider "github.com/stellarpay/starbridge/infra/provider"
	"github.com/stellarpay/starbridge/infra/ton"
	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository/fake"
	"github.com/stellarpay/starbridge/pkg/service/conversion"
	"github.com/stellarpay/starbridge/pkg/service/fees"
	"github.com/stellarpay/starbridge/pkg/service/orderbook"
	"github.com/stellarpay/starbridge/pkg/service/rates"
	"github.com/stellarpay/starbridge/pkg/service/router"
)

// scriptedDex quotes a fixed rate and fails the first len(failures)
// executions with the scripted errors.
type scriptedDex struct {
	rate       decimal.Decimal
	failures   []error
	calls      int
	lastAmount decimal.Decimal
}

func (d *scriptedDex) GetBestRate(ctx context.Context, source, target string, amount decimal.Decimal) (*provider.DexQuote, error) {
	return &provider.DexQuote{
		Provider:     "scripted",
		PoolID:       "pool-1",
		Rate:         d.rate,
		OutputAmount: amount.Mul(d.rate),
		Route:        []string{source, target},
	}, nil
}

func (d *scriptedDex) ExecuteSwap(ctx context.Context, req provider.SwapRequest) (*provider.SwapResult, error) {
	d.calls++
	d.lastAmount = req.Amount
	if d.calls <= len(d.failures) {
		return nil, d.failures[d.calls-1]
	}
	return &provider.SwapResult{
		TxHash:       "dex-tx-1",
		OutputAmount: req.Amount.Mul(d.rate),
		GasUsed:      decimal.Zero,
	}, nil
}

type fixture struct {
	uow  *fake.UoW
	bus  *infraeventbus.MemoryEventBus
	dex  *scriptedDex
	svc  *conversion.Service
	user uuid.UUID

	sleeps []time.Duration
}

func newFixture(t *testing.T, dexFailures ...error) *fixture {
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

	feeSvc := fees.New(uow.Config(), logger)
	rateSvc := rates.New(
		[]provider.RateSource{infraprovider.NewSimulatedRateSource("sim", 0)},
		map[string]decimal.Decimal{"sim": decimal.NewFromInt(1)},
		infracache.NewMemoryCache(),
		time.Minute,
		logger,
	)
	dex := &scriptedDex{rate: decimal.RequireFromString("0.00015"), failures: dexFailures}
	orderSvc := orderbook.New(uow, ton.NewSimulated(), infraprovider.NewStaticWalletResolver(nil), logger)
	routerSvc := router.New(uow.Orders(), dex, logger)
	bus := infraeventbus.NewWithMemory(logger)

	f := &fixture{uow: uow, bus: bus, dex: dex, user: uuid.New()}
	f.svc = conversion.New(
		uow, feeSvc, rateSvc, routerSvc, dex, orderSvc, bus,
		time.Minute,
		decimal.RequireFromString("0.01"),
		logger,
		conversion.WithSleep(func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		}),
	)
	return f
}

func (f *fixture) seedPayment(t *testing.T, stars int64) *domain.Payment {
	t.Helper()
	p := &domain.Payment{
		ID:                uuid.New(),
		UserID:            f.user,
		ExternalPaymentID: uuid.NewString(),
		StarsAmount:       stars,
		Status:            domain.PaymentReceived,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, f.uow.Payments().Create(context.Background(), p))
	return p
}

func TestQuote_Math(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.Quote(context.Background(), 1000, "XTR", "TON")
	require.NoError(t, err)

	// 2% total fees on 1000 stars leaves 980; 980 × 0.00015 = 0.147.
	assert.True(t, q.Fees.Total.Equal(decimal.RequireFromString("20")), "fees: %s", q.Fees.Total)
	assert.True(t, q.ExchangeRate.Equal(decimal.RequireFromString("0.00015")))
	assert.True(t, q.TargetAmount.Equal(decimal.RequireFromString("0.147")), "target: %s", q.TargetAmount)
}

func TestQuote_BelowMinimum(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Quote(context.Background(), 99, "XTR", "TON")
	assert.True(t, domain.IsValidation(err))
}

func TestLockRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.LockRate(ctx, f.user, 1000, "XTR", "TON", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, domain.ConversionRateLocked, conv.Status)
	require.NotNil(t, conv.RateLockedUntil)
	assert.True(t, conv.RateLockValid(time.Now()))
	assert.False(t, conv.RateLockValid(time.Now().Add(2*time.Minute)))

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExchangeRate)
	assert.True(t, stored.ExchangeRate.Equal(decimal.RequireFromString("0.00015")))
}

func TestCreateConversion_PersistsAndLocksFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.seedPayment(t, 600)
	p2 := f.seedPayment(t, 400)

	conv, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p1.ID, p2.ID}, "TON")
	require.NoError(t, err)

	assert.Equal(t, int64(1000), conv.SourceAmount)
	assert.Equal(t, domain.ConversionPending, conv.Status)
	assert.True(t, conv.PlatformFeeAmount.Equal(decimal.RequireFromString("15")))

	// Payments are claimed by the conversion.
	for _, pid := range []uuid.UUID{p1.ID, p2.ID} {
		stored, err := f.uow.Payments().Get(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentConverting, stored.Status)
	}

	// One ledger entry, denominated in stars, TON and fiat at the locked
	// config snapshot.
	entries, err := f.uow.Fees().ListByConversion(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].FeeAmountStars.Equal(decimal.RequireFromString("15")))
	assert.True(t, entries[0].FeeAmountTon.Equal(decimal.RequireFromString("0.00225")), "ton: %s", entries[0].FeeAmountTon)
	assert.True(t, entries[0].FeeAmountUsd.Equal(decimal.RequireFromString("0.012150")), "usd: %s", entries[0].FeeAmountUsd)
	assert.False(t, entries[0].Collectible)

	// The handoff event went out.
	published := f.bus.Published()
	require.Len(t, published, 1)
	created, ok := published[0].(domain.ConversionCreated)
	require.True(t, ok)
	assert.Equal(t, conv.ID, created.ConversionID)
}

func TestCreateConversion_RejectsDoubleConvert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedPayment(t, 500)

	_, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	require.NoError(t, err)

	_, err = f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	assert.ErrorIs(t, err, domain.ErrPaymentNotConvertible)
}

func TestCreateConversion_RejectsForeignPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedPayment(t, 500)

	_, err := f.svc.CreateConversion(ctx, uuid.New(), []uuid.UUID{p.ID}, "TON")
	assert.True(t, domain.IsValidation(err))
}

func TestCreateConversion_UnknownPayment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateConversion(context.Background(), f.user, []uuid.UUID{uuid.New()}, "TON")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestExecute_DexRouteCommits(t *testing.T) {
	f := newFixture(t)
	f.svc.RegisterWorker()
	ctx := context.Background()
	p := f.seedPayment(t, 1000)

	conv, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	require.NoError(t, err)

	// The in-memory bus dispatches inline, so execution already ran.
	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionPhase2Committed, stored.Status)
	assert.Equal(t, "dex-tx-1", stored.DexTxHash)
	assert.Equal(t, "dex-tx-1", stored.TonTxHash)
	assert.Equal(t, "scripted", stored.DexProvider)
	assert.Equal(t, "pool-1", stored.DexPoolID)
	assert.Equal(t, 1, f.dex.calls)
}

func TestExecute_RedeliveredEventDoesNotReexecute(t *testing.T) {
	f := newFixture(t)
	f.svc.RegisterWorker()
	ctx := context.Background()
	p := f.seedPayment(t, 1000)

	conv, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	require.NoError(t, err)
	require.Equal(t, 1, f.dex.calls)

	// The bus delivers at least once; a redelivery after commitment must
	// not regress the state machine or submit a second swap.
	f.svc.Execute(ctx, conv.ID)

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionPhase2Committed, stored.Status)
	assert.Equal(t, 1, f.dex.calls)
}

func TestQuote_FractionalFeesFloorNetPrincipal(t *testing.T) {
	f := newFixture(t)

	// 997 stars: fees 14.955 + 2.991 + 1.994 = 19.94, net 977.06 floored
	// to 977 whole stars before the rate applies.
	q, err := f.svc.Quote(context.Background(), 997, "XTR", "TON")
	require.NoError(t, err)
	assert.True(t, q.TargetAmount.Equal(decimal.RequireFromString("0.14655")), "target: %s", q.TargetAmount)
}

func TestExecute_SwapAmountMatchesQuotedPrincipal(t *testing.T) {
	f := newFixture(t)
	f.svc.RegisterWorker()
	ctx := context.Background()
	p := f.seedPayment(t, 997)

	conv, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	require.NoError(t, err)

	// The swap prices exactly the floored principal the quote recorded.
	assert.True(t, f.dex.lastAmount.Equal(decimal.RequireFromString("977")), "amount: %s", f.dex.lastAmount)

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TargetAmount)
	assert.True(t, stored.TargetAmount.Equal(decimal.RequireFromString("0.14655")), "target: %s", stored.TargetAmount)
}

func TestExecute_RetriesRetryableDexErrors(t *testing.T) {
	f := newFixture(t,
		errors.New("request timed out"),
		errors.New("connection reset"),
	)
	f.svc.RegisterWorker()
	ctx := context.Background()
	p := f.seedPayment(t, 1000)

	conv, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	require.NoError(t, err)

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionPhase2Committed, stored.Status)
	assert.Equal(t, 3, f.dex.calls)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, f.sleeps)
}

func TestExecute_NonRetryableFailsImmediately(t *testing.T) {
	f := newFixture(t,
		errors.New("slippage tolerance exceeded"),
	)
	f.svc.RegisterWorker()
	ctx := context.Background()
	p := f.seedPayment(t, 1000)

	conv, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	require.NoError(t, err)

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "SLIPPAGE_EXCEEDED")
	assert.Equal(t, 1, f.dex.calls)
	assert.Empty(t, f.sleeps)
}

func TestExecute_ExhaustsRetryBudget(t *testing.T) {
	f := newFixture(t,
		errors.New("timed out"),
		errors.New("timed out"),
		errors.New("timed out"),
	)
	f.svc.RegisterWorker()
	ctx := context.Background()
	p := f.seedPayment(t, 1000)

	conv, err := f.svc.CreateConversion(ctx, f.user, []uuid.UUID{p.ID}, "TON")
	require.NoError(t, err)

	stored, err := f.uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionFailed, stored.Status)
	assert.Equal(t, 3, f.dex.calls)
}
