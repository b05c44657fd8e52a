package monitor_test

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
	"github.com/stellarpay/starbridge/infra/ton"
	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository/fake"
	"github.com/stellarpay/starbridge/pkg/service/monitor"
)

func TestPoller_RunOnceSkipsWhileInProgress(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	p := monitor.NewPoller("test", time.Hour, slog.Default(), func(ctx context.Context) {
		close(started)
		<-release
	})

	done := make(chan bool)
	go func() { done <- p.RunOnce(context.Background()) }()
	<-started

	assert.True(t, p.Processing())
	assert.False(t, p.RunOnce(context.Background()))

	close(release)
	assert.True(t, <-done)
}

func TestPoller_StartIsIdempotent(t *testing.T) {
	p := monitor.NewPoller("test", time.Hour, slog.Default(), func(ctx context.Context) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Start(ctx)
	p.Stop()
	p.Stop()
}

// stubChain reports a fixed TxInfo for every hash.
type stubChain struct {
	info provider.TxInfo
}

func (c *stubChain) SendTransaction(ctx context.Context, to string, amount decimal.Decimal, memo string) (string, error) {
	return "stub-tx", nil
}

func (c *stubChain) GetTransaction(ctx context.Context, txHash string) (*provider.TxInfo, error) {
	copied := c.info
	return &copied, nil
}

func (c *stubChain) AccountTransfers(ctx context.Context, address string, limit int) ([]provider.Transfer, error) {
	return nil, nil
}

func seedCommittedConversion(t *testing.T, uow *fake.UoW, txHash string, paymentIDs []uuid.UUID) *domain.Conversion {
	t.Helper()
	rate := decimal.RequireFromString("0.00015")
	target := decimal.RequireFromString("0.147")
	conv := &domain.Conversion{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		PaymentIDs:       paymentIDs,
		SourceCurrency:   "XTR",
		TargetCurrency:   "TON",
		SourceAmount:     1000,
		TargetAmount:     &target,
		ExchangeRate:     &rate,
		Status:           domain.ConversionPhase2Committed,
		TonTxHash:        txHash,
		SettlementStatus: domain.SettlementReadinessPending,
		CreatedAt:        time.Now(),
	}
	require.NoError(t, uow.Conversions().Create(context.Background(), conv))
	return conv
}

func TestTxMonitor_LeavesUnconfirmedAlone(t *testing.T) {
	uow := fake.NewUoW()
	chain := &stubChain{info: provider.TxInfo{Confirmed: false}}
	conv := seedCommittedConversion(t, uow, "pending-tx", nil)

	m := monitor.NewTxMonitor(uow, chain, time.Hour, 50, slog.Default())
	require.True(t, m.RunOnce(context.Background()))

	stored, err := uow.Conversions().Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionPhase2Committed, stored.Status)
}

func TestTxMonitor_FailedTransactionFailsConversion(t *testing.T) {
	ctx := context.Background()
	uow := fake.NewUoW()
	chain := ton.NewSimulated()

	chain.FailNextTransaction(42)
	txHash, err := chain.SendTransaction(ctx, "EQrecipient", decimal.RequireFromString("0.147"), "")
	require.NoError(t, err)
	conv := seedCommittedConversion(t, uow, txHash, nil)

	m := monitor.NewTxMonitor(uow, chain, time.Hour, 50, slog.Default())
	require.True(t, m.RunOnce(ctx))

	stored, err := uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionFailed, stored.Status)
	assert.Equal(t, "Transaction failed on-chain (exit code: 42)", stored.ErrorMessage)
}

func TestTxMonitor_ConfirmedTransactionCompletesConversion(t *testing.T) {
	ctx := context.Background()
	uow := fake.NewUoW()
	chain := ton.NewSimulated()

	txHash, err := chain.SendTransaction(ctx, "EQrecipient", decimal.RequireFromString("0.147"), "")
	require.NoError(t, err)

	payment := &domain.Payment{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		ExternalPaymentID: "ext-1",
		StarsAmount:       1000,
		Status:            domain.PaymentConverting,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, uow.Payments().Create(ctx, payment))

	conv := seedCommittedConversion(t, uow, txHash, []uuid.UUID{payment.ID})
	fee := &domain.PlatformFee{
		ID:             uuid.New(),
		ConversionID:   &conv.ID,
		UserID:         conv.UserID,
		FeeAmountStars: decimal.RequireFromString("15"),
		Status:         domain.FeePending,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, uow.Fees().Create(ctx, fee))

	m := monitor.NewTxMonitor(uow, chain, time.Hour, 50, slog.Default())
	require.True(t, m.RunOnce(ctx))

	stored, err := uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionCompleted, stored.Status)

	fees, err := uow.Fees().ListByConversion(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.True(t, fees[0].Collectible)

	storedPayment, err := uow.Payments().Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentConverted, storedPayment.Status)

	// A second cycle finds nothing committed and changes nothing.
	require.True(t, m.RunOnce(ctx))
	stored, err = uow.Conversions().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionCompleted, stored.Status)
}

func seedDeposit(t *testing.T, uow *fake.UoW, address string, expected decimal.Decimal, expiresAt time.Time, mutate ...func(*domain.ManualDeposit)) *domain.ManualDeposit {
	t.Helper()
	dep := &domain.ManualDeposit{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		DepositAddress: address,
		ExpectedAmount: expected,
		ReceivedAmount: decimal.Zero,
		Status:         domain.DepositPending,
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now(),
	}
	for _, fn := range mutate {
		fn(dep)
	}
	require.NoError(t, uow.Deposits().Create(context.Background(), dep))
	return dep
}

func newDepositMonitor(uow *fake.UoW, chain provider.BlockchainClient, webhooks provider.WebhookQueue) *monitor.DepositMonitor {
	return monitor.NewDepositMonitor(uow, chain, webhooks, time.Hour, 3, 50, slog.Default())
}

func TestDepositMonitor_BelowThresholdAwaitsConfirmation(t *testing.T) {
	ctx := context.Background()
	uow := fake.NewUoW()
	chain := ton.NewSimulated()
	webhooks := infraprovider.NewMemoryWebhookQueue()

	dep := seedDeposit(t, uow, "EQdeposit1", decimal.RequireFromString("0.5"), time.Now().Add(time.Hour))
	chain.SeedTransfer("EQdeposit1", decimal.RequireFromString("0.5"), 1)

	m := newDepositMonitor(uow, chain, webhooks)
	require.True(t, m.RunOnce(ctx))

	stored, err := uow.Deposits().Get(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositAwaitingConfirmation, stored.Status)
	assert.Equal(t, 1, stored.Confirmations)
	assert.Empty(t, webhooks.QueuedTypes())
}

func TestDepositMonitor_ThresholdCrossingConfirms(t *testing.T) {
	ctx := context.Background()
	uow := fake.NewUoW()
	chain := ton.NewSimulated()
	webhooks := infraprovider.NewMemoryWebhookQueue()

	payment := &domain.Payment{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		ExternalPaymentID: "ext-dep",
		StarsAmount:       1000,
		Status:            domain.PaymentReceived,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, uow.Payments().Create(ctx, payment))

	dep := seedDeposit(t, uow, "EQdeposit2", decimal.RequireFromString("0.5"), time.Now().Add(time.Hour),
		func(d *domain.ManualDeposit) { d.PaymentID = &payment.ID })

	txHash := chain.SeedTransfer("EQdeposit2", decimal.RequireFromString("0.5"), 1)

	m := newDepositMonitor(uow, chain, webhooks)
	require.True(t, m.RunOnce(ctx))

	chain.SetConfirmations("EQdeposit2", txHash, 3)
	require.True(t, m.RunOnce(ctx))

	stored, err := uow.Deposits().Get(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositConfirmedStatus, stored.Status)
	assert.Equal(t, txHash, stored.TxHash)

	storedPayment, err := uow.Payments().Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentConverting, storedPayment.Status)

	assert.Equal(t, []string{domain.EventDepositConfirmed}, webhooks.QueuedTypes())

	// Re-observing the same transfer is a no-op.
	require.True(t, m.RunOnce(ctx))
	assert.Equal(t, []string{domain.EventDepositConfirmed}, webhooks.QueuedTypes())
}

func TestDepositMonitor_PerDepositConfirmationOverride(t *testing.T) {
	ctx := context.Background()
	uow := fake.NewUoW()
	chain := ton.NewSimulated()
	webhooks := infraprovider.NewMemoryWebhookQueue()

	one := 1
	dep := seedDeposit(t, uow, "EQdeposit3", decimal.RequireFromString("0.25"), time.Now().Add(time.Hour),
		func(d *domain.ManualDeposit) { d.MinConfirmations = &one })

	chain.SeedTransfer("EQdeposit3", decimal.RequireFromString("0.25"), 1)

	m := newDepositMonitor(uow, chain, webhooks)
	require.True(t, m.RunOnce(ctx))

	stored, err := uow.Deposits().Get(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositConfirmedStatus, stored.Status)
}

func TestDepositMonitor_ExpireOverdue(t *testing.T) {
	ctx := context.Background()
	uow := fake.NewUoW()
	chain := ton.NewSimulated()
	webhooks := infraprovider.NewMemoryWebhookQueue()

	overdue := seedDeposit(t, uow, "EQoverdue", decimal.RequireFromString("1"), time.Now().Add(-time.Minute))
	funded := seedDeposit(t, uow, "EQfunded", decimal.RequireFromString("1"), time.Now().Add(-time.Minute))
	require.NoError(t, uow.Deposits().RecordObservation(ctx, funded.ID, decimal.RequireFromString("1"), "tx-funded", 1))

	m := newDepositMonitor(uow, chain, webhooks)
	m.ExpireOverdue(ctx)

	stored, err := uow.Deposits().Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositExpired, stored.Status)

	stored, err = uow.Deposits().Get(ctx, funded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositPending, stored.Status, "funded deposit must not expire")
}
