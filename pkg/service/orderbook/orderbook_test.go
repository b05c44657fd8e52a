package orderbook_test

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
	"github.com/stellarpay/starbridge/pkg/repository/fake"
	"github.com/stellarpay/starbridge/pkg/service/orderbook"
)

func setup(t *testing.T) (*orderbook.Service, *fake.UoW, *ton.Simulated, *infraprovider.StaticWalletResolver) {
	t.Helper()
	uow := fake.NewUoW()
	chain := ton.NewSimulated()
	wallets := infraprovider.NewStaticWalletResolver(nil)
	svc := orderbook.New(uow, chain, wallets, slog.Default())
	return svc, uow, chain, wallets
}

func seedBuyOrder(t *testing.T, uow *fake.UoW, rate string, tonAmount string, createdAt time.Time) *domain.StarsOrder {
	t.Helper()
	order := &domain.StarsOrder{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Type:      domain.OrderBuy,
		TonAmount: decimal.RequireFromString(tonAmount),
		Rate:      decimal.RequireFromString(rate),
		Status:    domain.OrderOpen,
		CreatedAt: createdAt,
	}
	require.NoError(t, uow.Orders().Create(context.Background(), order))
	return order
}

func TestCreateSellOrder_NoCounterOrderStaysOpen(t *testing.T) {
	svc, uow, _, _ := setup(t)

	order, err := svc.CreateSellOrder(context.Background(), uuid.New(), 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)

	stored, err := uow.Orders().Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderOpen, stored.Status)
	assert.Nil(t, stored.CounterOrderID)
}

func TestCreateSellOrder_MatchesImmediately(t *testing.T) {
	svc, uow, _, _ := setup(t)
	ctx := context.Background()

	buy := seedBuyOrder(t, uow, "0.00016", "1", time.Now())

	sell, err := svc.CreateSellOrder(ctx, uuid.New(), 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)

	storedSell, err := uow.Orders().Get(ctx, sell.ID)
	require.NoError(t, err)
	storedBuy, err := uow.Orders().Get(ctx, buy.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderMatched, storedSell.Status)
	assert.Equal(t, domain.OrderMatched, storedBuy.Status)
	require.NotNil(t, storedSell.CounterOrderID)
	require.NotNil(t, storedBuy.CounterOrderID)
	assert.Equal(t, buy.ID, *storedSell.CounterOrderID)
	assert.Equal(t, sell.ID, *storedBuy.CounterOrderID)

	swap, err := uow.Swaps().GetBySellOrder(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapInProgress, swap.Status)
	// TON amount derives from the seller's ask, not the buyer's bid.
	assert.True(t, swap.TonAmount.Equal(decimal.RequireFromString("0.15")), "ton: %s", swap.TonAmount)
	assert.True(t, swap.Rate.Equal(decimal.RequireFromString("0.00015")))
}

func TestCreateSellOrder_RateTooHighStaysOpen(t *testing.T) {
	svc, uow, _, _ := setup(t)
	ctx := context.Background()

	seedBuyOrder(t, uow, "0.00014", "1", time.Now())

	sell, err := svc.CreateSellOrder(ctx, uuid.New(), 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)

	stored, err := uow.Orders().Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderOpen, stored.Status)
}

func TestMatchSellOrder_FIFOAmongEligibleBuys(t *testing.T) {
	svc, uow, _, _ := setup(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	older := seedBuyOrder(t, uow, "0.00015", "1", base)
	newer := seedBuyOrder(t, uow, "0.00016", "1", base.Add(time.Minute))

	sell, err := svc.CreateSellOrder(ctx, uuid.New(), 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)

	// Arrival order wins over rate: the older buy matches even though the
	// newer one bids higher.
	storedSell, err := uow.Orders().Get(ctx, sell.ID)
	require.NoError(t, err)
	require.NotNil(t, storedSell.CounterOrderID)
	assert.Equal(t, older.ID, *storedSell.CounterOrderID)

	storedNewer, err := uow.Orders().Get(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderOpen, storedNewer.Status)
}

func TestSweep_MatchesLateArrivingBuy(t *testing.T) {
	svc, uow, _, _ := setup(t)
	ctx := context.Background()

	sell, err := svc.CreateSellOrder(ctx, uuid.New(), 500, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)

	// Buy arrives after the sell; only the sweep discovers it.
	seedBuyOrder(t, uow, "0.00015", "0.1", time.Now())

	require.NoError(t, svc.Sweep(ctx, 50))

	stored, err := uow.Orders().Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatched, stored.Status)

	// A second sweep finds no open sells and changes nothing.
	require.NoError(t, svc.Sweep(ctx, 50))
	again, err := uow.Orders().Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatched, again.Status)
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateSellOrder(ctx, uuid.New(), 0, decimal.RequireFromString("0.00015"))
	assert.True(t, domain.IsValidation(err))

	_, err = svc.CreateSellOrder(ctx, uuid.New(), 100, decimal.Zero)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.CreateBuyOrder(ctx, uuid.New(), decimal.Zero, decimal.RequireFromString("0.00015"))
	assert.True(t, domain.IsValidation(err))
}

func TestCancelOrder(t *testing.T) {
	svc, uow, _, _ := setup(t)
	ctx := context.Background()
	userID := uuid.New()

	order, err := svc.CreateSellOrder(ctx, userID, 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)

	// Wrong owner looks like a missing order.
	err = svc.CancelOrder(ctx, uuid.New(), order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.NoError(t, svc.CancelOrder(ctx, userID, order.ID))
	stored, err := uow.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, stored.Status)

	// Already cancelled.
	err = svc.CancelOrder(ctx, userID, order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotOpen)
}

func TestExecuteAtomicSwap_Success(t *testing.T) {
	svc, uow, _, wallets := setup(t)
	ctx := context.Background()
	sellerID := uuid.New()
	wallets.SetAddress(sellerID.String(), "EQseller")

	seedBuyOrder(t, uow, "0.00015", "0.15", time.Now())
	sell, err := svc.CreateSellOrder(ctx, sellerID, 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)
	swap, err := uow.Swaps().GetBySellOrder(ctx, sell.ID)
	require.NoError(t, err)

	require.NoError(t, svc.ExecuteAtomicSwap(ctx, swap.ID))

	executed, err := uow.Swaps().Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCompleted, executed.Status)
	assert.NotEmpty(t, executed.TransferTxHash)

	storedSell, err := uow.Orders().Get(ctx, swap.SellOrderID)
	require.NoError(t, err)
	storedBuy, err := uow.Orders().Get(ctx, swap.BuyOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, storedSell.Status)
	assert.Equal(t, domain.OrderCompleted, storedBuy.Status)

	// Re-executing a completed swap is a successful no-op.
	require.NoError(t, svc.ExecuteAtomicSwap(ctx, swap.ID))
}

func TestExecuteAtomicSwap_FailureLeavesOrdersMatched(t *testing.T) {
	svc, uow, _, _ := setup(t)
	ctx := context.Background()
	sellerID := uuid.New()
	// No wallet registered for the seller.

	seedBuyOrder(t, uow, "0.00015", "0.15", time.Now())
	sell, err := svc.CreateSellOrder(ctx, sellerID, 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)
	swap, err := uow.Swaps().GetBySellOrder(ctx, sell.ID)
	require.NoError(t, err)

	err = svc.ExecuteAtomicSwap(ctx, swap.ID)
	require.Error(t, err)

	failed, err := uow.Swaps().Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapFailed, failed.Status)

	// No automatic unwind: the pair stays matched for manual resolution.
	storedSell, err := uow.Orders().Get(ctx, swap.SellOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatched, storedSell.Status)
}

func TestSellStars_EndToEnd(t *testing.T) {
	svc, uow, _, wallets := setup(t)
	ctx := context.Background()
	sellerID := uuid.New()
	wallets.SetAddress(sellerID.String(), "EQseller")
	seedBuyOrder(t, uow, "0.00016", "1", time.Now())

	txHash, err := svc.SellStars(ctx, sellerID, 1000, decimal.RequireFromString("0.00015"))
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)
}

func TestSellStars_NoLiquidity(t *testing.T) {
	svc, _, _, wallets := setup(t)
	ctx := context.Background()
	sellerID := uuid.New()
	wallets.SetAddress(sellerID.String(), "EQseller")

	_, err := svc.SellStars(ctx, sellerID, 1000, decimal.RequireFromString("0.00015"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liquidity")
}
