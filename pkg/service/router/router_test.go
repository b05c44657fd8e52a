package router_test

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

	infraprovider "github.com/stellarpay/starbridge/infra/provider"
	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository/fake"
	"github.com/stellarpay/starbridge/pkg/service/router"
)

type failingDex struct{}

func (failingDex) GetBestRate(ctx context.Context, source, target string, amount decimal.Decimal) (*provider.DexQuote, error) {
	return nil, errors.New("aggregator unreachable")
}

func (failingDex) ExecuteSwap(ctx context.Context, req provider.SwapRequest) (*provider.SwapResult, error) {
	return nil, errors.New("aggregator unreachable")
}

func seedBuy(t *testing.T, uow *fake.UoW, rate, tonAmount string) {
	t.Helper()
	require.NoError(t, uow.Orders().Create(context.Background(), &domain.StarsOrder{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Type:      domain.OrderBuy,
		TonAmount: decimal.RequireFromString(tonAmount),
		Rate:      decimal.RequireFromString(rate),
		Status:    domain.OrderOpen,
		CreatedAt: time.Now(),
	}))
}

func TestBestRoute_DexWhenBookEmpty(t *testing.T) {
	uow := fake.NewUoW()
	dex := infraprovider.NewSimulatedDexAggregator(decimal.RequireFromString("0.00015"), decimal.Zero)
	svc := router.New(uow.Orders(), dex, slog.Default())

	route, err := svc.BestRoute(context.Background(), "XTR", "TON", decimal.NewFromInt(980))
	require.NoError(t, err)

	assert.Equal(t, router.RouteDex, route.Kind)
	require.NotNil(t, route.DexQuote)
	assert.True(t, route.OutputAmount.Equal(decimal.RequireFromString("0.147")), "output: %s", route.OutputAmount)
}

func TestBestRoute_P2PWinsOnBetterOutput(t *testing.T) {
	uow := fake.NewUoW()
	seedBuy(t, uow, "0.00016", "1")
	dex := infraprovider.NewSimulatedDexAggregator(decimal.RequireFromString("0.00015"), decimal.Zero)
	svc := router.New(uow.Orders(), dex, slog.Default())

	route, err := svc.BestRoute(context.Background(), "XTR", "TON", decimal.NewFromInt(980))
	require.NoError(t, err)

	assert.Equal(t, router.RouteP2P, route.Kind)
	assert.True(t, route.Rate.Equal(decimal.RequireFromString("0.00016")))
	// 980 × 0.00016
	assert.True(t, route.OutputAmount.Equal(decimal.RequireFromString("0.1568")), "output: %s", route.OutputAmount)
}

func TestBestRoute_P2PNotViableWithoutLiquidity(t *testing.T) {
	uow := fake.NewUoW()
	// Good rate, but the book cannot absorb the full output.
	seedBuy(t, uow, "0.00016", "0.01")
	dex := infraprovider.NewSimulatedDexAggregator(decimal.RequireFromString("0.00015"), decimal.Zero)
	svc := router.New(uow.Orders(), dex, slog.Default())

	route, err := svc.BestRoute(context.Background(), "XTR", "TON", decimal.NewFromInt(980))
	require.NoError(t, err)
	assert.Equal(t, router.RouteDex, route.Kind)
}

func TestBestRoute_IgnoresLiquidityBelowBestRate(t *testing.T) {
	uow := fake.NewUoW()
	// A sliver of buy interest at the best rate over a deep book at a
	// junk rate. Only the sliver can absorb output priced at the best
	// rate, so the P2P venue is not viable for this size.
	seedBuy(t, uow, "0.00016", "0.001")
	seedBuy(t, uow, "0.00001", "10")
	dex := infraprovider.NewSimulatedDexAggregator(decimal.RequireFromString("0.00015"), decimal.Zero)
	svc := router.New(uow.Orders(), dex, slog.Default())

	route, err := svc.BestRoute(context.Background(), "XTR", "TON", decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, router.RouteDex, route.Kind)
}

func TestBestRoute_BothVenuesUnavailable(t *testing.T) {
	uow := fake.NewUoW()
	svc := router.New(uow.Orders(), failingDex{}, slog.Default())

	_, err := svc.BestRoute(context.Background(), "XTR", "TON", decimal.NewFromInt(980))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no liquidity route")
}
