package rates_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infracache "github.com/stellarpay/starbridge/infra/cache"
	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/service/rates"
)

type stubSource struct {
	name  string
	rate  decimal.Decimal
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Rate(ctx context.Context, source, target string) (decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.rate, nil
}

func newService(sources []provider.RateSource, weights map[string]decimal.Decimal) *rates.Service {
	return rates.New(sources, weights, infracache.NewMemoryCache(), time.Minute, slog.Default())
}

func TestAggregatedRate_WeightedAverage(t *testing.T) {
	a := &stubSource{name: "a", rate: decimal.RequireFromString("0.00010")}
	b := &stubSource{name: "b", rate: decimal.RequireFromString("0.00020")}
	weights := map[string]decimal.Decimal{
		"a": decimal.RequireFromString("0.6"),
		"b": decimal.RequireFromString("0.4"),
	}
	svc := newService([]provider.RateSource{a, b}, weights)

	agg, err := svc.AggregatedRate(context.Background(), "XTR", "TON")
	require.NoError(t, err)

	// 0.0001*0.6 + 0.0002*0.4 = 0.00014
	assert.True(t, agg.Rate.Equal(decimal.RequireFromString("0.00014")), "rate: %s", agg.Rate)
	assert.True(t, agg.AverageRate.Equal(decimal.RequireFromString("0.00015")), "avg: %s", agg.AverageRate)
	assert.True(t, agg.BestRate.Equal(decimal.RequireFromString("0.00020")), "best: %s", agg.BestRate)
	assert.Len(t, agg.Sources, 2)
}

func TestAggregatedRate_ToleratesPartialFailure(t *testing.T) {
	healthy := &stubSource{name: "a", rate: decimal.RequireFromString("0.00015")}
	broken := &stubSource{name: "b", err: errors.New("upstream down")}
	weights := map[string]decimal.Decimal{
		"a": decimal.RequireFromString("0.6"),
		"b": decimal.RequireFromString("0.4"),
	}
	svc := newService([]provider.RateSource{healthy, broken}, weights)

	agg, err := svc.AggregatedRate(context.Background(), "XTR", "TON")
	require.NoError(t, err)

	// Weight renormalizes over the sources that answered.
	assert.True(t, agg.Rate.Equal(decimal.RequireFromString("0.00015")), "rate: %s", agg.Rate)
	assert.Len(t, agg.Sources, 1)
}

func TestAggregatedRate_AllSourcesFail(t *testing.T) {
	a := &stubSource{name: "a", err: errors.New("down")}
	b := &stubSource{name: "b", err: errors.New("also down")}
	svc := newService([]provider.RateSource{a, b}, nil)

	_, err := svc.AggregatedRate(context.Background(), "XTR", "TON")
	assert.ErrorIs(t, err, domain.ErrNoRateData)
}

func TestAggregatedRate_RejectsNonPositiveRates(t *testing.T) {
	zero := &stubSource{name: "a", rate: decimal.Zero}
	svc := newService([]provider.RateSource{zero}, nil)

	_, err := svc.AggregatedRate(context.Background(), "XTR", "TON")
	assert.ErrorIs(t, err, domain.ErrNoRateData)
}

func TestAggregatedRate_ServesFromCache(t *testing.T) {
	src := &stubSource{name: "a", rate: decimal.RequireFromString("0.00015")}
	svc := newService([]provider.RateSource{src}, nil)

	_, err := svc.AggregatedRate(context.Background(), "XTR", "TON")
	require.NoError(t, err)
	_, err = svc.AggregatedRate(context.Background(), "XTR", "TON")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls, "second lookup should hit the cache")
}

func TestAggregatedRate_CacheIsPerPair(t *testing.T) {
	src := &stubSource{name: "a", rate: decimal.RequireFromString("2")}
	svc := newService([]provider.RateSource{src}, nil)

	_, err := svc.AggregatedRate(context.Background(), "XTR", "TON")
	require.NoError(t, err)
	_, err = svc.AggregatedRate(context.Background(), "TON", "USD")
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls)
}
