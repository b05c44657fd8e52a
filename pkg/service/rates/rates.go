// Package rates blends multiple external rate sources into a single
// confidence-weighted exchange rate with per-pair TTL caching.
package rates

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/cache"
	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
)

// defaultWeight applies to sources without an explicit weight entry.
var defaultWeight = decimal.NewFromFloat(0.1)

// Service queries all sources concurrently, tolerates individual source
// failures, and fails with domain.ErrNoRateData only when every source
// fails.
type Service struct {
	sources []provider.RateSource
	weights map[string]decimal.Decimal
	cache   cache.RateCache
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a rate service. weights are fixed per-source fractions that
// should sum to 1.0 across the configured sources; unknown sources fall
// back to a small default weight.
func New(
	sources []provider.RateSource,
	weights map[string]decimal.Decimal,
	rateCache cache.RateCache,
	ttl time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		sources: sources,
		weights: weights,
		cache:   rateCache,
		ttl:     ttl,
		logger:  logger.With("service", "rates"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func pairKey(source, target string) string {
	return fmt.Sprintf("%s:%s", source, target)
}

func (s *Service) weightFor(name string) decimal.Decimal {
	if w, ok := s.weights[name]; ok {
		return w
	}
	return defaultWeight
}

// AggregatedRate returns the blended rate for a pair, served from cache
// while the TTL holds.
func (s *Service) AggregatedRate(ctx context.Context, source, target string) (*domain.AggregatedRate, error) {
	key := pairKey(source, target)
	if cached, err := s.cache.Get(key); err == nil && cached != nil {
		s.logger.Debug("rate served from cache", "pair", key, "rate", cached.Rate)
		return cached, nil
	}

	type result struct {
		name string
		rate decimal.Decimal
		err  error
	}

	results := make(chan result, len(s.sources))
	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func(src provider.RateSource) {
			defer wg.Done()
			rate, err := src.Rate(ctx, source, target)
			results <- result{name: src.Name(), rate: rate, err: err}
		}(src)
	}
	wg.Wait()
	close(results)

	var sources []domain.SourceRate
	for r := range results {
		if r.err != nil {
			s.logger.Warn("rate source failed", "source", r.name, "pair", key, "error", r.err)
			continue
		}
		if r.rate.LessThanOrEqual(decimal.Zero) {
			s.logger.Warn("rate source returned invalid rate", "source", r.name, "rate", r.rate)
			continue
		}
		sources = append(sources, domain.SourceRate{
			Name:   r.name,
			Rate:   r.rate,
			Weight: s.weightFor(r.name),
		})
	}

	if len(sources) == 0 {
		return nil, domain.ErrNoRateData
	}

	agg := aggregate(source, target, sources, s.now())
	if err := s.cache.Set(key, agg, s.ttl); err != nil {
		s.logger.Warn("failed to cache rate", "pair", key, "error", err)
	}

	s.logger.Info("rate aggregated",
		"pair", key,
		"rate", agg.Rate,
		"sources", len(sources),
	)
	return agg, nil
}

// aggregate computes the weighted average over the sources that answered,
// normalizing by the sum of their weights so partial results still blend
// to a sane value.
func aggregate(source, target string, rates []domain.SourceRate, now time.Time) *domain.AggregatedRate {
	weightedSum := decimal.Zero
	weightTotal := decimal.Zero
	sum := decimal.Zero
	best := rates[0].Rate

	for _, r := range rates {
		weightedSum = weightedSum.Add(r.Rate.Mul(r.Weight))
		weightTotal = weightTotal.Add(r.Weight)
		sum = sum.Add(r.Rate)
		if r.Rate.GreaterThan(best) {
			best = r.Rate
		}
	}

	count := decimal.NewFromInt(int64(len(rates)))
	return &domain.AggregatedRate{
		SourceCurrency: source,
		TargetCurrency: target,
		Rate:           weightedSum.Div(weightTotal),
		AverageRate:    sum.Div(count),
		BestRate:       best,
		Sources:        rates,
		Timestamp:      now,
	}
}
