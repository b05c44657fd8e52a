// Package fees computes the platform/dex/network fee breakdown from the
// single active platform configuration record.
package fees

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/repository"
)

// Service caches the active config after first load. The cache must be
// busted whenever the configuration is updated administratively; a
// cached+stale config silently misprices every quote.
type Service struct {
	configs repository.ConfigRepository
	logger  *slog.Logger

	mu     sync.RWMutex
	cached *domain.PlatformConfig
}

// New creates a fee service backed by the config repository.
func New(configs repository.ConfigRepository, logger *slog.Logger) *Service {
	return &Service{configs: configs, logger: logger.With("service", "fees")}
}

// InvalidateCache drops the cached configuration. The explicit bust hook
// for administrative config updates.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	s.logger.Info("platform config cache invalidated")
}

func (s *Service) config(ctx context.Context) (*domain.PlatformConfig, error) {
	s.mu.RLock()
	cfg := s.cached
	s.mu.RUnlock()
	if cfg != nil {
		return cfg, nil
	}

	cfg, err := s.configs.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = cfg
	s.mu.Unlock()
	s.logger.Info("platform config loaded",
		"version", cfg.Version,
		"platform_fee_pct", cfg.PlatformFeePct,
		"min_conversion_stars", cfg.MinConversionStars,
	)
	return cfg, nil
}

// Breakdown computes the fee components for sourceAmount stars. Each
// component is sourceAmount × its configured fraction; total is the sum.
func (s *Service) Breakdown(ctx context.Context, sourceAmount int64) (domain.FeeBreakdown, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}

	amount := decimal.NewFromInt(sourceAmount)
	platform := amount.Mul(cfg.PlatformFeePct)
	dexFee := amount.Mul(cfg.DexFeePct)
	network := amount.Mul(cfg.NetworkFeePct)

	return domain.FeeBreakdown{
		Platform:           platform,
		Dex:                dexFee,
		Network:            network,
		Total:              platform.Add(dexFee).Add(network),
		PlatformPercentage: cfg.PlatformFeePct,
	}, nil
}

// MinConversionStars returns the configured minimum conversion amount,
// enforced by the conversion service before quoting.
func (s *Service) MinConversionStars(ctx context.Context) (int64, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.MinConversionStars, nil
}

// SettlementRate returns the configured static TON/USD settlement rate
// and fiat currency.
func (s *Service) SettlementRate(ctx context.Context) (decimal.Decimal, string, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return decimal.Zero, "", err
	}
	currency := cfg.SettlementCurrency
	if currency == "" {
		currency = "USD"
	}
	return cfg.SettlementTonUsdRate, currency, nil
}
