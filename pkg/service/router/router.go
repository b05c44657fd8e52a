// Package router selects the liquidity route for a conversion: the P2P
// order book or a DEX pool, whichever nets the better output.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
)

// RouteKind identifies the selected liquidity venue.
type RouteKind string

const (
	RouteP2P RouteKind = "p2p"
	RouteDex RouteKind = "dex"
)

// Route is the selected execution plan for a conversion.
type Route struct {
	Kind         RouteKind
	Rate         decimal.Decimal
	OutputAmount decimal.Decimal
	// DexQuote is set for dex routes only.
	DexQuote *provider.DexQuote
}

// Service queries both venues in parallel and picks the best net output.
type Service struct {
	orders repository.OrderRepository
	dex    provider.DexAggregator
	logger *slog.Logger
}

// New creates a liquidity router.
func New(orders repository.OrderRepository, dex provider.DexAggregator, logger *slog.Logger) *Service {
	return &Service{orders: orders, dex: dex, logger: logger.With("service", "router")}
}

// BestRoute routes amount (in source currency units, fees already
// subtracted) from source to target. Either venue may be unavailable;
// only both failing is an error.
func (s *Service) BestRoute(ctx context.Context, source, target string, amount decimal.Decimal) (*Route, error) {
	var (
		wg       sync.WaitGroup
		p2pRoute *Route
		p2pErr   error
		dexRoute *Route
		dexErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		p2pRoute, p2pErr = s.p2pRoute(ctx, amount)
	}()
	go func() {
		defer wg.Done()
		dexRoute, dexErr = s.dexRoute(ctx, source, target, amount)
	}()
	wg.Wait()

	if p2pErr != nil {
		s.logger.Warn("p2p liquidity lookup failed", "error", p2pErr)
	}
	if dexErr != nil {
		s.logger.Warn("dex quote failed", "error", dexErr)
	}

	switch {
	case p2pRoute == nil && dexRoute == nil:
		if dexErr != nil {
			return nil, fmt.Errorf("no liquidity route available: %w", dexErr)
		}
		return nil, fmt.Errorf("no liquidity route available")
	case p2pRoute == nil:
		return dexRoute, nil
	case dexRoute == nil:
		return p2pRoute, nil
	}

	if p2pRoute.OutputAmount.GreaterThan(dexRoute.OutputAmount) {
		s.logger.Info("route selected", "kind", RouteP2P, "output", p2pRoute.OutputAmount)
		return p2pRoute, nil
	}
	s.logger.Info("route selected", "kind", RouteDex, "output", dexRoute.OutputAmount)
	return dexRoute, nil
}

// p2pRoute prices amount against the open buy book. The venue is viable
// only when open buy liquidity covers the full output at the best rate.
func (s *Service) p2pRoute(ctx context.Context, amount decimal.Decimal) (*Route, error) {
	bestRate, err := s.orders.BestOpenBuyRate(ctx)
	if err != nil {
		return nil, err
	}
	if bestRate.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	// Only buy interest at or above the pricing rate counts; deep bids
	// below it cannot absorb an output priced at bestRate.
	required := amount.Mul(bestRate)
	available, err := s.orders.OpenBuyLiquidity(ctx, bestRate)
	if err != nil {
		return nil, err
	}
	if available.LessThan(required) {
		return nil, nil
	}

	return &Route{Kind: RouteP2P, Rate: bestRate, OutputAmount: required}, nil
}

func (s *Service) dexRoute(ctx context.Context, source, target string, amount decimal.Decimal) (*Route, error) {
	quote, err := s.dex.GetBestRate(ctx, source, target, amount)
	if err != nil {
		return nil, err
	}
	return &Route{
		Kind:         RouteDex,
		Rate:         quote.Rate,
		OutputAmount: quote.OutputAmount,
		DexQuote:     quote,
	}, nil
}
