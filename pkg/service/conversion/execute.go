package conversion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
	"github.com/stellarpay/starbridge/pkg/service/router"
)

// Execute runs the asynchronous phase of a conversion: prepare, select a
// route, submit the swap, commit. All failures are recorded on the row as
// status=failed + errorMessage; the request that created the conversion
// has long since returned. Execution does not retry at this layer; only
// the DEX call site retries its retryable error codes.
func (s *Service) Execute(ctx context.Context, id uuid.UUID) {
	conv, err := s.uow.Conversions().Get(ctx, id)
	if err != nil {
		s.logger.Error("execute: load conversion", "conversion_id", id, "error", err)
		return
	}

	// The bus delivers at least once. A conversion past the claimable
	// states must never be regressed into a second execution.
	if !conv.Status.CanTransitionTo(domain.ConversionPhase1Prepared) {
		s.logger.Debug("execute: conversion not claimable", "conversion_id", id, "status", conv.Status)
		return
	}

	ok, err := s.uow.Conversions().Transition(ctx, id, conv.Status, domain.ConversionPhase1Prepared, repository.ConversionUpdate{})
	if err != nil {
		s.logger.Error("execute: prepare transition", "conversion_id", id, "error", err)
		return
	}
	if !ok {
		// Another worker claimed it first.
		s.logger.Debug("execute: claim lost", "conversion_id", id, "status", conv.Status)
		return
	}

	if err := s.executeRoute(ctx, conv); err != nil {
		s.fail(ctx, id, err)
	}
}

func (s *Service) executeRoute(ctx context.Context, conv *domain.Conversion) error {
	// Same floor as Quote, so the executed amount and the persisted
	// TargetAmount price the identical principal.
	net := decimal.NewFromInt(conv.SourceAmount).Sub(conv.Fees.Total).Floor()
	route, err := s.router.BestRoute(ctx, conv.SourceCurrency, conv.TargetCurrency, net)
	if err != nil {
		return fmt.Errorf("route selection: %w", err)
	}

	switch route.Kind {
	case router.RouteP2P:
		return s.executeP2P(ctx, conv, net, route)
	case router.RouteDex:
		return s.executeDex(ctx, conv, net, route)
	}
	return fmt.Errorf("unknown route kind %q", route.Kind)
}

func (s *Service) executeP2P(ctx context.Context, conv *domain.Conversion, net decimal.Decimal, route *router.Route) error {
	txHash, err := s.p2p.SellStars(ctx, conv.UserID, net.IntPart(), route.Rate)
	if err != nil {
		return fmt.Errorf("p2p execution: %w", err)
	}

	providerName := string(router.RouteP2P)
	ok, err := s.uow.Conversions().Transition(ctx, conv.ID,
		domain.ConversionPhase1Prepared, domain.ConversionPhase2Committed,
		repository.ConversionUpdate{
			DexProvider: &providerName,
			TonTxHash:   &txHash,
		})
	if err != nil {
		return fmt.Errorf("commit p2p route: %w", err)
	}
	if !ok {
		return fmt.Errorf("conversion %s left phase1_prepared during p2p execution", conv.ID)
	}

	s.logger.Info("conversion committed via p2p", "conversion_id", conv.ID, "tx_hash", txHash)
	return nil
}

func (s *Service) executeDex(ctx context.Context, conv *domain.Conversion, net decimal.Decimal, route *router.Route) error {
	quote := route.DexQuote
	minOutput := quote.OutputAmount.Mul(decimal.NewFromInt(1).Sub(s.slippagePct))

	result, err := s.executeSwapWithRetry(ctx, provider.SwapRequest{
		Provider:       quote.Provider,
		PoolID:         quote.PoolID,
		SourceCurrency: conv.SourceCurrency,
		TargetCurrency: conv.TargetCurrency,
		Amount:         net,
		MinOutput:      minOutput,
	})
	if err != nil {
		return fmt.Errorf("dex execution: %w", err)
	}

	ok, err := s.uow.Conversions().Transition(ctx, conv.ID,
		domain.ConversionPhase1Prepared, domain.ConversionPhase2Committed,
		repository.ConversionUpdate{
			DexPoolID:   &quote.PoolID,
			DexProvider: &quote.Provider,
			DexTxHash:   &result.TxHash,
			TonTxHash:   &result.TxHash,
		})
	if err != nil {
		return fmt.Errorf("commit dex route: %w", err)
	}
	if !ok {
		return fmt.Errorf("conversion %s left phase1_prepared during dex execution", conv.ID)
	}

	s.logger.Info("conversion committed via dex",
		"conversion_id", conv.ID,
		"pool", quote.PoolID,
		"tx_hash", result.TxHash,
		"output", result.OutputAmount,
	)
	return nil
}

// executeSwapWithRetry retries only retryable DEX error codes, with fixed
// backoff delays. Everything else propagates immediately.
func (s *Service) executeSwapWithRetry(ctx context.Context, req provider.SwapRequest) (*provider.SwapResult, error) {
	var lastErr *provider.DexError
	for attempt := 0; attempt < len(s.retryDelays); attempt++ {
		result, err := s.dex.ExecuteSwap(ctx, req)
		if err == nil {
			return result, nil
		}

		dexErr := provider.ClassifyDexError(err)
		if !dexErr.Retryable() {
			return nil, dexErr
		}
		lastErr = dexErr
		s.logger.Warn("retryable dex failure",
			"code", dexErr.Code,
			"attempt", attempt+1,
			"error", err,
		)
		if attempt < len(s.retryDelays)-1 {
			if err := s.sleep(ctx, s.retryDelays[attempt]); err != nil {
				return nil, dexErr
			}
		}
	}
	return nil, lastErr
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	conv, err := s.uow.Conversions().Get(ctx, id)
	if err != nil {
		s.logger.Error("fail: load conversion", "conversion_id", id, "error", err)
		return
	}
	if conv.Status.Terminal() {
		return
	}
	if _, err := s.uow.Conversions().Transition(ctx, id, conv.Status, domain.ConversionFailed,
		repository.ConversionUpdate{ErrorMessage: &msg}); err != nil {
		s.logger.Error("fail: transition", "conversion_id", id, "error", err)
		return
	}
	s.logger.Error("conversion failed", "conversion_id", id, "error", cause)
}
