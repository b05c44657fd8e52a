// Package orderbook is the P2P marketplace of Stars↔TON sell/buy intents
// and the matching engine that pairs them into atomic swaps.
package orderbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
)

// Service creates orders, matches them, and executes atomic swaps.
// Matching is transactional: both orders flip to matched with mutual
// counter references and exactly one swap row is created, or nothing
// changes. The status='open' guards make a double-match race fail closed.
type Service struct {
	uow     repository.UnitOfWork
	chain   provider.BlockchainClient
	wallets provider.WalletResolver
	logger  *slog.Logger
	now     func() time.Time
}

// New creates the order book service.
func New(
	uow repository.UnitOfWork,
	chain provider.BlockchainClient,
	wallets provider.WalletResolver,
	logger *slog.Logger,
) *Service {
	return &Service{
		uow:     uow,
		chain:   chain,
		wallets: wallets,
		logger:  logger.With("service", "orderbook"),
		now:     time.Now,
	}
}

// CreateSellOrder inserts an open sell order and synchronously attempts
// one match against the buy book.
func (s *Service) CreateSellOrder(ctx context.Context, userID uuid.UUID, starsAmount int64, rate decimal.Decimal) (*domain.StarsOrder, error) {
	if starsAmount <= 0 {
		return nil, domain.NewValidationError("starsAmount", "must be positive")
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, domain.NewValidationError("rate", "must be positive")
	}

	order := &domain.StarsOrder{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        domain.OrderSell,
		StarsAmount: starsAmount,
		Rate:        rate,
		Status:      domain.OrderOpen,
		CreatedAt:   s.now(),
	}
	if err := s.uow.Orders().Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create sell order: %w", err)
	}
	s.logger.Info("sell order created", "order_id", order.ID, "stars", starsAmount, "rate", rate)

	if _, err := s.MatchSellOrder(ctx, order); err != nil {
		// Matching is best effort at creation time; the sweep loop will
		// retry. The order itself was accepted.
		s.logger.Warn("immediate match attempt failed", "order_id", order.ID, "error", err)
	}
	return order, nil
}

// CreateBuyOrder inserts an open buy order and synchronously attempts one
// match against the sell book.
func (s *Service) CreateBuyOrder(ctx context.Context, userID uuid.UUID, tonAmount, rate decimal.Decimal) (*domain.StarsOrder, error) {
	if tonAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.NewValidationError("tonAmount", "must be positive")
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, domain.NewValidationError("rate", "must be positive")
	}

	order := &domain.StarsOrder{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.OrderBuy,
		TonAmount: tonAmount,
		Rate:      rate,
		Status:    domain.OrderOpen,
		CreatedAt: s.now(),
	}
	if err := s.uow.Orders().Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create buy order: %w", err)
	}
	s.logger.Info("buy order created", "order_id", order.ID, "ton", tonAmount, "rate", rate)

	sell, err := s.uow.Orders().OldestOpenSellAtOrBelow(ctx, order.Rate)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return order, nil
		}
		s.logger.Warn("immediate match attempt failed", "order_id", order.ID, "error", err)
		return order, nil
	}
	if _, err := s.match(ctx, sell, order); err != nil {
		s.logger.Warn("immediate match attempt failed", "order_id", order.ID, "error", err)
	}
	return order, nil
}

// MatchSellOrder finds the FIFO-first eligible open buy order (rate ≥ the
// seller's ask) and executes the transactional match. Returns (nil, nil)
// when no counter-order exists.
func (s *Service) MatchSellOrder(ctx context.Context, sell *domain.StarsOrder) (*domain.AtomicSwap, error) {
	buy, err := s.uow.Orders().OldestOpenBuyAtOrAbove(ctx, sell.Rate)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.match(ctx, sell, buy)
}

// match flips both orders to matched and creates the swap in a single
// transaction. The TON amount is derived once here, at the seller's ask,
// and execution later reads it back from the swap record.
func (s *Service) match(ctx context.Context, sell, buy *domain.StarsOrder) (*domain.AtomicSwap, error) {
	if !sell.Matches(buy) {
		return nil, nil
	}

	tonAmount := decimal.NewFromInt(sell.StarsAmount).Mul(sell.Rate)
	swap := &domain.AtomicSwap{
		ID:          uuid.New(),
		SellOrderID: sell.ID,
		BuyOrderID:  buy.ID,
		TonAmount:   tonAmount,
		Rate:        sell.Rate,
		Status:      domain.SwapInProgress,
		CreatedAt:   s.now(),
	}

	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		ok, err := uow.Orders().MarkMatched(ctx, sell.ID, buy.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOrderNotOpen
		}
		ok, err = uow.Orders().MarkMatched(ctx, buy.ID, sell.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOrderNotOpen
		}
		return uow.Swaps().Create(ctx, swap)
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotOpen) {
			// Lost a race against a concurrent match. Nothing happened.
			s.logger.Debug("match lost race", "sell_order", sell.ID, "buy_order", buy.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("match orders: %w", err)
	}

	s.logger.Info("orders matched",
		"swap_id", swap.ID,
		"sell_order", sell.ID,
		"buy_order", buy.ID,
		"ton", tonAmount,
		"rate", sell.Rate,
	)
	return swap, nil
}

// Sweep re-scans open sell orders against the buy book. Synchronous
// matching only looks at the opposite book at creation time, so a
// later-arriving counter-order is only discovered here. Idempotent:
// already-matched orders are skipped by the open-status query and guards.
func (s *Service) Sweep(ctx context.Context, limit int) error {
	sells, err := s.uow.Orders().ListOpenSells(ctx, limit)
	if err != nil {
		return fmt.Errorf("list open sells: %w", err)
	}
	for _, sell := range sells {
		if _, err := s.MatchSellOrder(ctx, sell); err != nil {
			s.logger.Warn("sweep match failed", "order_id", sell.ID, "error", err)
		}
	}
	return nil
}

// CancelOrder cancels an open order owned by userID. A matched order can
// no longer be cancelled.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error {
	order, err := s.uow.Orders().Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return domain.ErrOrderNotFound
	}
	ok, err := s.uow.Orders().UpdateStatus(ctx, orderID, domain.OrderOpen, domain.OrderCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrOrderNotOpen
	}
	s.logger.Info("order cancelled", "order_id", orderID)
	return nil
}

// ExecuteAtomicSwap moves the funds for a matched pair: one on-chain
// transfer of the swap's recorded TON amount to the seller's receiving
// wallet. Success completes the swap and both orders; any failure marks
// the swap failed and leaves the orders matched for separate resolution.
// Re-invoking on a completed swap is a no-op returning success.
func (s *Service) ExecuteAtomicSwap(ctx context.Context, swapID uuid.UUID) error {
	swap, err := s.uow.Swaps().Get(ctx, swapID)
	if err != nil {
		return err
	}
	if swap.Status == domain.SwapCompleted {
		return nil
	}
	if swap.Status != domain.SwapInProgress && swap.Status != domain.SwapPending {
		return fmt.Errorf("swap %s is %s, not executable", swapID, swap.Status)
	}

	sell, err := s.uow.Orders().Get(ctx, swap.SellOrderID)
	if err != nil {
		return err
	}
	if _, err = s.uow.Orders().Get(ctx, swap.BuyOrderID); err != nil {
		return err
	}

	sellerWallet, err := s.wallets.ReceivingAddress(ctx, sell.UserID.String())
	if err != nil {
		s.failSwap(ctx, swap, fmt.Errorf("resolve seller wallet: %w", err))
		return err
	}

	memo := fmt.Sprintf("starbridge swap %s", swap.ID)
	txHash, err := s.chain.SendTransaction(ctx, sellerWallet, swap.TonAmount, memo)
	if err != nil {
		s.failSwap(ctx, swap, err)
		return fmt.Errorf("swap transfer: %w", err)
	}

	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if _, err := uow.Swaps().UpdateStatus(ctx, swap.ID, swap.Status, domain.SwapCompleted, txHash); err != nil {
			return err
		}
		if _, err := uow.Orders().UpdateStatus(ctx, swap.SellOrderID, domain.OrderMatched, domain.OrderCompleted); err != nil {
			return err
		}
		_, err := uow.Orders().UpdateStatus(ctx, swap.BuyOrderID, domain.OrderMatched, domain.OrderCompleted)
		return err
	})
	if err != nil {
		return fmt.Errorf("finalize swap: %w", err)
	}

	s.logger.Info("atomic swap executed", "swap_id", swap.ID, "tx_hash", txHash, "ton", swap.TonAmount)
	return nil
}

// SellStars sells stars into the buy book on behalf of a conversion: it
// places a sell order at rate, requires an immediate match, executes the
// resulting swap, and returns the transfer hash. Used by the liquidity
// router's p2p route, which has already verified book liquidity.
func (s *Service) SellStars(ctx context.Context, userID uuid.UUID, starsAmount int64, rate decimal.Decimal) (string, error) {
	order, err := s.CreateSellOrder(ctx, userID, starsAmount, rate)
	if err != nil {
		return "", err
	}

	swap, err := s.uow.Swaps().GetBySellOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSwapNotFound) {
			return "", fmt.Errorf("p2p liquidity no longer available for order %s", order.ID)
		}
		return "", err
	}

	if err := s.ExecuteAtomicSwap(ctx, swap.ID); err != nil {
		return "", err
	}

	executed, err := s.uow.Swaps().Get(ctx, swap.ID)
	if err != nil {
		return "", err
	}
	return executed.TransferTxHash, nil
}

func (s *Service) failSwap(ctx context.Context, swap *domain.AtomicSwap, cause error) {
	if _, err := s.uow.Swaps().UpdateStatus(ctx, swap.ID, swap.Status, domain.SwapFailed, ""); err != nil {
		s.logger.Error("failed to mark swap failed", "swap_id", swap.ID, "error", err)
	}
	// Orders stay in matched; there is no automatic unwind. Ops tooling
	// resolves stuck pairs.
	s.logger.Error("atomic swap failed", "swap_id", swap.ID, "error", cause)
}
