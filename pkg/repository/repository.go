// Package repository defines the persistence contracts consumed by the
// services. All state transitions are status-guarded conditional updates:
// the boolean result reports whether the guard matched a row, and a
// zero-row update is a no-op, not an error. The database is the single
// source of truth and the de-facto lock; monitors may run as separate
// processes.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
)

// PaymentRepository persists Stars payments.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Payment, error)
	// UpdateStatus transitions status only when the current status equals
	// from. Returns false when the guard matched no row.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) (bool, error)
}

// ConversionUpdate carries the optional fields set alongside a status
// transition. Nil fields are left untouched.
type ConversionUpdate struct {
	TargetAmount     *decimal.Decimal
	ExchangeRate     *decimal.Decimal
	RateLockedUntil  *time.Time
	DexPoolID        *string
	DexProvider      *string
	DexTxHash        *string
	TonTxHash        *string
	ErrorMessage     *string
	SettlementStatus *domain.SettlementReadiness
}

// ConversionRepository persists conversions and their state machine.
type ConversionRepository interface {
	Create(ctx context.Context, c *domain.Conversion) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Conversion, error)
	// Transition moves id from one status to another, applying upd in the
	// same statement. Guarded by WHERE status = from.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.ConversionStatus, upd ConversionUpdate) (bool, error)
	// ListCommittedWithTxHash returns conversions awaiting on-chain
	// confirmation, oldest first.
	ListCommittedWithTxHash(ctx context.Context, limit int) ([]*domain.Conversion, error)
	// ListSettleable returns completed conversions whose settlement
	// readiness is pending or ready, oldest first.
	ListSettleable(ctx context.Context, limit int) ([]*domain.Conversion, error)
	// SetSettlement records the settlement row id once; guarded by
	// settlement_id IS NULL.
	SetSettlement(ctx context.Context, conversionID, settlementID uuid.UUID) (bool, error)
	// UpdateSettlementReadiness is guarded by the current readiness being
	// one of from.
	UpdateSettlementReadiness(ctx context.Context, id uuid.UUID, from []domain.SettlementReadiness, to domain.SettlementReadiness) (bool, error)
}

// OrderRepository persists the P2P order book.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.StarsOrder) error
	Get(ctx context.Context, id uuid.UUID) (*domain.StarsOrder, error)
	// OldestOpenBuyAtOrAbove finds the FIFO-first open buy order whose
	// rate is >= rate. Returns domain.ErrOrderNotFound when none exists.
	OldestOpenBuyAtOrAbove(ctx context.Context, rate decimal.Decimal) (*domain.StarsOrder, error)
	// OldestOpenSellAtOrBelow is the symmetric query for buy orders.
	OldestOpenSellAtOrBelow(ctx context.Context, rate decimal.Decimal) (*domain.StarsOrder, error)
	// ListOpenSells feeds the periodic sweep, oldest first.
	ListOpenSells(ctx context.Context, limit int) ([]*domain.StarsOrder, error)
	// OpenBuyLiquidity sums the TON amount of open buy orders willing to
	// pay at least rate.
	OpenBuyLiquidity(ctx context.Context, rate decimal.Decimal) (decimal.Decimal, error)
	// BestOpenBuyRate returns the highest rate among open buy orders, or
	// zero when the book is empty.
	BestOpenBuyRate(ctx context.Context) (decimal.Decimal, error)
	// MarkMatched sets status=matched and the counter order reference,
	// guarded by status='open'.
	MarkMatched(ctx context.Context, id, counterOrderID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error)
}

// SwapRepository persists atomic swaps.
type SwapRepository interface {
	Create(ctx context.Context, s *domain.AtomicSwap) error
	Get(ctx context.Context, id uuid.UUID) (*domain.AtomicSwap, error)
	GetBySellOrder(ctx context.Context, sellOrderID uuid.UUID) (*domain.AtomicSwap, error)
	// UpdateStatus transitions the swap, optionally recording the
	// transfer hash, guarded by the current status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.SwapStatus, transferTxHash string) (bool, error)
}

// FeeRepository is the platform fee ledger.
type FeeRepository interface {
	Create(ctx context.Context, f *domain.PlatformFee) error
	ListByConversion(ctx context.Context, conversionID uuid.UUID) ([]*domain.PlatformFee, error)
	// MarkCollectible flags the conversion's fee entries as ready for the
	// collection flow once the conversion confirms on-chain.
	MarkCollectible(ctx context.Context, conversionID uuid.UUID) error
	// MarkCollected is invoked by the fee-collection flow.
	MarkCollected(ctx context.Context, id uuid.UUID, collectionTxHash string) (bool, error)
}

// SettlementRepository persists fiat settlements.
type SettlementRepository interface {
	Create(ctx context.Context, s *domain.Settlement) error
	GetByConversion(ctx context.Context, conversionID uuid.UUID) (*domain.Settlement, error)
	// ListUnfinished returns settlements in pending or processing,
	// oldest first.
	ListUnfinished(ctx context.Context, limit int) ([]*domain.Settlement, error)
	// MarkCompleted records the generated transaction reference, guarded
	// by a non-completed current status.
	MarkCompleted(ctx context.Context, id uuid.UUID, transactionID string) (bool, error)
}

// DepositRepository persists manual deposits.
type DepositRepository interface {
	Create(ctx context.Context, d *domain.ManualDeposit) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ManualDeposit, error)
	// LatestOpenByAddress returns the most recent pending or
	// awaiting_confirmation deposit for an address.
	LatestOpenByAddress(ctx context.Context, address string) (*domain.ManualDeposit, error)
	// WatchedAddresses lists the addresses of all non-terminal deposits.
	WatchedAddresses(ctx context.Context) ([]string, error)
	// RecordObservation upserts the latest observation of the incoming
	// transfer: received amount, tx hash and confirmation count. Repeated
	// observations refresh, they do not append.
	RecordObservation(ctx context.Context, id uuid.UUID, received decimal.Decimal, txHash string, confirmations int) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.DepositStatus, to domain.DepositStatus) (bool, error)
	// ListExpirable returns non-terminal deposits whose deadline passed.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*domain.ManualDeposit, error)
}

// ConfigRepository reads the admin-managed platform configuration.
type ConfigRepository interface {
	// ActiveConfig returns the single active row, or
	// domain.ErrConfigurationMissing.
	ActiveConfig(ctx context.Context) (*domain.PlatformConfig, error)
}

// UnitOfWork provides transaction boundaries and repository access bound
// to the same session, so multi-entity updates are atomic. Calling Do
// nested reuses the outer transaction.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	Payments() PaymentRepository
	Conversions() ConversionRepository
	Orders() OrderRepository
	Swaps() SwapRepository
	Fees() FeeRepository
	Settlements() SettlementRepository
	Deposits() DepositRepository
	Config() ConfigRepository
}
