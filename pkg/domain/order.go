package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType distinguishes the two sides of the P2P book.
type OrderType string

const (
	OrderSell OrderType = "sell"
	OrderBuy  OrderType = "buy"
)

// OrderStatus follows open → matched → completed, or open → cancelled.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderMatched   OrderStatus = "matched"
	OrderCancelled OrderStatus = "cancelled"
	OrderCompleted OrderStatus = "completed"
)

// StarsOrder is a P2P sell/buy intent. A sell order carries StarsAmount,
// a buy order carries TonAmount; the other field stays zero. Rate is
// TON per star with fixed-point semantics. Once matched, CounterOrderID
// is immutable and mutual.
type StarsOrder struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Type           OrderType
	StarsAmount    int64
	TonAmount      decimal.Decimal
	Rate           decimal.Decimal
	Status         OrderStatus
	LockedUntil    *time.Time
	CounterOrderID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Matches reports whether o (a sell order) can trade against buy: the
// buyer must be willing to pay at least what the seller asks.
func (o *StarsOrder) Matches(buy *StarsOrder) bool {
	if o.Type != OrderSell || buy.Type != OrderBuy {
		return false
	}
	if o.Status != OrderOpen || buy.Status != OrderOpen {
		return false
	}
	return buy.Rate.GreaterThanOrEqual(o.Rate)
}

// SwapStatus tracks an atomic swap record.
type SwapStatus string

const (
	SwapPending    SwapStatus = "pending"
	SwapInProgress SwapStatus = "in_progress"
	SwapCompleted  SwapStatus = "completed"
	SwapFailed     SwapStatus = "failed"
)

// AtomicSwap pairs one matched sell/buy order. TonAmount is derived once
// at match time; swap execution reads it back from here rather than
// recomputing from the orders.
type AtomicSwap struct {
	ID              uuid.UUID
	SellOrderID     uuid.UUID
	BuyOrderID      uuid.UUID
	TonAmount       decimal.Decimal
	Rate            decimal.Decimal
	Status          SwapStatus
	ContractAddress string
	TransferTxHash  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
