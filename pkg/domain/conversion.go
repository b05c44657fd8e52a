package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConversionStatus is the conversion state machine state.
//
// pending → rate_locked → phase1_prepared → phase2_committed → completed
// with failed reachable from any non-terminal state.
type ConversionStatus string

const (
	ConversionPending         ConversionStatus = "pending"
	ConversionRateLocked      ConversionStatus = "rate_locked"
	ConversionPhase1Prepared  ConversionStatus = "phase1_prepared"
	ConversionPhase2Committed ConversionStatus = "phase2_committed"
	ConversionCompleted       ConversionStatus = "completed"
	ConversionFailed          ConversionStatus = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s ConversionStatus) Terminal() bool {
	return s == ConversionCompleted || s == ConversionFailed
}

// CanTransitionTo encodes the legal forward edges of the state machine.
func (s ConversionStatus) CanTransitionTo(next ConversionStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == ConversionFailed {
		return true
	}
	switch s {
	case ConversionPending:
		return next == ConversionRateLocked || next == ConversionPhase1Prepared
	case ConversionRateLocked:
		return next == ConversionPhase1Prepared
	case ConversionPhase1Prepared:
		return next == ConversionPhase2Committed
	case ConversionPhase2Committed:
		return next == ConversionCompleted
	}
	return false
}

// SettlementReadiness tracks how far a conversion has moved through fiat
// settlement, independently of the on-chain state machine.
type SettlementReadiness string

const (
	SettlementReadinessPending    SettlementReadiness = "pending"
	SettlementReadinessReady      SettlementReadiness = "ready"
	SettlementReadinessProcessing SettlementReadiness = "processing"
	SettlementReadinessSettled    SettlementReadiness = "settled"
)

// FeeBreakdown is the fee snapshot taken when a conversion is quoted.
// All components are denominated in the source currency (stars).
type FeeBreakdown struct {
	Platform           decimal.Decimal `json:"platform"`
	Dex                decimal.Decimal `json:"dex"`
	Network            decimal.Decimal `json:"network"`
	Total              decimal.Decimal `json:"total"`
	PlatformPercentage decimal.Decimal `json:"platformPercentage"`
}

// Conversion is one batch of payments being converted to the target
// currency. SourceAmount equals the stars sum of the referenced payments
// at creation time and never changes afterwards.
type Conversion struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	PaymentIDs      []uuid.UUID
	SourceCurrency  string
	TargetCurrency  string
	SourceAmount    int64
	TargetAmount    *decimal.Decimal
	ExchangeRate    *decimal.Decimal
	RateLockedUntil *time.Time

	DexPoolID   string
	DexProvider string
	DexTxHash   string
	TonTxHash   string

	Status                ConversionStatus
	Fees                  FeeBreakdown
	PlatformFeeAmount     decimal.Decimal
	PlatformFeePercentage decimal.Decimal

	SettlementStatus SettlementReadiness
	SettlementID     *uuid.UUID

	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RateLockValid reports whether a previously locked rate may still be
// trusted. Expired locks are not purged by any timer; consumers must
// check before using the locked rate.
func (c *Conversion) RateLockValid(now time.Time) bool {
	return c.RateLockedUntil != nil && now.Before(*c.RateLockedUntil)
}

// Quote is the result of pricing a conversion. It carries no identity and
// mutates no persisted state.
type Quote struct {
	SourceAmount   int64
	SourceCurrency string
	TargetCurrency string
	ExchangeRate   decimal.Decimal
	Fees           FeeBreakdown
	TargetAmount   decimal.Decimal
	ValidUntil     time.Time
}
