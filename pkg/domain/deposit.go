package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositStatus lifecycle: pending → awaiting_confirmation → confirmed,
// or → expired when the deadline passes without sufficient funds.
type DepositStatus string

const (
	DepositPending              DepositStatus = "pending"
	DepositAwaitingConfirmation DepositStatus = "awaiting_confirmation"
	DepositConfirmedStatus      DepositStatus = "confirmed"
	DepositExpired              DepositStatus = "expired"
)

// ManualDeposit is a custodial-address deposit intent matched to incoming
// transfers by destination address. Repeated observations of the same
// transfer refresh Confirmations idempotently.
type ManualDeposit struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	PaymentID        *uuid.UUID
	ConversionID     *uuid.UUID
	DepositAddress   string
	ExpectedAmount   decimal.Decimal
	ReceivedAmount   decimal.Decimal
	TxHash           string
	Confirmations    int
	MinConfirmations *int
	Status           DepositStatus
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RequiredConfirmations resolves the per-deposit override against the
// service default.
func (d *ManualDeposit) RequiredConfirmations(defaultMin int) int {
	if d.MinConfirmations != nil {
		return *d.MinConfirmations
	}
	return defaultMin
}
