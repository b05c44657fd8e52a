package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeStatus tracks whether a platform fee has been swept on-chain.
type FeeStatus string

const (
	FeePending   FeeStatus = "pending"
	FeeCollected FeeStatus = "collected"
)

// PlatformFee is one ledger entry of platform revenue, recorded when a
// conversion is created and locked to the config snapshot of that moment.
// At least one of PaymentID/ConversionID is set.
type PlatformFee struct {
	ID               uuid.UUID
	PaymentID        *uuid.UUID
	ConversionID     *uuid.UUID
	UserID           uuid.UUID
	FeePercentage    decimal.Decimal
	FeeAmountStars   decimal.Decimal
	FeeAmountTon     decimal.Decimal
	FeeAmountUsd     decimal.Decimal
	Status           FeeStatus
	// Collectible flips true once the conversion confirms on-chain; the
	// collection flow only sweeps collectible entries.
	Collectible      bool
	CollectionTxHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
