package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus tracks a fiat settlement record.
type SettlementStatus string

const (
	SettlementPending         SettlementStatus = "pending"
	SettlementProcessing      SettlementStatus = "processing"
	SettlementCompletedStatus SettlementStatus = "completed"
)

// Settlement closes out one completed conversion in fiat. Exactly one
// settlement exists per conversion; the conversion's SettlementID is set
// once when the settlement row is created.
type Settlement struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ConversionID  uuid.UUID
	FiatAmount    decimal.Decimal
	FiatCurrency  string
	Status        SettlementStatus
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
