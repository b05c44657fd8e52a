package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is the marker interface for everything published on the bus.
type Event interface {
	Type() string
}

const (
	EventConversionCreated  = "conversion.created"
	EventDepositConfirmed   = "deposit.confirmed"
	EventSettlementComplete = "settlement.completed"
)

// ConversionCreated hands a freshly accepted conversion to the background
// execution worker. The creating request has already returned by the time
// this is consumed.
type ConversionCreated struct {
	ConversionID uuid.UUID `json:"conversionId"`
	UserID       uuid.UUID `json:"userId"`
	OccurredAt   time.Time `json:"occurredAt"`
}

func (ConversionCreated) Type() string { return EventConversionCreated }

// DepositConfirmed is emitted when a manual deposit crosses its
// confirmation threshold. Delivered to the user's webhook endpoint.
type DepositConfirmed struct {
	DepositID  uuid.UUID       `json:"depositId"`
	UserID     uuid.UUID       `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
	TxHash     string          `json:"txHash"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func (DepositConfirmed) Type() string { return EventDepositConfirmed }

// SettlementCompleted is emitted when a settlement is finalized.
type SettlementCompleted struct {
	SettlementID uuid.UUID       `json:"settlementId"`
	ConversionID uuid.UUID       `json:"conversionId"`
	UserID       uuid.UUID       `json:"userId"`
	FiatAmount   decimal.Decimal `json:"fiatAmount"`
	FiatCurrency string          `json:"fiatCurrency"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

func (SettlementCompleted) Type() string { return EventSettlementComplete }
