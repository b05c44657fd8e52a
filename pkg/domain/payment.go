package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks a Stars payment through the conversion pipeline.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentReceived   PaymentStatus = "received"
	PaymentConverting PaymentStatus = "converting"
	PaymentConverted  PaymentStatus = "converted"
	PaymentSettled    PaymentStatus = "settled"
	PaymentFailed     PaymentStatus = "failed"
)

// Payment is a received Telegram Stars payment. StarsAmount is immutable
// once the payment reaches the received state.
type Payment struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	ExternalPaymentID string
	StarsAmount       int64
	Status            PaymentStatus
	RawPayload        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Convertible reports whether the payment can be attached to a new
// conversion. A payment already referenced by a conversion is in
// converting state and must not be referenced twice.
func (p *Payment) Convertible() bool {
	return p.Status == PaymentReceived
}
