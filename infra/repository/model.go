package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the payments table row.
type Payment struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID `gorm:"type:uuid;index;not null"`
	ExternalPaymentID string    `gorm:"uniqueIndex;size:128;not null"`
	StarsAmount       int64     `gorm:"not null"`
	Status            string    `gorm:"type:varchar(32);not null;default:'pending';index"`
	RawPayload        string    `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Payment) TableName() string { return "payments" }

// Conversion is the conversions table row. PaymentIDs is a JSON array of
// payment UUIDs; FeeBreakdown is the JSON fee snapshot.
type Conversion struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID        `gorm:"type:uuid;index;not null"`
	PaymentIDs      string           `gorm:"type:jsonb;column:payment_ids"`
	SourceCurrency  string           `gorm:"type:varchar(8);not null"`
	TargetCurrency  string           `gorm:"type:varchar(8);not null"`
	SourceAmount    int64            `gorm:"not null"`
	TargetAmount    *decimal.Decimal `gorm:"type:decimal(30,18)"`
	ExchangeRate    *decimal.Decimal `gorm:"type:decimal(30,18)"`
	RateLockedUntil *time.Time

	DexPoolID   string `gorm:"type:varchar(128)"`
	DexProvider string `gorm:"type:varchar(64)"`
	DexTxHash   string `gorm:"type:varchar(128)"`
	TonTxHash   string `gorm:"type:varchar(128);index"`

	Status                string          `gorm:"type:varchar(32);not null;default:'pending';index"`
	FeeBreakdown          string          `gorm:"type:jsonb"`
	PlatformFeeAmount     decimal.Decimal `gorm:"type:decimal(30,18)"`
	PlatformFeePercentage decimal.Decimal `gorm:"type:decimal(10,6)"`

	SettlementStatus string     `gorm:"type:varchar(32);not null;default:'pending';index"`
	SettlementID     *uuid.UUID `gorm:"type:uuid"`

	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Conversion) TableName() string { return "conversions" }

// StarsOrder is the stars_orders table row.
type StarsOrder struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID       `gorm:"type:uuid;index;not null"`
	Type           string          `gorm:"type:varchar(8);not null;index"`
	StarsAmount    int64           `gorm:"not null;default:0"`
	TonAmount      decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0"`
	Rate           decimal.Decimal `gorm:"type:decimal(30,18);not null"`
	Status         string          `gorm:"type:varchar(32);not null;default:'open';index"`
	LockedUntil    *time.Time
	CounterOrderID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt      time.Time  `gorm:"index"`
	UpdatedAt      time.Time
}

func (StarsOrder) TableName() string { return "stars_orders" }

// AtomicSwap is the atomic_swaps table row.
type AtomicSwap struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SellOrderID     uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	BuyOrderID      uuid.UUID       `gorm:"type:uuid;index;not null"`
	TonAmount       decimal.Decimal `gorm:"type:decimal(30,18);not null"`
	Rate            decimal.Decimal `gorm:"type:decimal(30,18);not null"`
	Status          string          `gorm:"type:varchar(32);not null;default:'pending';index"`
	ContractAddress string          `gorm:"type:varchar(128)"`
	TransferTxHash  string          `gorm:"type:varchar(128)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (AtomicSwap) TableName() string { return "atomic_swaps" }

// PlatformFee is the platform_fees table row.
type PlatformFee struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PaymentID        *uuid.UUID      `gorm:"type:uuid;index"`
	ConversionID     *uuid.UUID      `gorm:"type:uuid;index"`
	UserID           uuid.UUID       `gorm:"type:uuid;index;not null"`
	FeePercentage    decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	FeeAmountStars   decimal.Decimal `gorm:"type:decimal(30,18);not null"`
	FeeAmountTon     decimal.Decimal `gorm:"type:decimal(30,18)"`
	FeeAmountUsd     decimal.Decimal `gorm:"type:decimal(30,18)"`
	Status           string          `gorm:"type:varchar(32);not null;default:'pending';index"`
	Collectible      bool            `gorm:"not null;default:false;index"`
	CollectionTxHash string          `gorm:"type:varchar(128)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (PlatformFee) TableName() string { return "platform_fees" }

// Settlement is the settlements table row.
type Settlement struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	ConversionID  uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	FiatAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	FiatCurrency  string          `gorm:"type:varchar(8);not null"`
	Status        string          `gorm:"type:varchar(32);not null;default:'pending';index"`
	TransactionID string          `gorm:"type:varchar(128)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Settlement) TableName() string { return "settlements" }

// ManualDeposit is the manual_deposits table row.
type ManualDeposit struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID       `gorm:"type:uuid;index;not null"`
	PaymentID        *uuid.UUID      `gorm:"type:uuid"`
	ConversionID     *uuid.UUID      `gorm:"type:uuid"`
	DepositAddress   string          `gorm:"type:varchar(128);not null;index"`
	ExpectedAmount   decimal.Decimal `gorm:"type:decimal(30,18);not null"`
	ReceivedAmount   decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0"`
	TxHash           string          `gorm:"type:varchar(128)"`
	Confirmations    int             `gorm:"not null;default:0"`
	MinConfirmations *int
	Status           string `gorm:"type:varchar(32);not null;default:'pending';index"`
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ManualDeposit) TableName() string { return "manual_deposits" }

// PlatformConfig is the platform_config table row. Exactly one row is
// active at a time; updates are admin-managed out of scope.
type PlatformConfig struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Version              int             `gorm:"not null;default:1"`
	PlatformFeePct       decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	DexFeePct            decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	NetworkFeePct        decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	MinConversionStars   int64           `gorm:"not null;default:0"`
	SettlementTonUsdRate decimal.Decimal `gorm:"type:decimal(20,8)"`
	SettlementCurrency   string          `gorm:"type:varchar(8);default:'USD'"`
	Active               bool            `gorm:"not null;default:false;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (PlatformConfig) TableName() string { return "platform_config" }
