package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlatformConfig is the single active, admin-managed configuration record.
// Percentages are fractions (0.015 = 1.5%).
type PlatformConfig struct {
	ID                   uuid.UUID
	Version              int
	PlatformFeePct       decimal.Decimal
	DexFeePct            decimal.Decimal
	NetworkFeePct        decimal.Decimal
	MinConversionStars   int64
	SettlementTonUsdRate decimal.Decimal
	SettlementCurrency   string
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
