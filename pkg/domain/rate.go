package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceRate is one external source's contribution to an aggregated rate.
type SourceRate struct {
	Name   string
	Rate   decimal.Decimal
	Weight decimal.Decimal
}

// AggregatedRate is the confidence-weighted blend of all sources that
// answered for a currency pair.
type AggregatedRate struct {
	SourceCurrency string
	TargetCurrency string
	Rate           decimal.Decimal
	AverageRate    decimal.Decimal
	BestRate       decimal.Decimal
	Sources        []SourceRate
	Timestamp      time.Time
}
