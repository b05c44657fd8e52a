package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource is one external exchange-rate source. Sources are queried
// concurrently and individual failures are tolerated by the aggregator.
type RateSource interface {
	Name() string
	Rate(ctx context.Context, source, target string) (decimal.Decimal, error)
}

// DexQuote is the best available route for a swap.
type DexQuote struct {
	Provider     string
	PoolID       string
	Rate         decimal.Decimal
	OutputAmount decimal.Decimal
	Route        []string
}

// SwapRequest describes one DEX swap execution.
type SwapRequest struct {
	Provider       string
	PoolID         string
	SourceCurrency string
	TargetCurrency string
	Amount         decimal.Decimal
	MinOutput      decimal.Decimal
}

// SwapResult is the outcome of a successfully submitted swap.
type SwapResult struct {
	TxHash       string
	OutputAmount decimal.Decimal
	GasUsed      decimal.Decimal
}

// DexAggregator quotes and executes swaps across DEX pools. It must
// support a deterministic simulation mode for testing.
type DexAggregator interface {
	GetBestRate(ctx context.Context, source, target string, amount decimal.Decimal) (*DexQuote, error)
	ExecuteSwap(ctx context.Context, req SwapRequest) (*SwapResult, error)
}

// TxInfo is the confirmation status of an on-chain transaction.
type TxInfo struct {
	Confirmed bool
	Success   bool
	ExitCode  int
	Amount    decimal.Decimal
	From      string
	To        string
}

// Transfer is one incoming transfer observed on a watched address.
type Transfer struct {
	TxHash        string
	From          string
	To            string
	Amount        decimal.Decimal
	Confirmations int
	ObservedAt    time.Time
}

// BlockchainClient is the opaque transaction submission/query service.
// Payload encoding lives behind this interface, not in the core.
type BlockchainClient interface {
	SendTransaction(ctx context.Context, toAddress string, amount decimal.Decimal, memo string) (string, error)
	GetTransaction(ctx context.Context, txHash string) (*TxInfo, error)
	AccountTransfers(ctx context.Context, address string, limit int) ([]Transfer, error)
}

// WalletResolver looks up a user's registered TON receiving address.
type WalletResolver interface {
	ReceivingAddress(ctx context.Context, userID string) (string, error)
}

// WebhookQueue queues fire-and-forget event deliveries to user-registered
// endpoints. Retry/backoff is the delivery collaborator's concern.
type WebhookQueue interface {
	QueueEvent(ctx context.Context, userID string, eventType string, payload any) error
}
