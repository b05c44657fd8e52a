package provider

import (
	"errors"
	"fmt"
	"strings"
)

// DexErrorCode classifies DEX execution failures.
type DexErrorCode string

const (
	DexInsufficientLiquidity DexErrorCode = "INSUFFICIENT_LIQUIDITY"
	DexSlippageExceeded      DexErrorCode = "SLIPPAGE_EXCEEDED"
	DexInsufficientFunds     DexErrorCode = "INSUFFICIENT_FUNDS"
	DexTransactionReverted   DexErrorCode = "TRANSACTION_REVERTED"
	DexDeadlineExceeded      DexErrorCode = "DEADLINE_EXCEEDED"
	DexGasEstimationFailed   DexErrorCode = "GAS_ESTIMATION_FAILED"
	DexNetworkError          DexErrorCode = "NETWORK_ERROR"
	DexTimeout               DexErrorCode = "TIMEOUT"
)

// DexError is a typed DEX failure wrapping the raw collaborator error.
type DexError struct {
	Code DexErrorCode
	Err  error
}

func (e *DexError) Error() string {
	return fmt.Sprintf("dex %s: %v", e.Code, e.Err)
}

func (e *DexError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *DexError) Retryable() bool {
	switch e.Code {
	case DexNetworkError, DexTimeout, DexGasEstimationFailed:
		return true
	}
	return false
}

// AsDexError extracts a *DexError from an error chain.
func AsDexError(err error) (*DexError, bool) {
	var de *DexError
	ok := errors.As(err, &de)
	return de, ok
}

// classification patterns, checked in order against the lowercased raw
// message. Best effort: collaborators report failures as free text.
var dexPatterns = []struct {
	code     DexErrorCode
	keywords []string
}{
	{DexSlippageExceeded, []string{"slippage", "min output", "minimum output", "insufficient output"}},
	{DexInsufficientLiquidity, []string{"insufficient liquidity", "no liquidity", "liquidity too low"}},
	{DexInsufficientFunds, []string{"insufficient funds", "insufficient balance", "not enough"}},
	{DexTransactionReverted, []string{"reverted", "revert", "execution failed"}},
	{DexTimeout, []string{"timeout", "timed out", "context deadline exceeded"}},
	{DexDeadlineExceeded, []string{"deadline", "expired"}},
	{DexGasEstimationFailed, []string{"gas estimation", "estimate gas", "out of gas"}},
}

// ClassifyDexError wraps a raw DEX error into a *DexError. Unmatched
// messages default to NETWORK_ERROR. Already-typed errors pass through.
func ClassifyDexError(err error) *DexError {
	if err == nil {
		return nil
	}
	if de, ok := AsDexError(err); ok {
		return de
	}
	msg := strings.ToLower(err.Error())
	for _, p := range dexPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(msg, kw) {
				return &DexError{Code: p.code, Err: err}
			}
		}
	}
	return &DexError{Code: DexNetworkError, Err: err}
}
