package provider_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarpay/starbridge/pkg/provider"
)

func TestClassifyDexError_Codes(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		code      provider.DexErrorCode
		retryable bool
	}{
		{"slippage", "swap failed: slippage tolerance exceeded", provider.DexSlippageExceeded, false},
		{"min output", "output below min output", provider.DexSlippageExceeded, false},
		{"liquidity", "insufficient liquidity in pool", provider.DexInsufficientLiquidity, false},
		{"funds", "insufficient balance for swap", provider.DexInsufficientFunds, false},
		{"reverted", "transaction reverted by vm", provider.DexTransactionReverted, false},
		{"deadline", "swap deadline passed", provider.DexDeadlineExceeded, false},
		{"context deadline", "context deadline exceeded", provider.DexTimeout, true},
		{"timeout", "request timed out", provider.DexTimeout, true},
		{"gas", "gas estimation failed", provider.DexGasEstimationFailed, true},
		{"unknown", "connection reset by peer", provider.DexNetworkError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := provider.ClassifyDexError(errors.New(tt.message))
			require.NotNil(t, de)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.retryable, de.Retryable())
		})
	}
}

func TestClassifyDexError_Nil(t *testing.T) {
	assert.Nil(t, provider.ClassifyDexError(nil))
}

func TestClassifyDexError_PassesThroughTypedErrors(t *testing.T) {
	original := &provider.DexError{Code: provider.DexSlippageExceeded, Err: errors.New("boom")}
	wrapped := fmt.Errorf("execute swap: %w", original)

	de := provider.ClassifyDexError(wrapped)
	assert.Same(t, original, de)
}

func TestAsDexError(t *testing.T) {
	de := &provider.DexError{Code: provider.DexTimeout, Err: errors.New("timed out")}
	wrapped := fmt.Errorf("attempt 2: %w", de)

	got, ok := provider.AsDexError(wrapped)
	require.True(t, ok)
	assert.Equal(t, provider.DexTimeout, got.Code)

	_, ok = provider.AsDexError(errors.New("plain"))
	assert.False(t, ok)
}

func TestDexError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	de := &provider.DexError{Code: provider.DexNetworkError, Err: cause}
	assert.True(t, errors.Is(de, cause))
}
