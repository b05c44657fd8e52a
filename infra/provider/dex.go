package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/provider"
)

// HTTPDexAggregator talks to an external DEX aggregation API. Quote and
// swap failures come back as plain errors; callers classify them.
type HTTPDexAggregator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPDexAggregator creates a DEX aggregator API client.
func NewHTTPDexAggregator(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPDexAggregator {
	return &HTTPDexAggregator{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("provider", "dex"),
	}
}

type dexQuoteResponse struct {
	Provider     string   `json:"provider"`
	PoolID       string   `json:"poolId"`
	Rate         string   `json:"rate"`
	OutputAmount string   `json:"outputAmount"`
	Route        []string `json:"route"`
	Error        string   `json:"error,omitempty"`
}

type dexSwapResponse struct {
	TxHash       string `json:"txHash"`
	OutputAmount string `json:"outputAmount"`
	GasUsed      string `json:"gasUsed"`
	Error        string `json:"error,omitempty"`
}

// GetBestRate asks the aggregator for the best route for the given size.
func (d *HTTPDexAggregator) GetBestRate(ctx context.Context, source, target string, amount decimal.Decimal) (*provider.DexQuote, error) {
	url := fmt.Sprintf("%s/quote?source=%s&target=%s&amount=%s", d.baseURL, source, target, amount.String())

	var parsed dexQuoteResponse
	if err := d.getJSON(ctx, url, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("dex quote: %s", parsed.Error)
	}

	rate, err := decimal.NewFromString(parsed.Rate)
	if err != nil {
		return nil, fmt.Errorf("parse quote rate %q: %w", parsed.Rate, err)
	}
	output, err := decimal.NewFromString(parsed.OutputAmount)
	if err != nil {
		return nil, fmt.Errorf("parse quote output %q: %w", parsed.OutputAmount, err)
	}

	return &provider.DexQuote{
		Provider:     parsed.Provider,
		PoolID:       parsed.PoolID,
		Rate:         rate,
		OutputAmount: output,
		Route:        parsed.Route,
	}, nil
}

// ExecuteSwap submits the swap against the quoted pool.
func (d *HTTPDexAggregator) ExecuteSwap(ctx context.Context, req provider.SwapRequest) (*provider.SwapResult, error) {
	body, err := json.Marshal(map[string]string{
		"provider":  req.Provider,
		"poolId":    req.PoolID,
		"source":    req.SourceCurrency,
		"target":    req.TargetCurrency,
		"amount":    req.Amount.String(),
		"minOutput": req.MinOutput.String(),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dex swap request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var parsed dexSwapResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
			return nil, fmt.Errorf("dex swap: %s", parsed.Error)
		}
		return nil, fmt.Errorf("dex swap: status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("dex swap: %s", parsed.Error)
	}

	output, err := decimal.NewFromString(parsed.OutputAmount)
	if err != nil {
		return nil, fmt.Errorf("parse swap output %q: %w", parsed.OutputAmount, err)
	}
	gas, err := decimal.NewFromString(parsed.GasUsed)
	if err != nil {
		gas = decimal.Zero
	}

	return &provider.SwapResult{
		TxHash:       parsed.TxHash,
		OutputAmount: output,
		GasUsed:      gas,
	}, nil
}

func (d *HTTPDexAggregator) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dex request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dex request: status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SimulatedDexAggregator quotes a fixed rate with a fixed slippage factor
// applied at execution time. When the slipped output violates MinOutput
// the swap fails the same way a real pool would.
type SimulatedDexAggregator struct {
	rate     decimal.Decimal
	slippage decimal.Decimal

	// FailWith, when set, makes every ExecuteSwap return that error.
	mu       sync.Mutex
	failWith error
	executed int
}

// NewSimulatedDexAggregator creates a deterministic aggregator. slippagePct
// is the fraction shaved off the quoted output at execution, e.g. 0.005.
func NewSimulatedDexAggregator(rate, slippagePct decimal.Decimal) *SimulatedDexAggregator {
	return &SimulatedDexAggregator{rate: rate, slippage: slippagePct}
}

// FailNextSwaps makes subsequent ExecuteSwap calls return err. Pass nil to
// restore normal behavior.
func (d *SimulatedDexAggregator) FailNextSwaps(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWith = err
}

// ExecutedSwaps reports how many swaps ran, for test assertions.
func (d *SimulatedDexAggregator) ExecutedSwaps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.executed
}

func (d *SimulatedDexAggregator) GetBestRate(ctx context.Context, source, target string, amount decimal.Decimal) (*provider.DexQuote, error) {
	return &provider.DexQuote{
		Provider:     "simulated",
		PoolID:       fmt.Sprintf("sim-pool-%s-%s", source, target),
		Rate:         d.rate,
		OutputAmount: amount.Mul(d.rate),
		Route:        []string{source, target},
	}, nil
}

func (d *SimulatedDexAggregator) ExecuteSwap(ctx context.Context, req provider.SwapRequest) (*provider.SwapResult, error) {
	d.mu.Lock()
	d.executed++
	failWith := d.failWith
	d.mu.Unlock()
	if failWith != nil {
		return nil, failWith
	}

	output := req.Amount.Mul(d.rate).Mul(decimal.NewFromInt(1).Sub(d.slippage))
	if output.LessThan(req.MinOutput) {
		return nil, fmt.Errorf("slippage tolerance exceeded: output %s below minimum %s",
			output.String(), req.MinOutput.String())
	}

	return &provider.SwapResult{
		TxHash:       "sim-dex-" + uuid.NewString(),
		OutputAmount: output,
		GasUsed:      decimal.RequireFromString("0.05"),
	}, nil
}

var (
	_ provider.DexAggregator = (*HTTPDexAggregator)(nil)
	_ provider.DexAggregator = (*SimulatedDexAggregator)(nil)
)
