package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
)

// HTTPRateSource fetches a single pair rate from a JSON price API. One
// instance per upstream source; the aggregator queries them concurrently.
type HTTPRateSource struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

type rateResponse struct {
	Result string `json:"result"`
	Rate   string `json:"rate"`
	Error  string `json:"error,omitempty"`
}

// NewHTTPRateSource creates a rate source client for one upstream API.
func NewHTTPRateSource(name, baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPRateSource {
	return &HTTPRateSource{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("rate_source", name),
	}
}

func (s *HTTPRateSource) Name() string { return s.name }

// Rate fetches the current source→target rate.
func (s *HTTPRateSource) Rate(ctx context.Context, source, target string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/rate?source=%s&target=%s", s.baseURL, source, target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, &domain.ExternalAPIError{Service: s.name, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, &domain.ExternalAPIError{
			Service: s.name,
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return decimal.Zero, &domain.ExternalAPIError{
			Service: s.name,
			Err:     fmt.Errorf("upstream error: %s", parsed.Error),
		}
	}

	rate, err := decimal.NewFromString(parsed.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", parsed.Rate, err)
	}
	return rate, nil
}

// SimulatedRateSource serves fixed rates with a small per-source offset so
// aggregation across several instances stays deterministic but non-trivial.
type SimulatedRateSource struct {
	name   string
	offset decimal.Decimal
	rates  map[string]decimal.Decimal
}

// NewSimulatedRateSource creates a deterministic rate source. offsetBps
// shifts every served rate by that many basis points.
func NewSimulatedRateSource(name string, offsetBps int64) *SimulatedRateSource {
	return &SimulatedRateSource{
		name:   name,
		offset: decimal.NewFromInt(offsetBps).Div(decimal.NewFromInt(10000)),
		rates: map[string]decimal.Decimal{
			"XTR:TON": decimal.RequireFromString("0.00015"),
			"TON:XTR": decimal.RequireFromString("6666.67"),
			"TON:USD": decimal.RequireFromString("5.40"),
		},
	}
}

func (s *SimulatedRateSource) Name() string { return s.name }

func (s *SimulatedRateSource) Rate(ctx context.Context, source, target string) (decimal.Decimal, error) {
	base, ok := s.rates[source+":"+target]
	if !ok {
		return decimal.Zero, &domain.ExternalAPIError{
			Service: s.name,
			Err:     fmt.Errorf("unsupported pair %s/%s", source, target),
		}
	}
	return base.Mul(decimal.NewFromInt(1).Add(s.offset)), nil
}

var (
	_ provider.RateSource = (*HTTPRateSource)(nil)
	_ provider.RateSource = (*SimulatedRateSource)(nil)
)
