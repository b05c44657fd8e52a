package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	tongoton "github.com/tonkeeper/tongo/ton"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
)

// Client talks to a TonAPI-compatible HTTP gateway backed by the platform
// hot wallet. Calls are throttled to stay within the gateway rate limit.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewClient creates a TON gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay: 250 * time.Millisecond, // ~4 RPS
	}
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	c.throttle()

	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExternalAPIError{Service: "ton-gateway", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &domain.ExternalAPIError{
			Service: "ton-gateway",
			Err:     fmt.Errorf("API error %d: %s", resp.StatusCode, string(data)),
		}
	}

	return data, nil
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

type transferResponse struct {
	TxHash string `json:"txHash"`
}

// SendTransaction submits a hot-wallet transfer and returns its hash.
func (c *Client) SendTransaction(ctx context.Context, toAddress string, amount decimal.Decimal, memo string) (string, error) {
	body := transferRequest{
		To:     NormalizeAddress(toAddress),
		Amount: amount.String(),
		Memo:   memo,
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/wallet/transfers", body)
	if err != nil {
		return "", err
	}

	var resp transferResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("gateway returned no transaction hash")
	}
	return resp.TxHash, nil
}

type txResponse struct {
	Confirmed bool   `json:"confirmed"`
	Success   bool   `json:"success"`
	ExitCode  int    `json:"exitCode"`
	Amount    string `json:"amount"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// GetTransaction returns the confirmation status of a transaction.
func (c *Client) GetTransaction(ctx context.Context, txHash string) (*provider.TxInfo, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/transactions/"+txHash, nil)
	if err != nil {
		return nil, err
	}

	var resp txResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	amount, err := decimal.NewFromString(resp.Amount)
	if err != nil {
		amount = decimal.Zero
	}

	return &provider.TxInfo{
		Confirmed: resp.Confirmed,
		Success:   resp.Success,
		ExitCode:  resp.ExitCode,
		Amount:    amount,
		From:      RawToFriendly(resp.From),
		To:        RawToFriendly(resp.To),
	}, nil
}

type transfersResponse struct {
	Transfers []struct {
		TxHash        string `json:"txHash"`
		From          string `json:"from"`
		To            string `json:"to"`
		Amount        string `json:"amount"`
		Confirmations int    `json:"confirmations"`
		ObservedAt    int64  `json:"observedAt"`
	} `json:"transfers"`
}

// AccountTransfers lists recent incoming transfers for an address.
func (c *Client) AccountTransfers(ctx context.Context, address string, limit int) ([]provider.Transfer, error) {
	path := fmt.Sprintf("/accounts/%s/transfers?limit=%d", NormalizeAddress(address), limit)
	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp transfersResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	transfers := make([]provider.Transfer, 0, len(resp.Transfers))
	for _, t := range resp.Transfers {
		amount, err := decimal.NewFromString(t.Amount)
		if err != nil {
			continue
		}
		transfers = append(transfers, provider.Transfer{
			TxHash:        t.TxHash,
			From:          RawToFriendly(t.From),
			To:            RawToFriendly(t.To),
			Amount:        amount,
			Confirmations: t.Confirmations,
			ObservedAt:    time.Unix(t.ObservedAt, 0).UTC(),
		})
	}
	return transfers, nil
}

// NanoToTON converts nanoTON to TON.
func NanoToTON(nano int64) decimal.Decimal {
	return decimal.New(nano, -9)
}

// RawToFriendly converts a raw address (0:...) to friendly format
// (UQ.../EQ...). Unparseable input passes through unchanged.
func RawToFriendly(raw string) string {
	if raw == "" {
		return ""
	}
	acc, err := tongoton.ParseAccountID(raw)
	if err != nil {
		return raw
	}
	return acc.ToHuman(true, false)
}

// NormalizeAddress converts any address format to raw (0:...).
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}
	acc, err := tongoton.ParseAccountID(addr)
	if err != nil {
		return addr
	}
	return acc.String()
}

var _ provider.BlockchainClient = (*Client)(nil)
