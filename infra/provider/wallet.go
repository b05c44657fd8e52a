package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
)

// HTTPWalletResolver looks up receiving addresses in the wallet registry
// service.
type HTTPWalletResolver struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPWalletResolver creates a wallet registry client.
func NewHTTPWalletResolver(baseURL, apiKey string, timeout time.Duration) *HTTPWalletResolver {
	return &HTTPWalletResolver{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ReceivingAddress returns the TON address registered for the user.
func (r *HTTPWalletResolver) ReceivingAddress(ctx context.Context, userID string) (string, error) {
	url := fmt.Sprintf("%s/users/%s/wallet", r.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &domain.ExternalAPIError{Service: "wallet-registry", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &domain.ExternalAPIError{
			Service: "wallet-registry",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Address == "" {
		return "", fmt.Errorf("no wallet registered for user %s", userID)
	}
	return parsed.Address, nil
}

// StaticWalletResolver serves addresses from an in-memory map. Used in
// simulation mode and tests.
type StaticWalletResolver struct {
	mu        sync.RWMutex
	addresses map[string]string
}

// NewStaticWalletResolver creates a resolver seeded with the given
// userID→address entries.
func NewStaticWalletResolver(addresses map[string]string) *StaticWalletResolver {
	if addresses == nil {
		addresses = make(map[string]string)
	}
	return &StaticWalletResolver{addresses: addresses}
}

// SetAddress registers or replaces a user's receiving address.
func (r *StaticWalletResolver) SetAddress(userID, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses[userID] = address
}

func (r *StaticWalletResolver) ReceivingAddress(ctx context.Context, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.addresses[userID]
	if !ok {
		return "", fmt.Errorf("no wallet registered for user %s", userID)
	}
	return addr, nil
}

var (
	_ provider.WalletResolver = (*HTTPWalletResolver)(nil)
	_ provider.WalletResolver = (*StaticWalletResolver)(nil)
)
