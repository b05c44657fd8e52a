package ton

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
)

// Simulated is a deterministic in-memory blockchain. Sent transactions
// confirm successfully on the next lookup; test hooks can force exit
// codes and seed incoming transfers.
type Simulated struct {
	mu        sync.Mutex
	txs       map[string]*provider.TxInfo
	transfers map[string][]provider.Transfer
	seq       int

	// nextExitCode, when nonzero, makes the next sent transaction fail
	// on-chain with that code.
	nextExitCode int
}

// NewSimulated creates an empty simulated chain.
func NewSimulated() *Simulated {
	return &Simulated{
		txs:       make(map[string]*provider.TxInfo),
		transfers: make(map[string][]provider.Transfer),
	}
}

// FailNextTransaction makes the next submitted transaction confirm as
// failed with the given exit code.
func (s *Simulated) FailNextTransaction(exitCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextExitCode = exitCode
}

// SeedTransfer records an incoming transfer on a watched address.
func (s *Simulated) SeedTransfer(address string, amount decimal.Decimal, confirmations int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	hash := fmt.Sprintf("sim-transfer-%d", s.seq)
	s.transfers[address] = append(s.transfers[address], provider.Transfer{
		TxHash:        hash,
		From:          "sim-sender",
		To:            address,
		Amount:        amount,
		Confirmations: confirmations,
		ObservedAt:    time.Now().UTC(),
	})
	return hash
}

// SetConfirmations updates the confirmation count of a seeded transfer.
func (s *Simulated) SetConfirmations(address, txHash string, confirmations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transfers[address] {
		if s.transfers[address][i].TxHash == txHash {
			s.transfers[address][i].Confirmations = confirmations
		}
	}
}

func (s *Simulated) SendTransaction(ctx context.Context, toAddress string, amount decimal.Decimal, memo string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := "sim-tx-" + uuid.NewString()
	exitCode := s.nextExitCode
	s.nextExitCode = 0

	s.txs[hash] = &provider.TxInfo{
		Confirmed: true,
		Success:   exitCode == 0,
		ExitCode:  exitCode,
		Amount:    amount,
		From:      "sim-hot-wallet",
		To:        toAddress,
	}
	return hash, nil
}

func (s *Simulated) GetTransaction(ctx context.Context, txHash string) (*provider.TxInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.txs[txHash]
	if !ok {
		return nil, &domain.ExternalAPIError{
			Service: "ton-simulated",
			Err:     fmt.Errorf("transaction %s not found", txHash),
		}
	}
	copied := *info
	return &copied, nil
}

func (s *Simulated) AccountTransfers(ctx context.Context, address string, limit int) ([]provider.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.transfers[address]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]provider.Transfer, len(all))
	copy(out, all)
	return out, nil
}

var _ provider.BlockchainClient = (*Simulated)(nil)
