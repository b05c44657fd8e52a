package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
)

// TxMonitor polls outstanding on-chain transaction hashes and drives
// conversion state transitions. It only ever looks at phase2_committed
// conversions with a recorded hash; transitions are status-guarded, so a
// racing deposit confirmation on the same conversion cannot conflict.
type TxMonitor struct {
	*Poller
	uow    repository.UnitOfWork
	chain  provider.BlockchainClient
	batch  int
	logger *slog.Logger
}

// NewTxMonitor creates the transaction monitor.
func NewTxMonitor(
	uow repository.UnitOfWork,
	chain provider.BlockchainClient,
	interval time.Duration,
	batch int,
	logger *slog.Logger,
) *TxMonitor {
	m := &TxMonitor{
		uow:    uow,
		chain:  chain,
		batch:  batch,
		logger: logger.With("monitor", "tx"),
	}
	m.Poller = NewPoller("tx", interval, logger, m.poll)
	return m
}

func (m *TxMonitor) poll(ctx context.Context) {
	convs, err := m.uow.Conversions().ListCommittedWithTxHash(ctx, m.batch)
	if err != nil {
		m.logger.Error("list committed conversions", "error", err)
		return
	}

	for _, conv := range convs {
		if err := m.check(ctx, conv); err != nil {
			m.logger.Error("check conversion", "conversion_id", conv.ID, "error", err)
		}
	}
}

func (m *TxMonitor) check(ctx context.Context, conv *domain.Conversion) error {
	info, err := m.chain.GetTransaction(ctx, conv.TonTxHash)
	if err != nil {
		return fmt.Errorf("query transaction %s: %w", conv.TonTxHash, err)
	}
	if !info.Confirmed {
		return nil
	}

	if !info.Success {
		msg := fmt.Sprintf("Transaction failed on-chain (exit code: %d)", info.ExitCode)
		ok, err := m.uow.Conversions().Transition(ctx, conv.ID,
			domain.ConversionPhase2Committed, domain.ConversionFailed,
			repository.ConversionUpdate{ErrorMessage: &msg})
		if err != nil {
			return err
		}
		if ok {
			m.logger.Warn("conversion failed on-chain",
				"conversion_id", conv.ID,
				"exit_code", info.ExitCode,
			)
		}
		return nil
	}

	// Confirmed and successful: complete the conversion, flag its fee as
	// collectible, and advance the referenced payments. The settlement
	// processor picks the conversion up from here.
	err = m.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		ok, err := uow.Conversions().Transition(ctx, conv.ID,
			domain.ConversionPhase2Committed, domain.ConversionCompleted,
			repository.ConversionUpdate{})
		if err != nil {
			return err
		}
		if !ok {
			// Someone else completed or failed it first; nothing to do.
			return nil
		}
		if err := uow.Fees().MarkCollectible(ctx, conv.ID); err != nil {
			return err
		}
		for _, pid := range conv.PaymentIDs {
			if _, err := uow.Payments().UpdateStatus(ctx, pid, domain.PaymentConverting, domain.PaymentConverted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("conversion confirmed on-chain", "conversion_id", conv.ID, "tx_hash", conv.TonTxHash)
	return nil
}
