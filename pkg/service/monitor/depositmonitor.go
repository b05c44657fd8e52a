package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/provider"
	"github.com/stellarpay/starbridge/pkg/repository"
)

// DepositMonitor watches custodial addresses for incoming transfers and
// confirms manual deposits. Observations are idempotent: re-seeing the
// same transfer refreshes the confirmation count, it never appends.
type DepositMonitor struct {
	*Poller
	uow      repository.UnitOfWork
	chain    provider.BlockchainClient
	webhooks provider.WebhookQueue
	minConf  int
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

// NewDepositMonitor creates the deposit monitor. minConf is the service
// default confirmation threshold; deposits may carry their own override.
func NewDepositMonitor(
	uow repository.UnitOfWork,
	chain provider.BlockchainClient,
	webhooks provider.WebhookQueue,
	interval time.Duration,
	minConf int,
	batch int,
	logger *slog.Logger,
) *DepositMonitor {
	m := &DepositMonitor{
		uow:      uow,
		chain:    chain,
		webhooks: webhooks,
		minConf:  minConf,
		batch:    batch,
		logger:   logger.With("monitor", "deposit"),
		now:      time.Now,
	}
	m.Poller = NewPoller("deposit", interval, logger, m.poll)
	return m
}

func (m *DepositMonitor) poll(ctx context.Context) {
	addresses, err := m.uow.Deposits().WatchedAddresses(ctx)
	if err != nil {
		m.logger.Error("list watched addresses", "error", err)
		return
	}

	for _, addr := range addresses {
		transfers, err := m.chain.AccountTransfers(ctx, addr, m.batch)
		if err != nil {
			m.logger.Warn("query address transfers", "address", addr, "error", err)
			continue
		}
		for _, tr := range transfers {
			if err := m.Observe(ctx, tr); err != nil {
				m.logger.Error("process transfer", "tx_hash", tr.TxHash, "error", err)
			}
		}
	}
}

// Observe processes one incoming transfer against the most recent open
// deposit on its destination address.
func (m *DepositMonitor) Observe(ctx context.Context, tr provider.Transfer) error {
	dep, err := m.uow.Deposits().LatestOpenByAddress(ctx, tr.To)
	if err != nil {
		if errors.Is(err, domain.ErrDepositNotFound) {
			return nil
		}
		return err
	}

	if err := m.uow.Deposits().RecordObservation(ctx, dep.ID, tr.Amount, tr.TxHash, tr.Confirmations); err != nil {
		return fmt.Errorf("record observation: %w", err)
	}

	if dep.Status == domain.DepositPending {
		if _, err := m.uow.Deposits().UpdateStatus(ctx, dep.ID,
			[]domain.DepositStatus{domain.DepositPending},
			domain.DepositAwaitingConfirmation); err != nil {
			return err
		}
	}

	if tr.Confirmations < dep.RequiredConfirmations(m.minConf) {
		m.logger.Debug("deposit below confirmation threshold",
			"deposit_id", dep.ID,
			"confirmations", tr.Confirmations,
			"required", dep.RequiredConfirmations(m.minConf),
		)
		return nil
	}

	return m.confirm(ctx, dep, tr)
}

func (m *DepositMonitor) confirm(ctx context.Context, dep *domain.ManualDeposit, tr provider.Transfer) error {
	ok, err := m.uow.Deposits().UpdateStatus(ctx, dep.ID,
		[]domain.DepositStatus{domain.DepositPending, domain.DepositAwaitingConfirmation},
		domain.DepositConfirmedStatus)
	if err != nil {
		return err
	}
	if !ok {
		// Already confirmed or expired by an earlier observation.
		return nil
	}

	if dep.PaymentID != nil {
		if _, err := m.uow.Payments().UpdateStatus(ctx, *dep.PaymentID, domain.PaymentReceived, domain.PaymentConverting); err != nil {
			return err
		}
	}
	if dep.ConversionID != nil {
		readiness := domain.SettlementReadinessReady
		if _, err := m.uow.Conversions().UpdateSettlementReadiness(ctx, *dep.ConversionID,
			[]domain.SettlementReadiness{domain.SettlementReadinessPending}, readiness); err != nil {
			return err
		}
		if _, err := m.uow.Conversions().Transition(ctx, *dep.ConversionID,
			domain.ConversionPhase2Committed, domain.ConversionPhase2Committed,
			repository.ConversionUpdate{TonTxHash: &tr.TxHash}); err != nil {
			return err
		}
	}

	m.logger.Info("deposit confirmed",
		"deposit_id", dep.ID,
		"amount", tr.Amount,
		"confirmations", tr.Confirmations,
	)

	event := domain.DepositConfirmed{
		DepositID:  dep.ID,
		UserID:     dep.UserID,
		Amount:     tr.Amount,
		TxHash:     tr.TxHash,
		OccurredAt: m.now(),
	}
	if err := m.webhooks.QueueEvent(ctx, dep.UserID.String(), event.Type(), event); err != nil {
		// Delivery is fire-and-forget; a queueing failure must not undo
		// the confirmation.
		m.logger.Warn("queue deposit.confirmed webhook", "deposit_id", dep.ID, "error", err)
	}
	return nil
}

// ExpireOverdue marks non-terminal deposits past their deadline with
// insufficient funds as expired. Run on its own timer.
func (m *DepositMonitor) ExpireOverdue(ctx context.Context) {
	deps, err := m.uow.Deposits().ListExpirable(ctx, m.now(), m.batch)
	if err != nil {
		m.logger.Error("list expirable deposits", "error", err)
		return
	}
	for _, dep := range deps {
		if dep.ReceivedAmount.GreaterThanOrEqual(dep.ExpectedAmount) {
			continue
		}
		ok, err := m.uow.Deposits().UpdateStatus(ctx, dep.ID,
			[]domain.DepositStatus{domain.DepositPending, domain.DepositAwaitingConfirmation},
			domain.DepositExpired)
		if err != nil {
			m.logger.Error("expire deposit", "deposit_id", dep.ID, "error", err)
			continue
		}
		if ok {
			m.logger.Info("deposit expired", "deposit_id", dep.ID, "received", dep.ReceivedAmount)
		}
	}
}
