// Package payment ingests validated Stars payments and issues manual
// deposit intents feeding the conversion pipeline.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/repository"
)

// IngestCmd is an already-authenticated incoming Stars payment.
type IngestCmd struct {
	UserID            uuid.UUID
	ExternalPaymentID string
	StarsAmount       int64
	RawPayload        string
}

// Service persists payments and deposit intents.
type Service struct {
	uow    repository.UnitOfWork
	logger *slog.Logger
	now    func() time.Time
}

// New creates the payment service.
func New(uow repository.UnitOfWork, logger *slog.Logger) *Service {
	return &Service{uow: uow, logger: logger.With("service", "payment"), now: time.Now}
}

// Ingest records a received payment. Idempotent on ExternalPaymentID: a
// webhook redelivery returns the existing row.
func (s *Service) Ingest(ctx context.Context, cmd IngestCmd) (*domain.Payment, error) {
	if cmd.StarsAmount <= 0 {
		return nil, domain.NewValidationError("starsAmount", "must be positive")
	}
	if cmd.ExternalPaymentID == "" {
		return nil, domain.NewValidationError("externalPaymentId", "required")
	}

	if existing, err := s.uow.Payments().GetByExternalID(ctx, cmd.ExternalPaymentID); err == nil && existing != nil {
		s.logger.Debug("payment already ingested", "external_id", cmd.ExternalPaymentID)
		return existing, nil
	} else if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}

	p := &domain.Payment{
		ID:                uuid.New(),
		UserID:            cmd.UserID,
		ExternalPaymentID: cmd.ExternalPaymentID,
		StarsAmount:       cmd.StarsAmount,
		Status:            domain.PaymentReceived,
		RawPayload:        cmd.RawPayload,
		CreatedAt:         s.now(),
	}
	if err := s.uow.Payments().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}

	s.logger.Info("payment ingested",
		"payment_id", p.ID,
		"user_id", cmd.UserID,
		"stars", cmd.StarsAmount,
	)
	return p, nil
}

// IssueDeposit creates a manual deposit intent watching address for an
// expected amount until the deadline.
func (s *Service) IssueDeposit(ctx context.Context, userID uuid.UUID, address string, expected decimal.Decimal, ttl time.Duration, paymentID *uuid.UUID) (*domain.ManualDeposit, error) {
	if address == "" {
		return nil, domain.NewValidationError("depositAddress", "required")
	}
	if expected.LessThanOrEqual(decimal.Zero) {
		return nil, domain.NewValidationError("expectedAmount", "must be positive")
	}

	d := &domain.ManualDeposit{
		ID:             uuid.New(),
		UserID:         userID,
		PaymentID:      paymentID,
		DepositAddress: address,
		ExpectedAmount: expected,
		Status:         domain.DepositPending,
		ExpiresAt:      s.now().Add(ttl),
		CreatedAt:      s.now(),
	}
	if err := s.uow.Deposits().Create(ctx, d); err != nil {
		return nil, fmt.Errorf("persist deposit: %w", err)
	}
	s.logger.Info("manual deposit issued",
		"deposit_id", d.ID,
		"address", address,
		"expected", expected,
		"expires_at", d.ExpiresAt,
	)
	return d, nil
}
