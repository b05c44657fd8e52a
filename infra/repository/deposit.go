package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
)

var openDepositStatuses = []string{
	string(domain.DepositPending),
	string(domain.DepositAwaitingConfirmation),
}

type depositRepository struct {
	db *gorm.DB
}

// NewDepositRepository creates the gorm-backed manual deposit repository.
func NewDepositRepository(db *gorm.DB) *depositRepository {
	return &depositRepository{db: db}
}

func (r *depositRepository) Create(ctx context.Context, d *domain.ManualDeposit) error {
	return r.db.WithContext(ctx).Create(depositFromDomain(d)).Error
}

func (r *depositRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ManualDeposit, error) {
	var m ManualDeposit
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, err
	}
	return depositToDomain(&m), nil
}

func (r *depositRepository) LatestOpenByAddress(ctx context.Context, address string) (*domain.ManualDeposit, error) {
	var m ManualDeposit
	err := r.db.WithContext(ctx).
		Where("deposit_address = ? AND status IN ?", address, openDepositStatuses).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, err
	}
	return depositToDomain(&m), nil
}

func (r *depositRepository) WatchedAddresses(ctx context.Context) ([]string, error) {
	var addresses []string
	err := r.db.WithContext(ctx).
		Model(&ManualDeposit{}).
		Distinct("deposit_address").
		Where("status IN ?", openDepositStatuses).
		Pluck("deposit_address", &addresses).Error
	return addresses, err
}

// RecordObservation is an idempotent upsert: the latest observation wins,
// nothing is appended.
func (r *depositRepository) RecordObservation(ctx context.Context, id uuid.UUID, received decimal.Decimal, txHash string, confirmations int) error {
	return r.db.WithContext(ctx).
		Model(&ManualDeposit{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"received_amount": received,
			"tx_hash":         txHash,
			"confirmations":   confirmations,
		}).Error
}

func (r *depositRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.DepositStatus, to domain.DepositStatus) (bool, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	res := r.db.WithContext(ctx).
		Model(&ManualDeposit{}).
		Where("id = ? AND status IN ?", id, statuses).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *depositRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*domain.ManualDeposit, error) {
	var models []ManualDeposit
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", openDepositStatuses, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	deposits := make([]*domain.ManualDeposit, 0, len(models))
	for i := range models {
		deposits = append(deposits, depositToDomain(&models[i]))
	}
	return deposits, nil
}
