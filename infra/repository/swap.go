package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
)

type swapRepository struct {
	db *gorm.DB
}

// NewSwapRepository creates the gorm-backed atomic swap repository.
func NewSwapRepository(db *gorm.DB) *swapRepository {
	return &swapRepository{db: db}
}

func (r *swapRepository) Create(ctx context.Context, s *domain.AtomicSwap) error {
	return r.db.WithContext(ctx).Create(swapFromDomain(s)).Error
}

func (r *swapRepository) Get(ctx context.Context, id uuid.UUID) (*domain.AtomicSwap, error) {
	var m AtomicSwap
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSwapNotFound
		}
		return nil, err
	}
	return swapToDomain(&m), nil
}

func (r *swapRepository) GetBySellOrder(ctx context.Context, sellOrderID uuid.UUID) (*domain.AtomicSwap, error) {
	var m AtomicSwap
	if err := r.db.WithContext(ctx).First(&m, "sell_order_id = ?", sellOrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSwapNotFound
		}
		return nil, err
	}
	return swapToDomain(&m), nil
}

func (r *swapRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.SwapStatus, transferTxHash string) (bool, error) {
	updates := map[string]any{"status": string(to)}
	if transferTxHash != "" {
		updates["transfer_tx_hash"] = transferTxHash
	}
	res := r.db.WithContext(ctx).
		Model(&AtomicSwap{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
