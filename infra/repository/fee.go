package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
)

type feeRepository struct {
	db *gorm.DB
}

// NewFeeRepository creates the gorm-backed platform fee ledger.
func NewFeeRepository(db *gorm.DB) *feeRepository {
	return &feeRepository{db: db}
}

func (r *feeRepository) Create(ctx context.Context, f *domain.PlatformFee) error {
	return r.db.WithContext(ctx).Create(feeFromDomain(f)).Error
}

func (r *feeRepository) ListByConversion(ctx context.Context, conversionID uuid.UUID) ([]*domain.PlatformFee, error) {
	var models []PlatformFee
	err := r.db.WithContext(ctx).
		Where("conversion_id = ?", conversionID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	fees := make([]*domain.PlatformFee, 0, len(models))
	for i := range models {
		fees = append(fees, feeToDomain(&models[i]))
	}
	return fees, nil
}

func (r *feeRepository) MarkCollectible(ctx context.Context, conversionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&PlatformFee{}).
		Where("conversion_id = ? AND status = ?", conversionID, domain.FeePending).
		Update("collectible", true).Error
}

func (r *feeRepository) MarkCollected(ctx context.Context, id uuid.UUID, collectionTxHash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&PlatformFee{}).
		Where("id = ? AND status = ? AND collectible", id, domain.FeePending).
		Updates(map[string]any{
			"status":             string(domain.FeeCollected),
			"collection_tx_hash": collectionTxHash,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
