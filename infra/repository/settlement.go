package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
)

type settlementRepository struct {
	db *gorm.DB
}

// NewSettlementRepository creates the gorm-backed settlement repository.
func NewSettlementRepository(db *gorm.DB) *settlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	return r.db.WithContext(ctx).Create(settlementFromDomain(s)).Error
}

func (r *settlementRepository) GetByConversion(ctx context.Context, conversionID uuid.UUID) (*domain.Settlement, error) {
	var m Settlement
	if err := r.db.WithContext(ctx).First(&m, "conversion_id = ?", conversionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, err
	}
	return settlementToDomain(&m), nil
}

func (r *settlementRepository) ListUnfinished(ctx context.Context, limit int) ([]*domain.Settlement, error) {
	var models []Settlement
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.SettlementPending), string(domain.SettlementProcessing)}).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	settlements := make([]*domain.Settlement, 0, len(models))
	for i := range models {
		settlements = append(settlements, settlementToDomain(&models[i]))
	}
	return settlements, nil
}

func (r *settlementRepository) MarkCompleted(ctx context.Context, id uuid.UUID, transactionID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Settlement{}).
		Where("id = ? AND status <> ?", id, domain.SettlementCompletedStatus).
		Updates(map[string]any{
			"status":         string(domain.SettlementCompletedStatus),
			"transaction_id": transactionID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
