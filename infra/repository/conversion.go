package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/repository"
)

type conversionRepository struct {
	db *gorm.DB
}

// NewConversionRepository creates the gorm-backed conversion repository.
func NewConversionRepository(db *gorm.DB) *conversionRepository {
	return &conversionRepository{db: db}
}

func (r *conversionRepository) Create(ctx context.Context, c *domain.Conversion) error {
	m, err := conversionFromDomain(c)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *conversionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Conversion, error) {
	var m Conversion
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversionNotFound
		}
		return nil, err
	}
	return conversionToDomain(&m)
}

func (r *conversionRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.ConversionStatus, upd repository.ConversionUpdate) (bool, error) {
	updates := map[string]any{"status": string(to)}
	if upd.TargetAmount != nil {
		updates["target_amount"] = *upd.TargetAmount
	}
	if upd.ExchangeRate != nil {
		updates["exchange_rate"] = *upd.ExchangeRate
	}
	if upd.RateLockedUntil != nil {
		updates["rate_locked_until"] = *upd.RateLockedUntil
	}
	if upd.DexPoolID != nil {
		updates["dex_pool_id"] = *upd.DexPoolID
	}
	if upd.DexProvider != nil {
		updates["dex_provider"] = *upd.DexProvider
	}
	if upd.DexTxHash != nil {
		updates["dex_tx_hash"] = *upd.DexTxHash
	}
	if upd.TonTxHash != nil {
		updates["ton_tx_hash"] = *upd.TonTxHash
	}
	if upd.ErrorMessage != nil {
		updates["error_message"] = *upd.ErrorMessage
	}
	if upd.SettlementStatus != nil {
		updates["settlement_status"] = string(*upd.SettlementStatus)
	}

	res := r.db.WithContext(ctx).
		Model(&Conversion{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *conversionRepository) ListCommittedWithTxHash(ctx context.Context, limit int) ([]*domain.Conversion, error) {
	var models []Conversion
	err := r.db.WithContext(ctx).
		Where("status = ? AND ton_tx_hash <> ''", domain.ConversionPhase2Committed).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(models)
}

func (r *conversionRepository) ListSettleable(ctx context.Context, limit int) ([]*domain.Conversion, error) {
	var models []Conversion
	err := r.db.WithContext(ctx).
		Where("status = ? AND settlement_status IN ?",
			domain.ConversionCompleted,
			[]string{string(domain.SettlementReadinessPending), string(domain.SettlementReadinessReady)}).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(models)
}

func (r *conversionRepository) SetSettlement(ctx context.Context, conversionID, settlementID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Conversion{}).
		Where("id = ? AND settlement_id IS NULL", conversionID).
		Update("settlement_id", settlementID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *conversionRepository) UpdateSettlementReadiness(ctx context.Context, id uuid.UUID, from []domain.SettlementReadiness, to domain.SettlementReadiness) (bool, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	res := r.db.WithContext(ctx).
		Model(&Conversion{}).
		Where("id = ? AND settlement_status IN ?", id, statuses).
		Update("settlement_status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func toDomainList(models []Conversion) ([]*domain.Conversion, error) {
	out := make([]*domain.Conversion, 0, len(models))
	for i := range models {
		c, err := conversionToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
