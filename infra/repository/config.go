package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
)

type configRepository struct {
	db *gorm.DB
}

// NewConfigRepository creates the gorm-backed platform config reader.
func NewConfigRepository(db *gorm.DB) *configRepository {
	return &configRepository{db: db}
}

func (r *configRepository) ActiveConfig(ctx context.Context) (*domain.PlatformConfig, error) {
	var m PlatformConfig
	err := r.db.WithContext(ctx).
		Where("active").
		Order("version DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConfigurationMissing
		}
		return nil, err
	}
	return configToDomain(&m), nil
}
