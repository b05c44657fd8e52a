package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates the gorm-backed payment repository.
func NewPaymentRepository(db *gorm.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).Create(paymentFromDomain(p)).Error
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var m Payment
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return paymentToDomain(&m), nil
}

func (r *paymentRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	var m Payment
	if err := r.db.WithContext(ctx).First(&m, "external_payment_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return paymentToDomain(&m), nil
}

func (r *paymentRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Payment, error) {
	var models []Payment
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	payments := make([]*domain.Payment, 0, len(models))
	for i := range models {
		payments = append(payments, paymentToDomain(&models[i]))
	}
	return payments, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
