package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/domain"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates the gorm-backed order book repository.
func NewOrderRepository(db *gorm.DB) *orderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, o *domain.StarsOrder) error {
	return r.db.WithContext(ctx).Create(orderFromDomain(o)).Error
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*domain.StarsOrder, error) {
	var m StarsOrder
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return orderToDomain(&m), nil
}

// OldestOpenBuyAtOrAbove implements the FIFO tie-break: among all
// eligible candidates, creation time decides, not the best rate.
func (r *orderRepository) OldestOpenBuyAtOrAbove(ctx context.Context, rate decimal.Decimal) (*domain.StarsOrder, error) {
	var m StarsOrder
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND rate >= ?", domain.OrderBuy, domain.OrderOpen, rate).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return orderToDomain(&m), nil
}

func (r *orderRepository) OldestOpenSellAtOrBelow(ctx context.Context, rate decimal.Decimal) (*domain.StarsOrder, error) {
	var m StarsOrder
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND rate <= ?", domain.OrderSell, domain.OrderOpen, rate).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return orderToDomain(&m), nil
}

func (r *orderRepository) ListOpenSells(ctx context.Context, limit int) ([]*domain.StarsOrder, error) {
	var models []StarsOrder
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", domain.OrderSell, domain.OrderOpen).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	orders := make([]*domain.StarsOrder, 0, len(models))
	for i := range models {
		orders = append(orders, orderToDomain(&models[i]))
	}
	return orders, nil
}

func (r *orderRepository) OpenBuyLiquidity(ctx context.Context, rate decimal.Decimal) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&StarsOrder{}).
		Select("SUM(ton_amount)").
		Where("type = ? AND status = ? AND rate >= ?", domain.OrderBuy, domain.OrderOpen, rate).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *orderRepository) BestOpenBuyRate(ctx context.Context) (decimal.Decimal, error) {
	var best decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&StarsOrder{}).
		Select("MAX(rate)").
		Where("type = ? AND status = ?", domain.OrderBuy, domain.OrderOpen).
		Scan(&best).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !best.Valid {
		return decimal.Zero, nil
	}
	return best.Decimal, nil
}

func (r *orderRepository) MarkMatched(ctx context.Context, id, counterOrderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&StarsOrder{}).
		Where("id = ? AND status = ?", id, domain.OrderOpen).
		Updates(map[string]any{
			"status":           string(domain.OrderMatched),
			"counter_order_id": counterOrderID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&StarsOrder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
