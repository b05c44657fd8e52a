package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/stellarpay/starbridge/pkg/repository"
)

// UoW binds the repositories to one *gorm.DB session so multi-entity
// updates inside Do share a transaction. Outside Do the repositories run
// on the root connection. Monitors may run in separate processes; the
// status-guarded updates inside the repositories stay correct either way.
type UoW struct {
	db *gorm.DB
}

// NewUoW creates a unit of work over db.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{db: db}
}

// Do runs fn inside a transaction, handing it a UoW whose repositories
// are bound to that transaction. Nested calls reuse the session via a
// savepoint.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: tx})
	})
}

func (u *UoW) Payments() repository.PaymentRepository {
	return NewPaymentRepository(u.db)
}

func (u *UoW) Conversions() repository.ConversionRepository {
	return NewConversionRepository(u.db)
}

func (u *UoW) Orders() repository.OrderRepository {
	return NewOrderRepository(u.db)
}

func (u *UoW) Swaps() repository.SwapRepository {
	return NewSwapRepository(u.db)
}

func (u *UoW) Fees() repository.FeeRepository {
	return NewFeeRepository(u.db)
}

func (u *UoW) Settlements() repository.SettlementRepository {
	return NewSettlementRepository(u.db)
}

func (u *UoW) Deposits() repository.DepositRepository {
	return NewDepositRepository(u.db)
}

func (u *UoW) Config() repository.ConfigRepository {
	return NewConfigRepository(u.db)
}

var _ repository.UnitOfWork = (*UoW)(nil)
