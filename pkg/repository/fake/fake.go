// Package fake provides an in-memory UnitOfWork for service tests. It
// honors the same status-guard semantics as the SQL implementation and
// rolls state back when a Do callback fails.
package fake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/repository"
)

type state struct {
	payments    map[uuid.UUID]*domain.Payment
	conversions map[uuid.UUID]*domain.Conversion
	orders      map[uuid.UUID]*domain.StarsOrder
	swaps       map[uuid.UUID]*domain.AtomicSwap
	fees        map[uuid.UUID]*domain.PlatformFee
	settlements map[uuid.UUID]*domain.Settlement
	deposits    map[uuid.UUID]*domain.ManualDeposit
	config      *domain.PlatformConfig
}

func newState() *state {
	return &state{
		payments:    make(map[uuid.UUID]*domain.Payment),
		conversions: make(map[uuid.UUID]*domain.Conversion),
		orders:      make(map[uuid.UUID]*domain.StarsOrder),
		swaps:       make(map[uuid.UUID]*domain.AtomicSwap),
		fees:        make(map[uuid.UUID]*domain.PlatformFee),
		settlements: make(map[uuid.UUID]*domain.Settlement),
		deposits:    make(map[uuid.UUID]*domain.ManualDeposit),
	}
}

// Entries are replaced wholesale on every write, so a shallow map copy is
// a consistent snapshot.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.conversions {
		c.conversions[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.swaps {
		c.swaps[k] = v
	}
	for k, v := range s.fees {
		c.fees[k] = v
	}
	for k, v := range s.settlements {
		c.settlements[k] = v
	}
	for k, v := range s.deposits {
		c.deposits[k] = v
	}
	c.config = s.config
	return c
}

// UoW is the in-memory unit of work.
type UoW struct {
	mu sync.Mutex
	st *state
}

// NewUoW creates an empty in-memory store.
func NewUoW() *UoW {
	return &UoW{st: newState()}
}

// Do runs fn, restoring the previous state if it returns an error.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	u.mu.Lock()
	snapshot := u.st.clone()
	u.mu.Unlock()

	if err := fn(u); err != nil {
		u.mu.Lock()
		u.st = snapshot
		u.mu.Unlock()
		return err
	}
	return nil
}

func (u *UoW) Payments() repository.PaymentRepository       { return &paymentRepo{u} }
func (u *UoW) Conversions() repository.ConversionRepository { return &conversionRepo{u} }
func (u *UoW) Orders() repository.OrderRepository           { return &orderRepo{u} }
func (u *UoW) Swaps() repository.SwapRepository             { return &swapRepo{u} }
func (u *UoW) Fees() repository.FeeRepository               { return &feeRepo{u} }
func (u *UoW) Settlements() repository.SettlementRepository { return &settlementRepo{u} }
func (u *UoW) Deposits() repository.DepositRepository       { return &depositRepo{u} }
func (u *UoW) Config() repository.ConfigRepository          { return &configRepo{u} }

// SetActiveConfig installs the platform configuration served by Config().
func (u *UoW) SetActiveConfig(cfg *domain.PlatformConfig) {
	u.mu.Lock()
	defer u.mu.Unlock()
	copied := *cfg
	u.st.config = &copied
}

var _ repository.UnitOfWork = (*UoW)(nil)

// --- payments ---

type paymentRepo struct{ u *UoW }

func (r *paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	copied := *p
	r.u.st.payments[p.ID] = &copied
	return nil
}

func (r *paymentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	p, ok := r.u.st.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *paymentRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	for _, p := range r.u.st.payments {
		if p.ExternalPaymentID == externalID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *paymentRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Payment, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var out []*domain.Payment
	for _, id := range ids {
		if p, ok := r.u.st.payments[id]; ok {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	p, ok := r.u.st.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	copied := *p
	copied.Status = to
	copied.UpdatedAt = time.Now()
	r.u.st.payments[id] = &copied
	return true, nil
}

// --- conversions ---

type conversionRepo struct{ u *UoW }

func (r *conversionRepo) Create(ctx context.Context, c *domain.Conversion) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	copied := *c
	r.u.st.conversions[c.ID] = &copied
	return nil
}

func (r *conversionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Conversion, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	c, ok := r.u.st.conversions[id]
	if !ok {
		return nil, domain.ErrConversionNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *conversionRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.ConversionStatus, upd repository.ConversionUpdate) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	c, ok := r.u.st.conversions[id]
	if !ok || c.Status != from {
		return false, nil
	}
	copied := *c
	copied.Status = to
	if upd.TargetAmount != nil {
		v := *upd.TargetAmount
		copied.TargetAmount = &v
	}
	if upd.ExchangeRate != nil {
		v := *upd.ExchangeRate
		copied.ExchangeRate = &v
	}
	if upd.RateLockedUntil != nil {
		v := *upd.RateLockedUntil
		copied.RateLockedUntil = &v
	}
	if upd.DexPoolID != nil {
		copied.DexPoolID = *upd.DexPoolID
	}
	if upd.DexProvider != nil {
		copied.DexProvider = *upd.DexProvider
	}
	if upd.DexTxHash != nil {
		copied.DexTxHash = *upd.DexTxHash
	}
	if upd.TonTxHash != nil {
		copied.TonTxHash = *upd.TonTxHash
	}
	if upd.ErrorMessage != nil {
		copied.ErrorMessage = *upd.ErrorMessage
	}
	if upd.SettlementStatus != nil {
		copied.SettlementStatus = *upd.SettlementStatus
	}
	copied.UpdatedAt = time.Now()
	r.u.st.conversions[id] = &copied
	return true, nil
}

func (r *conversionRepo) ListCommittedWithTxHash(ctx context.Context, limit int) ([]*domain.Conversion, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var out []*domain.Conversion
	for _, c := range r.u.st.conversions {
		if c.Status == domain.ConversionPhase2Committed && (c.TonTxHash != "" || c.DexTxHash != "") {
			copied := *c
			out = append(out, &copied)
		}
	}
	sortByCreated(out, func(c *domain.Conversion) time.Time { return c.CreatedAt })
	return clip(out, limit), nil
}

func (r *conversionRepo) ListSettleable(ctx context.Context, limit int) ([]*domain.Conversion, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var out []*domain.Conversion
	for _, c := range r.u.st.conversions {
		if c.Status != domain.ConversionCompleted {
			continue
		}
		if c.SettlementStatus == domain.SettlementReadinessPending || c.SettlementStatus == domain.SettlementReadinessReady {
			copied := *c
			out = append(out, &copied)
		}
	}
	sortByCreated(out, func(c *domain.Conversion) time.Time { return c.CreatedAt })
	return clip(out, limit), nil
}

func (r *conversionRepo) SetSettlement(ctx context.Context, conversionID, settlementID uuid.UUID) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	c, ok := r.u.st.conversions[conversionID]
	if !ok || c.SettlementID != nil {
		return false, nil
	}
	copied := *c
	sid := settlementID
	copied.SettlementID = &sid
	copied.UpdatedAt = time.Now()
	r.u.st.conversions[conversionID] = &copied
	return true, nil
}

func (r *conversionRepo) UpdateSettlementReadiness(ctx context.Context, id uuid.UUID, from []domain.SettlementReadiness, to domain.SettlementReadiness) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	c, ok := r.u.st.conversions[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, f := range from {
		if c.SettlementStatus == f {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}
	copied := *c
	copied.SettlementStatus = to
	copied.UpdatedAt = time.Now()
	r.u.st.conversions[id] = &copied
	return true, nil
}

// --- orders ---

type orderRepo struct{ u *UoW }

func (r *orderRepo) Create(ctx context.Context, o *domain.StarsOrder) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	copied := *o
	r.u.st.orders[o.ID] = &copied
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id uuid.UUID) (*domain.StarsOrder, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	o, ok := r.u.st.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *orderRepo) OldestOpenBuyAtOrAbove(ctx context.Context, rate decimal.Decimal) (*domain.StarsOrder, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var candidates []*domain.StarsOrder
	for _, o := range r.u.st.orders {
		if o.Type == domain.OrderBuy && o.Status == domain.OrderOpen && o.Rate.GreaterThanOrEqual(rate) {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrOrderNotFound
	}
	sortByCreated(candidates, func(o *domain.StarsOrder) time.Time { return o.CreatedAt })
	copied := *candidates[0]
	return &copied, nil
}

func (r *orderRepo) OldestOpenSellAtOrBelow(ctx context.Context, rate decimal.Decimal) (*domain.StarsOrder, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var candidates []*domain.StarsOrder
	for _, o := range r.u.st.orders {
		if o.Type == domain.OrderSell && o.Status == domain.OrderOpen && o.Rate.LessThanOrEqual(rate) {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrOrderNotFound
	}
	sortByCreated(candidates, func(o *domain.StarsOrder) time.Time { return o.CreatedAt })
	copied := *candidates[0]
	return &copied, nil
}

func (r *orderRepo) ListOpenSells(ctx context.Context, limit int) ([]*domain.StarsOrder, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var out []*domain.StarsOrder
	for _, o := range r.u.st.orders {
		if o.Type == domain.OrderSell && o.Status == domain.OrderOpen {
			copied := *o
			out = append(out, &copied)
		}
	}
	sortByCreated(out, func(o *domain.StarsOrder) time.Time { return o.CreatedAt })
	return clip(out, limit), nil
}

func (r *orderRepo) OpenBuyLiquidity(ctx context.Context, rate decimal.Decimal) (decimal.Decimal, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	total := decimal.Zero
	for _, o := range r.u.st.orders {
		if o.Type == domain.OrderBuy && o.Status == domain.OrderOpen && o.Rate.GreaterThanOrEqual(rate) {
			total = total.Add(o.TonAmount)
		}
	}
	return total, nil
}

func (r *orderRepo) BestOpenBuyRate(ctx context.Context) (decimal.Decimal, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	best := decimal.Zero
	for _, o := range r.u.st.orders {
		if o.Type == domain.OrderBuy && o.Status == domain.OrderOpen && o.Rate.GreaterThan(best) {
			best = o.Rate
		}
	}
	return best, nil
}

func (r *orderRepo) MarkMatched(ctx context.Context, id, counterOrderID uuid.UUID) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	o, ok := r.u.st.orders[id]
	if !ok || o.Status != domain.OrderOpen {
		return false, nil
	}
	copied := *o
	copied.Status = domain.OrderMatched
	cid := counterOrderID
	copied.CounterOrderID = &cid
	copied.UpdatedAt = time.Now()
	r.u.st.orders[id] = &copied
	return true, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	o, ok := r.u.st.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	copied := *o
	copied.Status = to
	copied.UpdatedAt = time.Now()
	r.u.st.orders[id] = &copied
	return true, nil
}

// --- swaps ---

type swapRepo struct{ u *UoW }

func (r *swapRepo) Create(ctx context.Context, s *domain.AtomicSwap) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	copied := *s
	r.u.st.swaps[s.ID] = &copied
	return nil
}

func (r *swapRepo) Get(ctx context.Context, id uuid.UUID) (*domain.AtomicSwap, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	s, ok := r.u.st.swaps[id]
	if !ok {
		return nil, domain.ErrSwapNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *swapRepo) GetBySellOrder(ctx context.Context, sellOrderID uuid.UUID) (*domain.AtomicSwap, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	for _, s := range r.u.st.swaps {
		if s.SellOrderID == sellOrderID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrSwapNotFound
}

func (r *swapRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.SwapStatus, transferTxHash string) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	s, ok := r.u.st.swaps[id]
	if !ok || s.Status != from {
		return false, nil
	}
	copied := *s
	copied.Status = to
	if transferTxHash != "" {
		copied.TransferTxHash = transferTxHash
	}
	copied.UpdatedAt = time.Now()
	r.u.st.swaps[id] = &copied
	return true, nil
}

// --- fees ---

type feeRepo struct{ u *UoW }

func (r *feeRepo) Create(ctx context.Context, f *domain.PlatformFee) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	copied := *f
	r.u.st.fees[f.ID] = &copied
	return nil
}

func (r *feeRepo) ListByConversion(ctx context.Context, conversionID uuid.UUID) ([]*domain.PlatformFee, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var out []*domain.PlatformFee
	for _, f := range r.u.st.fees {
		if f.ConversionID != nil && *f.ConversionID == conversionID {
			copied := *f
			out = append(out, &copied)
		}
	}
	sortByCreated(out, func(f *domain.PlatformFee) time.Time { return f.CreatedAt })
	return out, nil
}

func (r *feeRepo) MarkCollectible(ctx context.Context, conversionID uuid.UUID) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	for id, f := range r.u.st.fees {
		if f.ConversionID != nil && *f.ConversionID == conversionID {
			copied := *f
			copied.Collectible = true
			copied.UpdatedAt = time.Now()
			r.u.st.fees[id] = &copied
		}
	}
	return nil
}

func (r *feeRepo) MarkCollected(ctx context.Context, id uuid.UUID, collectionTxHash string) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	f, ok := r.u.st.fees[id]
	if !ok || f.Status != domain.FeePending || !f.Collectible {
		return false, nil
	}
	copied := *f
	copied.Status = domain.FeeCollected
	copied.CollectionTxHash = collectionTxHash
	copied.UpdatedAt = time.Now()
	r.u.st.fees[id] = &copied
	return true, nil
}

// --- settlements ---

type settlementRepo struct{ u *UoW }

func (r *settlementRepo) Create(ctx context.Context, s *domain.Settlement) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	copied := *s
	r.u.st.settlements[s.ID] = &copied
	return nil
}

func (r *settlementRepo) GetByConversion(ctx context.Context, conversionID uuid.UUID) (*domain.Settlement, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	for _, s := range r.u.st.settlements {
		if s.ConversionID == conversionID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrSettlementNotFound
}

func (r *settlementRepo) ListUnfinished(ctx context.Context, limit int) ([]*domain.Settlement, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var out []*domain.Settlement
	for _, s := range r.u.st.settlements {
		if s.Status == domain.SettlementPending || s.Status == domain.SettlementProcessing {
			copied := *s
			out = append(out, &copied)
		}
	}
	sortByCreated(out, func(s *domain.Settlement) time.Time { return s.CreatedAt })
	return clip(out, limit), nil
}

func (r *settlementRepo) MarkCompleted(ctx context.Context, id uuid.UUID, transactionID string) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	s, ok := r.u.st.settlements[id]
	if !ok || s.Status == domain.SettlementCompletedStatus {
		return false, nil
	}
	copied := *s
	copied.Status = domain.SettlementCompletedStatus
	copied.TransactionID = transactionID
	copied.UpdatedAt = time.Now()
	r.u.st.settlements[id] = &copied
	return true, nil
}

// --- deposits ---

type depositRepo struct{ u *UoW }

func (r *depositRepo) Create(ctx context.Context, d *domain.ManualDeposit) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	copied := *d
	r.u.st.deposits[d.ID] = &copied
	return nil
}

func (r *depositRepo) Get(ctx context.Context, id uuid.UUID) (*domain.ManualDeposit, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	d, ok := r.u.st.deposits[id]
	if !ok {
		return nil, domain.ErrDepositNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *depositRepo) LatestOpenByAddress(ctx context.Context, address string) (*domain.ManualDeposit, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var candidates []*domain.ManualDeposit
	for _, d := range r.u.st.deposits {
		if d.DepositAddress != address {
			continue
		}
		if d.Status == domain.DepositPending || d.Status == domain.DepositAwaitingConfirmation {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrDepositNotFound
	}
	sortByCreated(candidates, func(d *domain.ManualDeposit) time.Time { return d.CreatedAt })
	copied := *candidates[len(candidates)-1]
	return &copied, nil
}

func (r *depositRepo) WatchedAddresses(ctx context.Context) ([]string, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.u.st.deposits {
		if d.Status != domain.DepositPending && d.Status != domain.DepositAwaitingConfirmation {
			continue
		}
		if !seen[d.DepositAddress] {
			seen[d.DepositAddress] = true
			out = append(out, d.DepositAddress)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *depositRepo) RecordObservation(ctx context.Context, id uuid.UUID, received decimal.Decimal, txHash string, confirmations int) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	d, ok := r.u.st.deposits[id]
	if !ok {
		return domain.ErrDepositNotFound
	}
	copied := *d
	copied.ReceivedAmount = received
	copied.TxHash = txHash
	copied.Confirmations = confirmations
	copied.UpdatedAt = time.Now()
	r.u.st.deposits[id] = &copied
	return nil
}

func (r *depositRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.DepositStatus, to domain.DepositStatus) (bool, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	d, ok := r.u.st.deposits[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, f := range from {
		if d.Status == f {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}
	copied := *d
	copied.Status = to
	copied.UpdatedAt = time.Now()
	r.u.st.deposits[id] = &copied
	return true, nil
}

func (r *depositRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*domain.ManualDeposit, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	var out []*domain.ManualDeposit
	for _, d := range r.u.st.deposits {
		if d.Status != domain.DepositPending && d.Status != domain.DepositAwaitingConfirmation {
			continue
		}
		if d.ExpiresAt.Before(now) {
			copied := *d
			out = append(out, &copied)
		}
	}
	sortByCreated(out, func(d *domain.ManualDeposit) time.Time { return d.CreatedAt })
	return clip(out, limit), nil
}

// --- config ---

type configRepo struct{ u *UoW }

func (r *configRepo) ActiveConfig(ctx context.Context) (*domain.PlatformConfig, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	if r.u.st.config == nil {
		return nil, domain.ErrConfigurationMissing
	}
	copied := *r.u.st.config
	return &copied, nil
}

// --- helpers ---

func sortByCreated[T any](items []T, created func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return created(items[i]).Before(created(items[j]))
	})
}

func clip[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
