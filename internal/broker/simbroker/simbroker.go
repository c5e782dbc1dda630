// Package simbroker is an in-memory Broker Operations Port (C7)
// implementation: no external calls, used by the engine's own tests and by
// cmd/backtester. It simulates execution by immediately marking every order
// Active with full balance; fills, full or partial, are injected by the
// test/backtest driver via Fill, which is how the engine's own tests feed
// synthetic trades into the Manager.
package simbroker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
)

// Broker is an in-memory paper broker.
type Broker struct {
	mu       sync.Mutex
	orders   map[domain.OrderID]*domain.Order
	cancels  map[domain.OrderID]bool
	priceStep decimal.Decimal
}

// New returns a Broker ready to place and cancel orders in memory.
func New() *Broker {
	return &Broker{
		orders:    make(map[domain.OrderID]*domain.Order),
		cancels:   make(map[domain.OrderID]bool),
		priceStep: decimal.NewFromFloat(0.01),
	}
}

// PlaceOrder creates a live, Active order handle with the full volume still
// outstanding as balance.
func (b *Broker) PlaceOrder(spec domain.OrderSpec) (*domain.Order, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order := &domain.Order{
		ID:      domain.OrderID(uuid.New().String()),
		Spec:    spec,
		State:   domain.OrderActive,
		Balance: spec.Volume,
	}
	b.orders[order.ID] = order

	log.Debug().
		Str("order_id", string(order.ID)).
		Str("side", string(spec.Side)).
		Str("type", string(spec.Type)).
		Str("price", spec.Price.String()).
		Str("volume", spec.Volume.String()).
		Msg("simbroker: order placed")

	return order, nil
}

// CancelOrder marks the order Done at its current balance (best-effort; a
// vanished or already-Done order is tolerated, per spec.md §7).
func (b *Broker) CancelOrder(order *domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracked, ok := b.orders[order.ID]
	if !ok {
		return nil
	}
	if tracked.State == domain.OrderActive {
		tracked.State = domain.OrderDone
	}
	b.cancels[order.ID] = true

	log.Debug().Str("order_id", string(order.ID)).Msg("simbroker: order cancelled")
	return nil
}

// Fill simulates a (possibly partial) fill of volume at price against order,
// returning the Trade the engine's Manager should be fed. The order's
// in-memory balance/state are updated accordingly.
func (b *Broker) Fill(order *domain.Order, price, volume decimal.Decimal) domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracked, ok := b.orders[order.ID]
	if !ok {
		tracked = order
	}
	tracked.Balance = tracked.Balance.Sub(volume)
	if tracked.Balance.LessThanOrEqual(decimal.Zero) {
		tracked.Balance = decimal.Zero
		tracked.State = domain.OrderDone
	}

	return domain.Trade{
		Order:      tracked,
		TradePrice: price,
		TradeVol:   volume,
	}
}

// Expire marks order Done at its current (untouched) balance, simulating an
// entry that expired without being filled.
func (b *Broker) Expire(order *domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tracked, ok := b.orders[order.ID]; ok {
		tracked.State = domain.OrderDone
	}
}

// WasCancelled reports whether CancelOrder was ever called for id.
func (b *Broker) WasCancelled(id domain.OrderID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancels[id]
}

// Order returns the current in-memory snapshot for id, if tracked.
func (b *Broker) Order(id domain.OrderID) (*domain.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	return o, ok
}

// PriceStep implements broker.SecurityInfo with a fixed simulated tick size.
func (b *Broker) PriceStep(_ string) (decimal.Decimal, error) {
	return b.priceStep, nil
}

// PortfolioValue implements broker.PortfolioInfo; simbroker does not track
// equity, so it always reports zero.
func (b *Broker) PortfolioValue() (decimal.Decimal, error) {
	return decimal.Zero, nil
}
