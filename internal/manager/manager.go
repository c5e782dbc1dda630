// Package manager implements the Order Position Manager (C6): the
// top-level orchestrator that routes trades, state changes and candles into
// the Registry, the Retry Handler and the Candle Protection Checker.
package manager

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/broker"
	"github.com/algoforge/ordergroup/internal/domain"
	"github.com/algoforge/ordergroup/internal/events"
	"github.com/algoforge/ordergroup/internal/protection"
	"github.com/algoforge/ordergroup/internal/registry"
	"github.com/algoforge/ordergroup/internal/retry"
)

// Manager is the single entry point the surrounding event pump drives:
// handle_order_request, on_own_trade_received, on_order_state_changed,
// check_protection_levels, close_all_positions, reset (spec.md §4.6).
type Manager struct {
	reg            *registry.Registry
	retryHandler   *retry.Handler
	brk            broker.Broker
	checker        *protection.Checker
	bus            *events.Bus
	matchTolerance decimal.Decimal
	onGroupClosed  func(*domain.OrderGroup)

	mu         sync.Mutex
	lastCandle *domain.CandleMessage
}

// New wires a Manager from its collaborators. onGroupClosed, if non-nil, is
// called after the registry has recorded a Closed transition made through
// the Manager's own close path: the last pair of a group exiting through a
// protective or retry fill, an entry expiring untouched or failing, and every
// group closed by CloseAllPositions. It is not called for groups closed by
// the Candle Protection Checker (including the same-bar entry-fill check),
// for Pending groups cancelled by a nil request, or for a group whose entry
// order the broker rejects. Callers use it to archive a summary (e.g. the
// audit log) without the Manager depending on that sink directly.
func New(reg *registry.Registry, retryHandler *retry.Handler, brk broker.Broker, checker *protection.Checker, bus *events.Bus, matchTolerance decimal.Decimal, onGroupClosed func(*domain.OrderGroup)) *Manager {
	return &Manager{
		reg:            reg,
		retryHandler:   retryHandler,
		brk:            brk,
		checker:        checker,
		bus:            bus,
		matchTolerance: matchTolerance,
		onGroupClosed:  onGroupClosed,
	}
}

// HandleOrderRequest implements spec.md §4.6.1. A nil request cancels every
// Pending group. Otherwise a request matching an existing Pending group is
// silently dropped (group-level deduplication); a request arriving at
// capacity is rejected with MaxConcurrentGroupsReached; otherwise the group
// is registered and its entry order placed.
func (m *Manager) HandleOrderRequest(req *domain.OrderRequest) (*domain.Order, error) {
	if req == nil {
		m.cancelAllPending()
		return nil, nil
	}

	if existing, ok := m.reg.FindMatchingGroup(*req, m.matchTolerance); ok && existing.State == domain.Pending {
		return nil, nil
	}

	g, err := m.reg.RegisterGroup(*req)
	if err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			m.publish(events.Event{Kind: events.KindMaxConcurrentGroupsReached})
			return nil, nil
		}
		return nil, err
	}

	order, err := m.brk.PlaceOrder(req.Entry)
	if err != nil {
		m.reg.CloseGroup(g.GroupID)
		m.publish(events.Event{Kind: events.KindOrderRejected, GroupID: g.GroupID, Reason: err.Error()})
		return nil, err
	}
	m.reg.SetEntryOrder(g.GroupID, order)
	m.publish(events.Event{Kind: events.KindOrderActivated, GroupID: g.GroupID, OrderID: order.ID, Side: order.Spec.Side})
	return order, nil
}

func (m *Manager) cancelAllPending() {
	for _, g := range m.reg.ActiveGroups() {
		if g.State != domain.Pending {
			continue
		}
		if g.EntryOrder != nil && g.EntryOrder.State == domain.OrderActive {
			_ = m.brk.CancelOrder(g.EntryOrder)
		}
		m.reg.CloseGroup(g.GroupID)
		m.publish(events.Event{Kind: events.KindGroupCancelled, GroupID: g.GroupID})
	}
}

// OnOwnTradeReceived implements spec.md §4.6.2: dispatch by order identity
// through the retry handler, then the entry slot, then the protective
// slots.
func (m *Manager) OnOwnTradeReceived(trade domain.Trade) error {
	if key, ok := m.retryHandler.IsRetryOrder(trade.Order.ID); ok {
		return m.handleRetryTrade(key, trade)
	}

	g, ok := m.reg.FindGroupByOrder(trade.Order.ID)
	if !ok {
		log.Debug().Str("order_id", string(trade.Order.ID)).Msg("orphan trade ignored")
		return nil
	}

	if g.EntryOrder != nil && g.EntryOrder.ID == trade.Order.ID {
		return m.handleEntryFill(g, trade)
	}
	return m.handleProtectiveFill(g, trade)
}

func (m *Manager) handleRetryTrade(key retry.Key, trade domain.Trade) error {
	g, ok := m.reg.Get(key.GroupID)
	if !ok {
		return nil
	}

	needsMore, err := m.retryHandler.HandleRetryFill(key, trade, m.marketPlacer(g.EntrySpec.Security))
	if err != nil {
		return err
	}
	if needsMore {
		return nil
	}

	slot, ok := g.Pairs[key.PairID]
	if !ok {
		return nil
	}
	m.cancelOpposingSibling(g, slot, trade.Order.ID)
	m.finalizePair(g, slot.PairID)
	return nil
}

// handleEntryFill implements the "Entry-fill path" of spec.md §4.6.2,
// including the same-bar protection check against the last cached candle.
func (m *Manager) handleEntryFill(g *domain.OrderGroup, trade domain.Trade) error {
	if trade.Order.Balance.GreaterThan(decimal.Zero) {
		return nil // partial entry fill: wait for full fill, never enters retry
	}

	m.reg.MarkEntryFilled(g.GroupID)

	m.mu.Lock()
	candle := m.lastCandle
	m.mu.Unlock()

	if candle != nil && m.checker.CheckGroup(g, *candle) {
		return nil // closed same-bar; never placed resting protective orders
	}

	m.placeProtectiveOrders(g)
	m.reg.MarkProtectionActive(g.GroupID)
	return nil
}

// placeProtectiveOrders places resting Limit SL and TP orders for each
// Limit-typed pair. Market-typed pairs are deliberately left unplaced — they are
// monitored by the Candle Protection Checker instead (spec.md §4.5).
func (m *Manager) placeProtectiveOrders(g *domain.OrderGroup) {
	closeSide := g.EntrySpec.Side.Opposite()
	for _, slot := range g.PairSlots() {
		if slot.Spec.OrderType != domain.Limit {
			continue
		}
		vol := slot.Spec.EffectiveVolume(g.EntrySpec.Volume)

		slOrder, err := m.brk.PlaceOrder(domain.OrderSpec{
			Security: g.EntrySpec.Security, Side: closeSide,
			Price: slot.Spec.StopLossPrice, Volume: vol, Type: domain.Limit,
		})
		if err != nil {
			log.Error().Err(err).Str("group_id", g.GroupID).Msg("failed to place SL order")
		} else {
			m.reg.SetPairOrder(g.GroupID, slot.PairID, true, slOrder)
		}

		tpOrder, err := m.brk.PlaceOrder(domain.OrderSpec{
			Security: g.EntrySpec.Security, Side: closeSide,
			Price: slot.Spec.TakeProfitPrice, Volume: vol, Type: domain.Limit,
		})
		if err != nil {
			log.Error().Err(err).Str("group_id", g.GroupID).Msg("failed to place TP order")
		} else {
			m.reg.SetPairOrder(g.GroupID, slot.PairID, false, tpOrder)
		}
	}
}

// handleProtectiveFill implements the "Protective-fill path" of
// spec.md §4.6.2.
func (m *Manager) handleProtectiveFill(g *domain.OrderGroup, trade domain.Trade) error {
	slot, _, _ := g.FindPairByOrder(trade.Order.ID)
	if slot == nil {
		return nil
	}

	if trade.Order.Balance.GreaterThan(decimal.Zero) {
		key := retry.Key{GroupID: g.GroupID, PairID: slot.PairID}
		_, err := m.retryHandler.InitiateRetry(key, trade.Order.Balance, trade.Order.Spec.Side, m.marketPlacer(g.EntrySpec.Security))
		return err
	}

	m.cancelOpposingSibling(g, slot, trade.Order.ID)
	m.finalizePair(g, slot.PairID)
	return nil
}

func (m *Manager) cancelOpposingSibling(g *domain.OrderGroup, slot *domain.PairSlot, filledOrderID domain.OrderID) {
	if slot.SL != nil && slot.SL.ID != filledOrderID && slot.SL.State == domain.OrderActive {
		_ = m.brk.CancelOrder(slot.SL)
	}
	if slot.TP != nil && slot.TP.ID != filledOrderID && slot.TP.State == domain.OrderActive {
		_ = m.brk.CancelOrder(slot.TP)
	}
}

func (m *Manager) finalizePair(g *domain.OrderGroup, pairID domain.PairID) {
	empty := m.reg.RemovePair(g.GroupID, pairID)
	if empty {
		m.closeGroup(g, events.Event{Kind: events.KindGroupCompleted, GroupID: g.GroupID})
	}
}

// closeGroup closes g in the registry, publishes e and, if configured,
// archives the closed group via onGroupClosed.
func (m *Manager) closeGroup(g *domain.OrderGroup, e events.Event) {
	m.reg.CloseGroup(g.GroupID)
	m.publish(e)
	if m.onGroupClosed != nil {
		m.onGroupClosed(g)
	}
}

// OnOrderStateChanged implements spec.md §4.6.3: non-trade lifecycle
// transitions of the entry order (expiry untouched, or failure) close the
// group without ever having placed protective orders.
func (m *Manager) OnOrderStateChanged(order *domain.Order) error {
	g, ok := m.reg.FindGroupByOrder(order.ID)
	if !ok {
		return nil
	}
	if g.EntryOrder == nil || g.EntryOrder.ID != order.ID {
		return nil
	}

	expiredUntouched := order.State == domain.OrderDone && order.Balance.Equal(order.Spec.Volume)
	if !expiredUntouched && order.State != domain.OrderFailed {
		return nil
	}

	for _, slot := range g.PairSlots() {
		if slot.SL != nil && slot.SL.State == domain.OrderActive {
			_ = m.brk.CancelOrder(slot.SL)
		}
		if slot.TP != nil && slot.TP.State == domain.OrderActive {
			_ = m.brk.CancelOrder(slot.TP)
		}
		m.reg.RemovePair(g.GroupID, slot.PairID)
	}
	m.closeGroup(g, events.Event{Kind: events.KindGroupCancelled, GroupID: g.GroupID, Reason: string(order.State)})
	return nil
}

// CheckProtectionLevels implements spec.md §4.6.4: delegate to the Candle
// Protection Checker and cache the candle for the same-bar entry-fill path.
func (m *Manager) CheckProtectionLevels(candle domain.CandleMessage) bool {
	m.mu.Lock()
	c := candle
	m.lastCandle = &c
	m.mu.Unlock()

	return m.checker.CheckProtectionLevels(candle)
}

// CloseAllPositions implements spec.md §4.6.5.
func (m *Manager) CloseAllPositions() {
	for _, g := range m.reg.ActiveGroups() {
		if g.EntryOrder != nil && g.EntryOrder.State == domain.OrderActive {
			_ = m.brk.CancelOrder(g.EntryOrder)
		}
		for _, slot := range g.PairSlots() {
			if slot.SL != nil && slot.SL.State == domain.OrderActive {
				_ = m.brk.CancelOrder(slot.SL)
			}
			if slot.TP != nil && slot.TP.State == domain.OrderActive {
				_ = m.brk.CancelOrder(slot.TP)
			}
		}

		if g.State == domain.EntryFilled || g.State == domain.ProtectionActive {
			vol := g.TotalOpenVolume()
			if vol.GreaterThan(decimal.Zero) {
				_, err := m.brk.PlaceOrder(domain.OrderSpec{
					Security: g.EntrySpec.Security,
					Side:     g.EntrySpec.Side.Opposite(),
					Price:    decimal.Zero,
					Volume:   vol,
					Type:     domain.Market,
				})
				if err != nil {
					log.Error().Err(err).Str("group_id", g.GroupID).Msg("flatten order failed")
				}
			}
		}

		m.closeGroup(g, events.Event{Kind: events.KindGroupCancelled, GroupID: g.GroupID, Reason: "close_all_positions"})
	}
}

// Reset implements spec.md §4.6.6.
func (m *Manager) Reset() {
	m.reg.Reset()
	m.retryHandler.Reset()
	m.mu.Lock()
	m.lastCandle = nil
	m.mu.Unlock()
}

func (m *Manager) marketPlacer(security string) retry.PlaceMarket {
	return func(side domain.Side, volume decimal.Decimal) (*domain.Order, error) {
		return m.brk.PlaceOrder(domain.OrderSpec{
			Security: security,
			Side:     side,
			Price:    decimal.Zero,
			Volume:   volume,
			Type:     domain.Market,
		})
	}
}

func (m *Manager) publish(e events.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}
