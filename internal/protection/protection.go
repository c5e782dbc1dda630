// Package protection implements the Candle Protection Checker (C5): for
// protective pairs configured with Market order type (no resting limit
// orders), it detects SL/TP crossings from finished-candle OHLC and closes
// the position synthetically.
package protection

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/broker"
	"github.com/algoforge/ordergroup/internal/domain"
	"github.com/algoforge/ordergroup/internal/events"
	"github.com/algoforge/ordergroup/internal/registry"
)

// Checker holds the collaborators needed to evaluate and close pairs.
type Checker struct {
	reg *registry.Registry
	brk broker.Broker
	bus *events.Bus
}

// New creates a Checker.
func New(reg *registry.Registry, brk broker.Broker, bus *events.Bus) *Checker {
	return &Checker{reg: reg, brk: brk, bus: bus}
}

// CheckProtectionLevels iterates every group in ProtectionActive and tests
// its Market-typed pairs against candle. It closes at most one pair — the
// first hit found — and returns whether a hit occurred, per spec.md §4.5.
func (c *Checker) CheckProtectionLevels(candle domain.CandleMessage) bool {
	for _, g := range c.reg.ActiveGroups() {
		if g.State != domain.ProtectionActive {
			continue
		}
		if c.CheckGroup(g, candle) {
			return true
		}
	}
	return false
}

// CheckGroup tests a single group's Market-typed pairs against candle and
// closes the first hit. It is also used directly by the Order Position
// Manager for the same-bar entry-fill edge case (spec.md §4.6.2), where the
// group has not yet transitioned to ProtectionActive and its pairs have no
// broker orders placed at all.
func (c *Checker) CheckGroup(g *domain.OrderGroup, candle domain.CandleMessage) bool {
	for _, slot := range g.PairSlots() {
		if slot.Spec.OrderType != domain.Market {
			continue
		}
		hit, closeSide := testHit(g.EntrySpec.Side, slot.Spec, candle)
		if !hit {
			continue
		}
		c.closePair(g, slot, closeSide)
		return true
	}
	return false
}

// testHit applies spec.md §4.5's SL-before-TP ordering per entry side.
func testHit(entrySide domain.Side, pair domain.ProtectivePair, candle domain.CandleMessage) (bool, domain.Side) {
	switch entrySide {
	case domain.Buy:
		if candle.Low.LessThanOrEqual(pair.StopLossPrice) {
			return true, domain.Sell
		}
		if candle.High.GreaterThanOrEqual(pair.TakeProfitPrice) {
			return true, domain.Sell
		}
	case domain.Sell:
		if candle.High.GreaterThanOrEqual(pair.StopLossPrice) {
			return true, domain.Buy
		}
		if candle.Low.LessThanOrEqual(pair.TakeProfitPrice) {
			return true, domain.Buy
		}
	}
	return false, ""
}

// closePair implements spec.md §4.5's "Close-pair semantics on candle hit".
func (c *Checker) closePair(g *domain.OrderGroup, slot *domain.PairSlot, closeSide domain.Side) {
	slAlreadyFilled := slot.SL != nil && slot.SL.State == domain.OrderDone && slot.SL.Balance.IsZero()
	tpAlreadyFilled := slot.TP != nil && slot.TP.State == domain.OrderDone && slot.TP.Balance.IsZero()
	alreadyClosed := slAlreadyFilled || tpAlreadyFilled

	if slot.SL != nil && slot.SL.State == domain.OrderActive {
		_ = c.brk.CancelOrder(slot.SL)
	}
	if slot.TP != nil && slot.TP.State == domain.OrderActive {
		_ = c.brk.CancelOrder(slot.TP)
	}

	if !alreadyClosed {
		vol := slot.Spec.EffectiveVolume(g.EntrySpec.Volume)
		order, err := c.brk.PlaceOrder(domain.OrderSpec{
			Security: g.EntrySpec.Security,
			Side:     closeSide,
			Price:    decimal.Zero,
			Volume:   vol,
			Type:     domain.Market,
		})
		if err != nil {
			log.Error().Err(err).Str("group_id", g.GroupID).Str("pair_id", string(slot.PairID)).Msg("candle-triggered recovery order failed")
		} else {
			log.Info().
				Str("group_id", g.GroupID).
				Str("pair_id", string(slot.PairID)).
				Str("order_id", string(order.ID)).
				Str("side", string(closeSide)).
				Str("volume", vol.String()).
				Msg("candle hit: synthetic market close placed")
		}
	}

	empty := c.reg.RemovePair(g.GroupID, slot.PairID)
	if empty {
		c.reg.CloseGroup(g.GroupID)
		c.publish(events.Event{Kind: events.KindGroupCompleted, GroupID: g.GroupID})
	}
}

func (c *Checker) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
