package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupState is the lifecycle stage of an OrderGroup, per spec.md §4.2's
// state machine.
type GroupState string

const (
	Pending          GroupState = "PENDING"
	EntryFilled      GroupState = "ENTRY_FILLED"
	ProtectionActive GroupState = "PROTECTION_ACTIVE"
	Closed           GroupState = "CLOSED"
)

// PairID identifies one protective pair within a group.
type PairID string

// PairSlot holds the resting SL/TP order handles for one protective pair.
// Either order reference is nil until placed. Once the pair is removed
// (cancelled, filled, or recovered) the whole slot is deleted from the group.
type PairSlot struct {
	PairID PairID
	Spec   ProtectivePair
	SL     *Order
	TP     *Order
}

// OrderGroup is an entry plus its protective pairs, tracked jointly. It is
// owned exclusively by the Registry; callers mutate it only through the
// Registry's narrow methods, never by reaching into its fields directly
// (spec.md §9 "Mutable group state").
type OrderGroup struct {
	GroupID     string
	EntryOrder  *Order
	EntrySpec   OrderSpec
	Pairs       map[PairID]*PairSlot
	PairOrder   []PairID // insertion order, since spec.md's pairs are an ordered sequence
	State       GroupState
	CreatedAt   time.Time
	ActivatedAt time.Time
	CompletedAt time.Time
}

// PairSlots returns the group's pair slots in their original order.
func (g *OrderGroup) PairSlots() []*PairSlot {
	out := make([]*PairSlot, 0, len(g.PairOrder))
	for _, id := range g.PairOrder {
		if slot, ok := g.Pairs[id]; ok {
			out = append(out, slot)
		}
	}
	return out
}

// FindPairByOrder returns the pair slot containing the given order ID in its
// SL or TP reference, and which side it is.
func (g *OrderGroup) FindPairByOrder(id OrderID) (*PairSlot, bool, bool) {
	for _, slot := range g.Pairs {
		if slot.SL != nil && slot.SL.ID == id {
			return slot, true, false
		}
		if slot.TP != nil && slot.TP.ID == id {
			return slot, false, true
		}
	}
	return nil, false, false
}

// TotalOpenVolume sums the configured volume of every remaining pair,
// defaulting to the entry volume for unconfigured pairs. Used by
// close-all-positions to flatten a position with one market order.
func (g *OrderGroup) TotalOpenVolume() decimal.Decimal {
	total := decimal.Zero
	for _, slot := range g.Pairs {
		total = total.Add(slot.Spec.EffectiveVolume(g.EntrySpec.Volume))
	}
	return total
}
