package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SignalKey is the exact-equality triple a strategy re-emits bar after bar.
// Equality is bit-exact on purpose (spec.md §4.1): indicator output is
// deterministic per bar, so no tolerance is applied here.
type SignalKey struct {
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Equal reports bit-exact equality between two signal keys.
func (k SignalKey) Equal(other SignalKey) bool {
	return k.EntryPrice.Equal(other.EntryPrice) &&
		k.StopLoss.Equal(other.StopLoss) &&
		k.TakeProfit.Equal(other.TakeProfit)
}

// ProtectivePair is one stop-loss/take-profit tuple attached to an entry.
type ProtectivePair struct {
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	Volume          decimal.Decimal // optional; zero means "defaults to entry volume"
	OrderType       OrderType
}

// Validate checks the pair against the entry side and price per spec.md §3.
func (p ProtectivePair) Validate(entrySide Side, entryPrice decimal.Decimal) error {
	if !p.Volume.IsZero() && p.Volume.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: non-positive pair volume %s", ErrInvalidSignal, p.Volume)
	}
	switch entrySide {
	case Buy:
		if !(p.StopLossPrice.LessThan(entryPrice) && entryPrice.LessThan(p.TakeProfitPrice)) {
			return fmt.Errorf("%w: long pair requires SL < entry < TP", ErrInvalidSignal)
		}
	case Sell:
		if !(p.StopLossPrice.GreaterThan(entryPrice) && entryPrice.GreaterThan(p.TakeProfitPrice)) {
			return fmt.Errorf("%w: short pair requires SL > entry > TP", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown entry side %q", ErrInvalidSignal, entrySide)
	}
	switch p.OrderType {
	case Limit, Market:
	default:
		return fmt.Errorf("%w: unknown protective order type %q", ErrInvalidSignal, p.OrderType)
	}
	return nil
}

// EffectiveVolume returns the pair's configured volume, or entryVolume when
// the pair left it unset.
func (p ProtectivePair) EffectiveVolume(entryVolume decimal.Decimal) decimal.Decimal {
	if p.Volume.IsZero() {
		return entryVolume
	}
	return p.Volume
}

// OrderRequest is a full trading signal: one entry plus its ordered,
// non-empty protective pairs.
type OrderRequest struct {
	Entry           OrderSpec
	ProtectivePairs []ProtectivePair
}

// Validate enforces spec.md §3's OrderRequest invariant: with more than one
// pair, volumes must sum exactly to the entry volume; with exactly one pair,
// the pair volume may be less than or equal to the entry volume.
func (r OrderRequest) Validate() error {
	if err := r.Entry.Validate(); err != nil {
		return err
	}
	if len(r.ProtectivePairs) == 0 {
		return fmt.Errorf("%w: order request needs at least one protective pair", ErrInvalidSignal)
	}
	for i, p := range r.ProtectivePairs {
		if err := p.Validate(r.Entry.Side, r.Entry.Price); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
	}
	if len(r.ProtectivePairs) == 1 {
		v := r.ProtectivePairs[0].EffectiveVolume(r.Entry.Volume)
		if v.GreaterThan(r.Entry.Volume) {
			return fmt.Errorf("%w: single pair volume %s exceeds entry volume %s", ErrVolumeMismatch, v, r.Entry.Volume)
		}
		return nil
	}
	sum := decimal.Zero
	for _, p := range r.ProtectivePairs {
		sum = sum.Add(p.EffectiveVolume(r.Entry.Volume))
	}
	if !sum.Equal(r.Entry.Volume) {
		return fmt.Errorf("%w: pair volumes sum to %s, entry volume is %s", ErrVolumeMismatch, sum, r.Entry.Volume)
	}
	return nil
}

// SignalKeyOf extracts the (entry, SL, TP) triple used for deduplication,
// taking SL and TP from the request's first protective pair; later pairs do
// not contribute to the key. Matching on every pair happens at the group
// level instead (see registry.FindMatchingGroup).
func (r OrderRequest) SignalKeyOf() SignalKey {
	var sl, tp decimal.Decimal
	if len(r.ProtectivePairs) > 0 {
		sl = r.ProtectivePairs[0].StopLossPrice
		tp = r.ProtectivePairs[0].TakeProfitPrice
	}
	return SignalKey{
		EntryPrice: r.Entry.Price,
		StopLoss:   sl,
		TakeProfit: tp,
	}
}
