// Package retry implements the Partial-Fill Retry Handler (C4): bounded
// market-order escalation of the residual volume left behind by a partially
// filled protective order.
package retry

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
	"github.com/algoforge/ordergroup/internal/events"
)

// MaxAttempts is the hard ceiling on retry attempts per (group, pair),
// spec.md §3's MAX_RETRY_ATTEMPTS constant.
const MaxAttempts = 5

// Key identifies one pair's retry bookkeeping entry.
type Key struct {
	GroupID string
	PairID  domain.PairID
}

// PlaceMarket places a market order for side/volume, mirroring the subset of
// the Broker Operations Port (C7) the retry handler needs.
type PlaceMarket func(side domain.Side, volume decimal.Decimal) (*domain.Order, error)

type retryState struct {
	attempts int
	order    *domain.Order
	side     domain.Side
}

// Handler owns all (group, pair) retry bookkeeping and the global
// manual-intervention flag.
type Handler struct {
	mu                        sync.Mutex
	state                     map[Key]*retryState
	requiresManualIntervention bool
	bus                       *events.Bus
}

// New creates a Handler that publishes PartialFillRetry / MaxRetryReached
// events on bus.
func New(bus *events.Bus) *Handler {
	return &Handler{
		state: make(map[Key]*retryState),
		bus:   bus,
	}
}

// InitiateRetry increments the attempt counter for key and, unless that push
// reaches MaxAttempts, places a market order for remainingVolume via
// placeMarket. Reaching the cap sets RequiresManualIntervention and emits
// MaxRetryReached instead of placing anything further.
func (h *Handler) InitiateRetry(key Key, remainingVolume decimal.Decimal, side domain.Side, placeMarket PlaceMarket) (*domain.Order, error) {
	h.mu.Lock()
	st, ok := h.state[key]
	if !ok {
		st = &retryState{side: side}
		h.state[key] = st
	}
	if st.attempts >= MaxAttempts {
		h.mu.Unlock()
		return nil, nil
	}
	st.attempts++
	attempt := st.attempts
	h.mu.Unlock()

	if attempt >= MaxAttempts {
		h.mu.Lock()
		h.requiresManualIntervention = true
		h.mu.Unlock()

		h.publish(events.Event{
			Kind:    events.KindMaxRetryReached,
			GroupID: key.GroupID,
			PairID:  string(key.PairID),
			Side:    side,
			Volume:  remainingVolume,
			Attempt: attempt,
		})
		return nil, nil
	}

	order, err := placeMarket(side, remainingVolume)
	if err != nil {
		return nil, fmt.Errorf("retry market order for %s/%s: %w", key.GroupID, key.PairID, err)
	}

	h.mu.Lock()
	st.order = order
	h.mu.Unlock()

	h.publish(events.Event{
		Kind:    events.KindPartialFillRetry,
		GroupID: key.GroupID,
		PairID:  string(key.PairID),
		OrderID: order.ID,
		Side:    side,
		Volume:  remainingVolume,
		Attempt: attempt,
	})
	return order, nil
}

// HandleRetryFill processes a trade against a retry order. If the retry
// order still carries a residual balance it escalates again via
// InitiateRetry and reports needsMore=true; otherwise it discards the retry
// bookkeeping for key and reports needsMore=false so the caller can finalize
// the pair.
func (h *Handler) HandleRetryFill(key Key, trade domain.Trade, placeMarket PlaceMarket) (needsMore bool, err error) {
	h.mu.Lock()
	st, ok := h.state[key]
	h.mu.Unlock()
	if !ok {
		return false, nil
	}

	if trade.Order.Balance.GreaterThan(decimal.Zero) {
		_, err := h.InitiateRetry(key, trade.Order.Balance, st.side, placeMarket)
		return true, err
	}

	h.mu.Lock()
	delete(h.state, key)
	h.mu.Unlock()
	return false, nil
}

// IsRetryOrder reports whether orderID is currently tracked as a retry order
// and, if so, the key it belongs to.
func (h *Handler) IsRetryOrder(orderID domain.OrderID) (Key, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k, st := range h.state {
		if st.order != nil && st.order.ID == orderID {
			return k, true
		}
	}
	return Key{}, false
}

// RequiresManualIntervention reports the global flag set once any pair hits
// MaxAttempts.
func (h *Handler) RequiresManualIntervention() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requiresManualIntervention
}

// AttemptCount returns the current attempt counter for key (0 if untracked).
func (h *Handler) AttemptCount(key Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.state[key]; ok {
		return st.attempts
	}
	return 0
}

// Reset drops all retry bookkeeping and clears the manual-intervention flag.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = make(map[Key]*retryState)
	h.requiresManualIntervention = false
}

func (h *Handler) publish(e events.Event) {
	if h.bus != nil {
		h.bus.Publish(e)
	}
}
