// Package broker defines the Broker Operations Port (C7): the abstract
// interface the engine's core uses to place and cancel orders. Concrete
// implementations (internal/broker/simbroker, internal/broker/clobbroker)
// are external collaborators per spec.md §1 — the core never inspects their
// internals, only the Order handles and Trade/state callbacks they produce.
package broker

import (
	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
)

// Broker is the minimal surface the engine needs to operate.
type Broker interface {
	// PlaceOrder submits spec and returns a live order handle. The handle's
	// State and Balance are observed through later Trade/state callbacks,
	// not polled back from the broker (spec.md §4.7).
	PlaceOrder(spec domain.OrderSpec) (*domain.Order, error)

	// CancelOrder is a best-effort cancellation; the broker emits a
	// follow-up state change rather than returning it synchronously.
	CancelOrder(order *domain.Order) error
}

// SecurityInfo is the read-only price-step accessor spec.md §4.7 mentions.
type SecurityInfo interface {
	PriceStep(security string) (decimal.Decimal, error)
}

// PortfolioInfo is the read-only current-value accessor spec.md §4.7
// mentions.
type PortfolioInfo interface {
	PortfolioValue() (decimal.Decimal, error)
}
