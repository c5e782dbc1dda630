// Package domain holds the value and entity types shared by every component
// of the order group lifecycle engine: signals, protective pairs, order
// requests, live order handles, trades and candles. Nothing in this package
// talks to a broker or a feed — it is pure data plus the small amount of
// validation spec.md requires at construction time.
package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errors returned synchronously from constructors (spec.md §7: construction-time
// validation failures surface immediately; everything else is reported async
// via the event bus).
var (
	ErrInvalidSignal    = errors.New("invalid signal")
	ErrVolumeMismatch   = errors.New("protective pair volumes do not sum to entry volume")
	ErrCapacityExceeded = errors.New("max concurrent groups reached")
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes resting limit orders from immediate market orders.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// OrderState is the broker-observed lifecycle state of a placed order.
type OrderState string

const (
	OrderActive OrderState = "ACTIVE"
	OrderDone   OrderState = "DONE"
	OrderFailed OrderState = "FAILED"
)

// OrderID identifies a broker order. Assigned at place time; used as the
// lookup key everywhere instead of pointer/reference identity (spec.md §9).
type OrderID string

// OrderSpec is the bit-exact order specification sent to the broker port (C7).
type OrderSpec struct {
	Security string
	Side     Side
	Price    decimal.Decimal // 0 for Market, > 0 for Limit
	Volume   decimal.Decimal
	Type     OrderType
}

// Validate enforces spec.md §6's "Order specification format" invariants.
func (s OrderSpec) Validate() error {
	if s.Volume.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: non-positive volume %s", ErrInvalidSignal, s.Volume)
	}
	switch s.Type {
	case Market:
		if !s.Price.IsZero() {
			return fmt.Errorf("%w: market order must carry zero price", ErrInvalidSignal)
		}
	case Limit:
		if s.Price.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: limit order must carry a positive price", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidSignal, s.Type)
	}
	if s.Side != Buy && s.Side != Sell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidSignal, s.Side)
	}
	return nil
}

// Order is the live, broker-observed handle returned by Broker.PlaceOrder.
// Balance is the remaining unfilled volume; it reaches zero on a full fill.
type Order struct {
	ID      OrderID
	Spec    OrderSpec
	State   OrderState
	Balance decimal.Decimal
}

// IsFullyFilled reports whether the order has no remaining volume.
func (o Order) IsFullyFilled() bool {
	return o.Balance.IsZero()
}

// Trade is a single fill notification for an order.
type Trade struct {
	Order      *Order
	TradePrice decimal.Decimal
	TradeVol   decimal.Decimal
	ServerTime int64 // unix nanos; supplied by the caller, never time.Now()
}

// CandleState distinguishes an in-progress bar from a finished one.
type CandleState string

const (
	CandleActive   CandleState = "ACTIVE"
	CandleFinished CandleState = "FINISHED"
)

// CandleMessage is a single OHLC bar.
type CandleMessage struct {
	OpenTime int64
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	State    CandleState
}
