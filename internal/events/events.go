// Package events implements the Event Bus (C9): a fire-and-forget, queued
// channel of typed lifecycle events the embedding strategy or a logging/
// notification sink may observe. Per spec.md §4.9 publishing never blocks the
// caller and subscribers must not block the bus, so dispatch happens on a
// dedicated goroutine draining a buffered channel (spec.md §9 "Design Notes"
// recommends exactly this over the source's multicast-callback approach).
package events

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
)

// Kind tags the variant of an Event.
type Kind string

const (
	KindOrderActivated              Kind = "OrderActivated"
	KindGroupCompleted              Kind = "GroupCompleted"
	KindGroupCancelled              Kind = "GroupCancelled"
	KindOrderRejected               Kind = "OrderRejected"
	KindPartialFillRetry            Kind = "PartialFillRetry"
	KindMaxRetryReached             Kind = "MaxRetryReached"
	KindMaxConcurrentGroupsReached  Kind = "MaxConcurrentGroupsReached"
)

// Event is a single tagged, immutable notification published on the bus.
type Event struct {
	Kind       Kind
	GroupID    string
	PairID     string
	OrderID    domain.OrderID
	Side       domain.Side
	Volume     decimal.Decimal
	Attempt    int
	Reason     string
}

// Bus is the queued, multi-subscriber event channel.
type Bus struct {
	mu          sync.Mutex
	subscribers []chan Event
	in          chan Event
	done        chan struct{}
}

// New creates a Bus with the given inbound queue depth and starts its
// dispatch loop.
func New(queueDepth int) *Bus {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	b := &Bus{
		in:   make(chan Event, queueDepth),
		done: make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a new subscriber and returns the channel it will
// receive events on. The returned channel is buffered; a slow subscriber
// drops events rather than blocking the bus (fire-and-forget, spec.md §4.9).
func (b *Bus) Subscribe(queueDepth int) <-chan Event {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	ch := make(chan Event, queueDepth)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish enqueues an event. It never blocks: if the bus's inbound queue is
// full the event is dropped silently, and nothing records the drop.
func (b *Bus) Publish(e Event) {
	select {
	case b.in <- e:
	default:
	}
}

// Close stops the dispatch loop and closes every subscriber channel.
func (b *Bus) Close() {
	close(b.done)
}

func (b *Bus) dispatch() {
	for {
		select {
		case <-b.done:
			b.mu.Lock()
			for _, ch := range b.subscribers {
				close(ch)
			}
			b.mu.Unlock()
			return
		case e := <-b.in:
			b.mu.Lock()
			subs := b.subscribers
			b.mu.Unlock()
			for _, ch := range subs {
				select {
				case ch <- e:
				default:
				}
			}
		}
	}
}
