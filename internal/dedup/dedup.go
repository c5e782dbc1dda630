// Package dedup implements the Signal Deduplicator (C1): suppression of a
// signal that exactly repeats the last one seen, so a persistent indicator
// output does not resubmit the same OrderRequest on every finished candle.
package dedup

import (
	"sync"

	"github.com/algoforge/ordergroup/internal/domain"
)

// Deduplicator holds at most one SignalKey deep, per spec.md §4.1.
type Deduplicator struct {
	mu   sync.Mutex
	last *domain.SignalKey
}

// New returns an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{}
}

// IsDuplicate returns true iff key exactly equals the last key observed.
// Otherwise it stores key and returns false.
func (d *Deduplicator) IsDuplicate(key domain.SignalKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last != nil && d.last.Equal(key) {
		return true
	}
	stored := key
	d.last = &stored
	return false
}

// Reset clears the stored triple; called by the strategy on position close.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = nil
}
