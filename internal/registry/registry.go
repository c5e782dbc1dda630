// Package registry implements the Order Registry (C3): the exclusive owner
// of every OrderGroup (C2), enforcing the concurrency cap and providing the
// lookups the Order Position Manager needs (by order, by matching request).
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
)

// Registry owns every OrderGroup. No external package mutates a group
// directly; every state change goes through one of its narrow methods.
type Registry struct {
	mu                  sync.Mutex
	groups              map[string]*domain.OrderGroup
	maxConcurrentGroups int
}

// New creates a Registry capped at maxConcurrentGroups non-Closed groups.
func New(maxConcurrentGroups int) *Registry {
	if maxConcurrentGroups <= 0 {
		maxConcurrentGroups = 5
	}
	return &Registry{
		groups:              make(map[string]*domain.OrderGroup),
		maxConcurrentGroups: maxConcurrentGroups,
	}
}

// RegisterGroup validates and admits a new OrderRequest, returning a fresh
// Pending OrderGroup with generated group_id and per-pair pair_ids.
func (r *Registry) RegisterGroup(req domain.OrderRequest) (*domain.OrderGroup, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeCountLocked() >= r.maxConcurrentGroups {
		return nil, fmt.Errorf("%w: %d active groups at cap %d", domain.ErrCapacityExceeded, r.activeCountLocked(), r.maxConcurrentGroups)
	}

	g := &domain.OrderGroup{
		GroupID:   uuid.New().String(),
		EntrySpec: req.Entry,
		Pairs:     make(map[domain.PairID]*domain.PairSlot),
		State:     domain.Pending,
		CreatedAt: time.Now(),
	}
	for _, spec := range req.ProtectivePairs {
		pairID := domain.PairID(uuid.New().String())
		g.Pairs[pairID] = &domain.PairSlot{PairID: pairID, Spec: spec}
		g.PairOrder = append(g.PairOrder, pairID)
	}
	r.groups[g.GroupID] = g

	log.Info().
		Str("group_id", g.GroupID).
		Str("side", string(req.Entry.Side)).
		Str("entry_price", req.Entry.Price.String()).
		Int("pairs", len(req.ProtectivePairs)).
		Msg("group registered")

	return g, nil
}

// ActiveGroups returns every non-Closed group. Order is undefined, per
// spec.md §4.2.
func (r *Registry) ActiveGroups() []*domain.OrderGroup {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.OrderGroup, 0, len(r.groups))
	for _, g := range r.groups {
		if g.State != domain.Closed {
			out = append(out, g)
		}
	}
	return out
}

// FindGroupByOrder locates the group whose entry, SL, or TP slot references
// the given order ID.
func (r *Registry) FindGroupByOrder(id domain.OrderID) (*domain.OrderGroup, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.groups {
		if g.EntryOrder != nil && g.EntryOrder.ID == id {
			return g, true
		}
		if slot, _, _ := g.FindPairByOrder(id); slot != nil {
			return g, true
		}
	}
	return nil, false
}

// FindMatchingGroup returns the first non-Closed group whose EntrySpec and
// protective pairs match req within tolerance, per spec.md §3's matching key.
func (r *Registry) FindMatchingGroup(req domain.OrderRequest, tolerance decimal.Decimal) (*domain.OrderGroup, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.groups {
		if g.State == domain.Closed {
			continue
		}
		if matches(g, req, tolerance) {
			return g, true
		}
	}
	return nil, false
}

func matches(g *domain.OrderGroup, req domain.OrderRequest, tolerance decimal.Decimal) bool {
	if g.EntrySpec.Side != req.Entry.Side {
		return false
	}
	if g.EntrySpec.Price.Sub(req.Entry.Price).Abs().GreaterThan(tolerance) {
		return false
	}
	if !g.EntrySpec.Volume.Equal(req.Entry.Volume) {
		return false
	}
	existing := g.PairSlots()
	if len(existing) != len(req.ProtectivePairs) {
		return false
	}

	existingSpecs := make([]domain.ProtectivePair, len(existing))
	for i, s := range existing {
		existingSpecs[i] = s.Spec
	}
	wantSpecs := append([]domain.ProtectivePair(nil), req.ProtectivePairs...)

	sortPairSpecs(existingSpecs)
	sortPairSpecs(wantSpecs)

	for i := range existingSpecs {
		a, b := existingSpecs[i], wantSpecs[i]
		if !a.StopLossPrice.Equal(b.StopLossPrice) || !a.TakeProfitPrice.Equal(b.TakeProfitPrice) {
			return false
		}
		if !a.EffectiveVolume(g.EntrySpec.Volume).Equal(b.EffectiveVolume(req.Entry.Volume)) {
			return false
		}
	}
	return true
}

func sortPairSpecs(specs []domain.ProtectivePair) {
	sort.Slice(specs, func(i, j int) bool {
		if !specs[i].StopLossPrice.Equal(specs[j].StopLossPrice) {
			return specs[i].StopLossPrice.LessThan(specs[j].StopLossPrice)
		}
		return specs[i].TakeProfitPrice.LessThan(specs[j].TakeProfitPrice)
	})
}

// Reset drops every group.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[string]*domain.OrderGroup)
}

func (r *Registry) activeCountLocked() int {
	n := 0
	for _, g := range r.groups {
		if g.State != domain.Closed {
			n++
		}
	}
	return n
}

// ── Narrow mutation methods (spec.md §9 "Mutable group state") ──────────────

// SetEntryOrder attaches the live entry order handle to a Pending group,
// right after the broker places it.
func (r *Registry) SetEntryOrder(groupID string, order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[groupID]; ok {
		g.EntryOrder = order
	}
}

// MarkEntryFilled transitions a Pending group to EntryFilled.
func (r *Registry) MarkEntryFilled(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[groupID]; ok && g.State == domain.Pending {
		g.State = domain.EntryFilled
		g.ActivatedAt = time.Now()
	}
}

// SetPairOrder populates one side (SL or TP) of a pair's slot.
func (r *Registry) SetPairOrder(groupID string, pairID domain.PairID, isSL bool, order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return
	}
	slot, ok := g.Pairs[pairID]
	if !ok {
		return
	}
	if isSL {
		slot.SL = order
	} else {
		slot.TP = order
	}
}

// AllPairsPlaced reports whether every pair in the group has both its SL and
// TP order handles populated.
func (r *Registry) AllPairsPlaced(groupID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return false
	}
	for _, slot := range g.Pairs {
		if slot.SL == nil || slot.TP == nil {
			return false
		}
	}
	return true
}

// MarkProtectionActive transitions an EntryFilled group to ProtectionActive.
func (r *Registry) MarkProtectionActive(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[groupID]; ok && g.State == domain.EntryFilled {
		g.State = domain.ProtectionActive
	}
}

// RemovePair deletes a pair from a group and reports whether the group has
// no pairs left afterward.
func (r *Registry) RemovePair(groupID string, pairID domain.PairID) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return false
	}
	delete(g.Pairs, pairID)
	for i, id := range g.PairOrder {
		if id == pairID {
			g.PairOrder = append(g.PairOrder[:i], g.PairOrder[i+1:]...)
			break
		}
	}
	return len(g.Pairs) == 0
}

// CloseGroup transitions a group to Closed. Idempotent.
func (r *Registry) CloseGroup(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[groupID]; ok && g.State != domain.Closed {
		g.State = domain.Closed
		g.CompletedAt = time.Now()
		log.Info().Str("group_id", groupID).Msg("group closed")
	}
}

// Get returns the group for groupID, if any.
func (r *Registry) Get(groupID string) (*domain.OrderGroup, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	return g, ok
}
