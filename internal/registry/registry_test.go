package registry

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Entry: domain.OrderSpec{Security: "BTCUSDT", Side: domain.Buy, Price: dec("100"), Volume: dec("10"), Type: domain.Limit},
		ProtectivePairs: []domain.ProtectivePair{
			{StopLossPrice: dec("90"), TakeProfitPrice: dec("120"), Volume: dec("10"), OrderType: domain.Limit},
		},
	}
}

func TestRegisterGroup_CreatesPendingGroupWithPairIDs(t *testing.T) {
	r := New(5)
	g, err := r.RegisterGroup(sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.State != domain.Pending {
		t.Fatalf("expected Pending, got %v", g.State)
	}
	if len(g.Pairs) != 1 || len(g.PairOrder) != 1 {
		t.Fatalf("expected 1 pair, got %d/%d", len(g.Pairs), len(g.PairOrder))
	}
}

func TestRegisterGroup_RejectsAtCapacity(t *testing.T) {
	r := New(1)
	if _, err := r.RegisterGroup(sampleRequest()); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	_, err := r.RegisterGroup(sampleRequest())
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestRegisterGroup_ClosedGroupsDontCountTowardCap(t *testing.T) {
	r := New(1)
	g, _ := r.RegisterGroup(sampleRequest())
	r.CloseGroup(g.GroupID)
	if _, err := r.RegisterGroup(sampleRequest()); err != nil {
		t.Fatalf("expected capacity to free up after close, got %v", err)
	}
}

func TestFindGroupByOrder_MatchesEntryAndPairOrders(t *testing.T) {
	r := New(5)
	g, _ := r.RegisterGroup(sampleRequest())
	r.SetEntryOrder(g.GroupID, &domain.Order{ID: "entry-1"})

	found, ok := r.FindGroupByOrder("entry-1")
	if !ok || found.GroupID != g.GroupID {
		t.Fatalf("expected to find group by entry order")
	}

	var pairID domain.PairID
	for id := range g.Pairs {
		pairID = id
	}
	r.SetPairOrder(g.GroupID, pairID, true, &domain.Order{ID: "sl-1"})
	found2, ok := r.FindGroupByOrder("sl-1")
	if !ok || found2.GroupID != g.GroupID {
		t.Fatalf("expected to find group by SL order")
	}

	if _, ok := r.FindGroupByOrder("nonexistent"); ok {
		t.Fatal("expected no match for unknown order id")
	}
}

func TestFindMatchingGroup_ToleratesSmallPriceDelta(t *testing.T) {
	r := New(5)
	req := sampleRequest()
	r.RegisterGroup(req)

	nearReq := req
	nearReq.Entry.Price = dec("100.0000001")
	if _, ok := r.FindMatchingGroup(nearReq, dec("0.001")); !ok {
		t.Fatal("expected match within tolerance")
	}

	farReq := req
	farReq.Entry.Price = dec("105")
	if _, ok := r.FindMatchingGroup(farReq, dec("0.001")); ok {
		t.Fatal("expected no match outside tolerance")
	}
}

func TestAllPairsPlaced(t *testing.T) {
	r := New(5)
	g, _ := r.RegisterGroup(sampleRequest())
	if r.AllPairsPlaced(g.GroupID) {
		t.Fatal("expected false before any orders placed")
	}
	var pairID domain.PairID
	for id := range g.Pairs {
		pairID = id
	}
	r.SetPairOrder(g.GroupID, pairID, true, &domain.Order{ID: "sl-1"})
	if r.AllPairsPlaced(g.GroupID) {
		t.Fatal("expected false with only SL placed")
	}
	r.SetPairOrder(g.GroupID, pairID, false, &domain.Order{ID: "tp-1"})
	if !r.AllPairsPlaced(g.GroupID) {
		t.Fatal("expected true once both SL and TP placed")
	}
}

func TestRemovePair_ReportsEmptyWhenLastPairRemoved(t *testing.T) {
	r := New(5)
	g, _ := r.RegisterGroup(sampleRequest())
	var pairID domain.PairID
	for id := range g.Pairs {
		pairID = id
	}
	empty := r.RemovePair(g.GroupID, pairID)
	if !empty {
		t.Fatal("expected empty=true after removing the only pair")
	}
}

func TestStateTransitions_PendingToEntryFilledToProtectionActiveToClosed(t *testing.T) {
	r := New(5)
	g, _ := r.RegisterGroup(sampleRequest())

	r.MarkProtectionActive(g.GroupID)
	got, _ := r.Get(g.GroupID)
	if got.State != domain.Pending {
		t.Fatal("MarkProtectionActive from Pending must be a no-op")
	}

	r.MarkEntryFilled(g.GroupID)
	got, _ = r.Get(g.GroupID)
	if got.State != domain.EntryFilled {
		t.Fatalf("expected EntryFilled, got %v", got.State)
	}

	r.MarkProtectionActive(g.GroupID)
	got, _ = r.Get(g.GroupID)
	if got.State != domain.ProtectionActive {
		t.Fatalf("expected ProtectionActive, got %v", got.State)
	}

	r.CloseGroup(g.GroupID)
	got, _ = r.Get(g.GroupID)
	if got.State != domain.Closed {
		t.Fatalf("expected Closed, got %v", got.State)
	}
}

func TestReset_DropsAllGroups(t *testing.T) {
	r := New(5)
	r.RegisterGroup(sampleRequest())
	r.Reset()
	if len(r.ActiveGroups()) != 0 {
		t.Fatal("expected no active groups after Reset")
	}
}
