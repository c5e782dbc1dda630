package domain

import "testing"

func newTestGroup() *OrderGroup {
	g := &OrderGroup{
		GroupID:   "g1",
		EntrySpec: OrderSpec{Security: "BTCUSDT", Side: Buy, Price: dec("100"), Volume: dec("10"), Type: Limit},
		Pairs:     make(map[PairID]*PairSlot),
		State:     Pending,
	}
	for _, id := range []PairID{"p1", "p2"} {
		g.Pairs[id] = &PairSlot{PairID: id, Spec: ProtectivePair{StopLossPrice: dec("90"), TakeProfitPrice: dec("110"), Volume: dec("5"), OrderType: Limit}}
		g.PairOrder = append(g.PairOrder, id)
	}
	return g
}

func TestPairSlotsPreservesOrder(t *testing.T) {
	g := newTestGroup()
	slots := g.PairSlots()
	if len(slots) != 2 || slots[0].PairID != "p1" || slots[1].PairID != "p2" {
		t.Fatalf("unexpected slot order: %+v", slots)
	}
}

func TestFindPairByOrder(t *testing.T) {
	g := newTestGroup()
	sl := &Order{ID: "sl-1"}
	g.Pairs["p1"].SL = sl

	slot, isSL, isTP := g.FindPairByOrder("sl-1")
	if slot == nil || slot.PairID != "p1" || !isSL || isTP {
		t.Fatalf("expected to find p1 via SL, got %+v isSL=%v isTP=%v", slot, isSL, isTP)
	}

	missing, _, _ := g.FindPairByOrder("nonexistent")
	if missing != nil {
		t.Fatal("expected nil for unknown order id")
	}
}

func TestTotalOpenVolume(t *testing.T) {
	g := newTestGroup()
	if got := g.TotalOpenVolume(); !got.Equal(dec("10")) {
		t.Fatalf("expected 10 (5+5), got %s", got)
	}

	delete(g.Pairs, "p2")
	if got := g.TotalOpenVolume(); !got.Equal(dec("5")) {
		t.Fatalf("expected 5 after removing a pair, got %s", got)
	}
}
