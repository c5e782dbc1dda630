package simbroker

import (
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

func TestPlaceOrder_CreatesActiveOrderWithFullBalance(t *testing.T) {
	b := New()
	order, err := b.PlaceOrder(domain.OrderSpec{Security: "BTCUSDT", Side: domain.Buy, Price: dec("100"), Volume: dec("2"), Type: domain.Limit})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.State != domain.OrderActive || !order.Balance.Equal(dec("2")) {
		t.Fatalf("expected active order with balance 2, got state=%v balance=%s", order.State, order.Balance)
	}
}

func TestPlaceOrder_RejectsInvalidSpec(t *testing.T) {
	b := New()
	_, err := b.PlaceOrder(domain.OrderSpec{Security: "BTCUSDT", Side: domain.Buy, Price: decimal.Zero, Volume: decimal.Zero, Type: domain.Limit})
	if err == nil {
		t.Fatal("expected validation error for zero-volume limit order")
	}
}

func TestFill_PartialFillLeavesOrderActive(t *testing.T) {
	b := New()
	order, _ := b.PlaceOrder(domain.OrderSpec{Security: "BTCUSDT", Side: domain.Buy, Price: dec("100"), Volume: dec("10"), Type: domain.Limit})
	trade := b.Fill(order, dec("100"), dec("4"))

	if !trade.Order.Balance.Equal(dec("6")) {
		t.Fatalf("expected balance 6 after partial fill, got %s", trade.Order.Balance)
	}
	if trade.Order.State != domain.OrderActive {
		t.Fatalf("expected order to remain Active after partial fill, got %v", trade.Order.State)
	}
}

func TestFill_FullFillMarksOrderDone(t *testing.T) {
	b := New()
	order, _ := b.PlaceOrder(domain.OrderSpec{Security: "BTCUSDT", Side: domain.Buy, Price: dec("100"), Volume: dec("10"), Type: domain.Limit})
	trade := b.Fill(order, dec("100"), dec("10"))

	if !trade.Order.Balance.IsZero() {
		t.Fatalf("expected zero balance after full fill, got %s", trade.Order.Balance)
	}
	if trade.Order.State != domain.OrderDone {
		t.Fatalf("expected order Done after full fill, got %v", trade.Order.State)
	}
}

func TestCancelOrder_MarksActiveOrderDoneAndRecordsCancel(t *testing.T) {
	b := New()
	order, _ := b.PlaceOrder(domain.OrderSpec{Security: "BTCUSDT", Side: domain.Buy, Price: dec("100"), Volume: dec("10"), Type: domain.Limit})

	if err := b.CancelOrder(order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.WasCancelled(order.ID) {
		t.Fatal("expected WasCancelled to report true")
	}
	tracked, _ := b.Order(order.ID)
	if tracked.State != domain.OrderDone {
		t.Fatalf("expected order Done after cancel, got %v", tracked.State)
	}
}

func TestCancelOrder_UnknownOrderIsTolerated(t *testing.T) {
	b := New()
	err := b.CancelOrder(&domain.Order{ID: "nonexistent"})
	if err != nil {
		t.Fatalf("expected nil error for unknown order, got %v", err)
	}
}

func TestExpire_MarksOrderDoneWithUntouchedBalance(t *testing.T) {
	b := New()
	order, _ := b.PlaceOrder(domain.OrderSpec{Security: "BTCUSDT", Side: domain.Buy, Price: dec("100"), Volume: dec("10"), Type: domain.Limit})
	b.Expire(order)
	tracked, _ := b.Order(order.ID)
	if tracked.State != domain.OrderDone || !tracked.Balance.Equal(dec("10")) {
		t.Fatalf("expected Done with balance 10, got state=%v balance=%s", tracked.State, tracked.Balance)
	}
}

func TestPriceStepAndPortfolioValue(t *testing.T) {
	b := New()
	step, err := b.PriceStep("BTCUSDT")
	if err != nil || !step.Equal(dec("0.01")) {
		t.Fatalf("expected price step 0.01, got %s err=%v", step, err)
	}
	val, err := b.PortfolioValue()
	if err != nil || !val.IsZero() {
		t.Fatalf("expected zero portfolio value, got %s err=%v", val, err)
	}
}
