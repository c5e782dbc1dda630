package notify

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/events"
)

func TestRender_MaxRetryReached(t *testing.T) {
	msg, ok := render(events.Event{
		Kind: events.KindMaxRetryReached, GroupID: "g1", PairID: "p1",
		Side: "SELL", Volume: decimal.NewFromInt(3), Attempt: 5,
	})
	if !ok {
		t.Fatal("expected KindMaxRetryReached to render")
	}
	if !strings.Contains(msg, "MANUAL INTERVENTION") || !strings.Contains(msg, "g1") {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestRender_MaxConcurrentGroupsReached(t *testing.T) {
	msg, ok := render(events.Event{Kind: events.KindMaxConcurrentGroupsReached})
	if !ok {
		t.Fatal("expected KindMaxConcurrentGroupsReached to render")
	}
	if !strings.Contains(msg, "CAPACITY") {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestRender_GroupCancelledIncludesReasonWhenPresent(t *testing.T) {
	withReason, ok := render(events.Event{Kind: events.KindGroupCancelled, GroupID: "g1", Reason: "manual stop"})
	if !ok || !strings.Contains(withReason, "manual stop") {
		t.Fatalf("expected reason in message, got %q", withReason)
	}

	withoutReason, ok := render(events.Event{Kind: events.KindGroupCancelled, GroupID: "g1"})
	if !ok || strings.Contains(withoutReason, "reason:") {
		t.Fatalf("expected no reason line, got %q", withoutReason)
	}
}

func TestRender_UnhandledKindIsSkipped(t *testing.T) {
	_, ok := render(events.Event{Kind: events.KindOrderActivated})
	if ok {
		t.Fatal("expected OrderActivated to not produce a notification")
	}
}
