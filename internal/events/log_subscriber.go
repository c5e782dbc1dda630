package events

import "github.com/rs/zerolog/log"

// RunLogSubscriber drains ch and logs every event with zerolog, matching the
// teacher's structured-field logging style (risk/manager.go, risk/gate.go).
// Intended to run in its own goroutine for the lifetime of the bus.
func RunLogSubscriber(ch <-chan Event) {
	for e := range ch {
		entry := log.Info()
		switch e.Kind {
		case KindMaxRetryReached, KindMaxConcurrentGroupsReached, KindOrderRejected:
			entry = log.Warn()
		case KindGroupCancelled:
			entry = log.Warn()
		}

		entry = entry.Str("kind", string(e.Kind))
		if e.GroupID != "" {
			entry = entry.Str("group_id", e.GroupID)
		}
		if e.PairID != "" {
			entry = entry.Str("pair_id", e.PairID)
		}
		if e.OrderID != "" {
			entry = entry.Str("order_id", string(e.OrderID))
		}
		if e.Side != "" {
			entry = entry.Str("side", string(e.Side))
		}
		if !e.Volume.IsZero() {
			entry = entry.Str("volume", e.Volume.String())
		}
		if e.Attempt > 0 {
			entry = entry.Int("attempt", e.Attempt)
		}
		if e.Reason != "" {
			entry = entry.Str("reason", e.Reason)
		}
		entry.Msg(string(e.Kind))
	}
}
