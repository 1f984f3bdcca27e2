// Package window maintains sliding time windows over the event stream for
// velocity and frequency signals.
package window

import (
	"time"

	"txn-sentinel/internal/domain"
)

// Entry is one element of the global window.
type Entry struct {
	Timestamp time.Time
	Merchant  string
	Amount    float64
}

// Tracker maintains a global recent-event window and one window per
// merchant, both time-bounded and front-evicted. Eviction advances with
// each event's own timestamp, not wall-clock time, so batched historical
// input catches windows up correctly. Ingestion order is assumed to match
// event-time order; out-of-order input can leave stale entries.
type Tracker struct {
	window time.Duration

	global   []Entry
	merchant map[string][]time.Time
}

// NewTracker creates a Tracker with the given window duration.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		window:   window,
		merchant: make(map[string][]time.Time),
	}
}

// Observe appends the event to the global window and to its merchant's
// window, then evicts entries older than event.Timestamp - window from the
// front of both touched windows.
func (t *Tracker) Observe(e *domain.TransactionEvent) {
	t.global = append(t.global, Entry{
		Timestamp: e.Timestamp,
		Merchant:  e.Merchant,
		Amount:    e.Amount,
	})
	t.merchant[e.Merchant] = append(t.merchant[e.Merchant], e.Timestamp)

	cutoff := e.Timestamp.Add(-t.window)

	evicted := 0
	for evicted < len(t.global) && t.global[evicted].Timestamp.Before(cutoff) {
		evicted++
	}
	// Front eviction by reslice: append reallocates live entries once the
	// tail capacity runs out, so the dead front does not accumulate.
	t.global = t.global[evicted:]

	mw := t.merchant[e.Merchant]
	evicted = 0
	for evicted < len(mw) && mw[evicted].Before(cutoff) {
		evicted++
	}
	t.merchant[e.Merchant] = mw[evicted:]
}

// Window returns the configured window duration.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// GlobalSize returns the number of entries in the global window.
func (t *Tracker) GlobalSize() int {
	return len(t.global)
}

// CountGlobal returns the number of global entries matching the predicate.
func (t *Tracker) CountGlobal(pred func(Entry) bool) int {
	count := 0
	for _, e := range t.global {
		if pred(e) {
			count++
		}
	}
	return count
}

// MerchantSize returns the number of entries in a merchant's window.
func (t *Tracker) MerchantSize(merchant string) int {
	return len(t.merchant[merchant])
}
