// Package rules derives behavioral anomaly labels from static thresholds
// and sliding window state.
package rules

import (
	"strings"

	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/window"
)

// Static rule thresholds.
const (
	HighLatencyMs      = 1000.0
	HighAmount         = 500000.0
	SmallAmount        = 2000.0
	BurstCount         = 8
	CardTestingCount   = 6
	MerchantSpikeCount = 10
	OffHourEnd         = 4 // hours 0..OffHourEnd are off-hours
	OddMerchantPrefix  = "odd_"
	OddRegionPrefix    = "odd_region"
)

// Evaluator applies the behavioral rule table to each event.
type Evaluator struct {
	windows *window.Tracker
}

// NewEvaluator creates an Evaluator over the given window tracker.
func NewEvaluator(windows *window.Tracker) *Evaluator {
	return &Evaluator{windows: windows}
}

// Evaluate returns the rule labels for an event, in rule order, possibly
// with none. The event is recorded into the sliding windows after the
// static rules and before the window-based rules, so window counts include
// the event itself. Duplicates are collapsed later by the aggregator.
func (ev *Evaluator) Evaluate(e *domain.TransactionEvent) []string {
	var labels []string

	if e.LatencyMs > HighLatencyMs {
		labels = append(labels, domain.LabelHighLatency)
	}
	if e.Amount > HighAmount {
		labels = append(labels, domain.LabelHighAmount)
	}
	if strings.HasPrefix(e.Merchant, OddMerchantPrefix) {
		labels = append(labels, domain.LabelUnknownMerchant)
	}
	if strings.HasPrefix(e.Region, OddRegionPrefix) {
		labels = append(labels, domain.LabelUnknownRegion)
	}
	if !e.Succeeded {
		labels = append(labels, domain.LabelFailure)
	}
	if e.Hour() <= OffHourEnd {
		labels = append(labels, domain.LabelOffHour)
	}

	ev.windows.Observe(e)
	cutoff := e.Timestamp.Add(-ev.windows.Window())

	burst := ev.windows.CountGlobal(func(w window.Entry) bool {
		return !w.Timestamp.Before(cutoff)
	})
	if burst >= BurstCount {
		labels = append(labels, domain.LabelBurst)
	}

	smallSameMerchant := ev.windows.CountGlobal(func(w window.Entry) bool {
		return w.Merchant == e.Merchant && w.Amount < SmallAmount
	})
	if smallSameMerchant >= CardTestingCount {
		labels = append(labels, domain.LabelCardTesting)
	}

	if ev.windows.MerchantSize(e.Merchant) >= MerchantSpikeCount {
		labels = append(labels, domain.LabelMerchantSpike)
	}

	return labels
}
