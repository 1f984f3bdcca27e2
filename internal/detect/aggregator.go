// Package detect merges model-based and rule-based signals into anomaly
// records.
package detect

import (
	"sort"
	"time"

	"txn-sentinel/internal/domain"
)

// CompositeMin is the pre-deduplication label count at which the composite
// label is added.
const CompositeMin = 3

// Aggregator builds anomaly records from an event's collected labels.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates an Aggregator using the local wall clock.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// NewAggregatorWithClock creates an Aggregator with an injected clock for
// deterministic output.
func NewAggregatorWithClock(now func() time.Time) *Aggregator {
	return &Aggregator{now: now}
}

// Build produces an anomaly record for the event, or nil when no label was
// collected. The model flag contributes the autoencoder label; composite is
// appended when the pre-deduplication count reaches CompositeMin. The final
// Types set is sorted and distinct. ReconErr is set only when the model
// flag fired.
func (a *Aggregator) Build(e *domain.TransactionEvent, ruleLabels []string, modelFlagged bool, reconErr float64) *domain.AnomalyRecord {
	var labels []string
	if modelFlagged {
		labels = append(labels, domain.LabelAutoencoder)
	}
	labels = append(labels, ruleLabels...)

	if len(labels) == 0 {
		return nil
	}

	// Composite counts labels before deduplication.
	if len(labels) >= CompositeMin {
		labels = append(labels, domain.LabelComposite)
	}

	rec := &domain.AnomalyRecord{
		DetectedAt: a.now().Format(domain.TimeLayout),
		Timestamp:  e.Timestamp.Format(domain.TimeLayout),
		Merchant:   e.Merchant,
		Region:     e.Region,
		Amount:     e.Amount,
		LatencyMs:  e.LatencyMs,
		Status:     e.StatusInt(),
		Types:      sortedDistinct(labels),
		RawLine:    e.RawLine,
	}
	if modelFlagged {
		errVal := reconErr
		rec.ReconErr = &errVal
	}
	return rec
}

// sortedDistinct returns the sorted set of labels.
func sortedDistinct(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
