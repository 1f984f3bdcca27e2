package domain

// Anomaly type labels. A record's Types field holds the sorted distinct
// set of labels collected for one event.
const (
	LabelAutoencoder     = "autoencoder"      // model reconstruction error above threshold
	LabelHighLatency     = "high_latency"     // latency > 1000ms
	LabelHighAmount      = "high_amount"      // amount > 500000
	LabelUnknownMerchant = "unknown_merchant" // merchant has the odd_ prefix
	LabelUnknownRegion   = "unknown_region"   // region has the odd_region prefix
	LabelFailure         = "failure"          // status != SUCCESS
	LabelOffHour         = "off_hour"         // hour of day in 0..4
	LabelBurst           = "burst"            // >= 8 transactions in the trailing window
	LabelCardTesting     = "card_testing"     // >= 6 small same-merchant transactions in the window
	LabelMerchantSpike   = "merchant_spike"   // >= 10 transactions for this merchant in the window
	LabelComposite       = "composite"        // >= 3 labels collected before deduplication
)

// AllLabels lists every label an anomaly record can carry.
var AllLabels = []string{
	LabelAutoencoder,
	LabelBurst,
	LabelCardTesting,
	LabelComposite,
	LabelFailure,
	LabelHighAmount,
	LabelHighLatency,
	LabelMerchantSpike,
	LabelOffHour,
	LabelUnknownMerchant,
	LabelUnknownRegion,
}

// AnomalyRecord is one flagged transaction, serialized as a single JSON
// object per line in the append-only record stream. Field names match the
// external record format; immutable once written.
type AnomalyRecord struct {
	DetectedAt string   `json:"detected_at"` // local wall clock at detection, TimeLayout
	Timestamp  string   `json:"timestamp"`   // event timestamp as parsed, TimeLayout
	Merchant   string   `json:"merchant"`
	Region     string   `json:"region"`
	Amount     float64  `json:"amount"`
	LatencyMs  float64  `json:"latency"`
	Status     int      `json:"status"` // 1 success, 0 failure
	Types      []string `json:"types"`  // sorted distinct labels, never empty
	ReconErr   *float64 `json:"err"`    // reconstruction error, null when the model did not flag
	RawLine    string   `json:"raw"`
}
