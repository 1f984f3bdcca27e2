// Package feature turns transaction event batches into standardized
// numeric feature matrices.
package feature

import (
	"errors"
	"math"
	"sort"

	"txn-sentinel/internal/domain"
)

// Errors returned by the encoder.
var (
	ErrNotFitted   = errors.New("scaler not fitted")
	ErrNoEvents    = errors.New("no events to encode")
	ErrShapeChange = errors.New("matrix width does not match fitted scaler")
)

// UnknownID is the sentinel id for categorical values unseen at encoding
// build time.
const UnknownID = -1

// FeatureCount is the width of the feature vector:
// latency, amount, succeeded, merchant id, region id, hour of day.
const FeatureCount = 6

// Encoding maps categorical values to integer ids. Built once at training
// and replaced wholesale at retrain; never shrunk in between.
type Encoding struct {
	Merchants map[string]int
	Regions   map[string]int
}

// BuildEncoding assigns ids in sorted order of the distinct values observed
// in the batch, so the same batch always yields the same mapping.
func BuildEncoding(events []*domain.TransactionEvent) *Encoding {
	merchants := make(map[string]struct{})
	regions := make(map[string]struct{})
	for _, e := range events {
		merchants[e.Merchant] = struct{}{}
		regions[e.Region] = struct{}{}
	}
	return &Encoding{
		Merchants: assignIDs(merchants),
		Regions:   assignIDs(regions),
	}
}

func assignIDs(values map[string]struct{}) map[string]int {
	sorted := make([]string, 0, len(values))
	for v := range values {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)

	ids := make(map[string]int, len(sorted))
	for i, v := range sorted {
		ids[v] = i
	}
	return ids
}

// MerchantID returns the id for a merchant, UnknownID when unseen.
func (e *Encoding) MerchantID(merchant string) int {
	if id, ok := e.Merchants[merchant]; ok {
		return id
	}
	return UnknownID
}

// RegionID returns the id for a region, UnknownID when unseen.
func (e *Encoding) RegionID(region string) int {
	if id, ok := e.Regions[region]; ok {
		return id
	}
	return UnknownID
}

// Scaler standardizes features to zero mean and unit variance using
// parameters fitted on a training batch. Once fitted, Transform applies
// the same parameters until the scaler is replaced at retrain.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// Fit derives per-feature mean and scale from the matrix.
// A zero-variance feature gets scale 1 so transforming it yields 0.
func (s *Scaler) Fit(matrix [][]float64) {
	if len(matrix) == 0 {
		return
	}
	width := len(matrix[0])
	n := float64(len(matrix))

	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)

	for j := 0; j < width; j++ {
		sum := 0.0
		for _, row := range matrix {
			sum += row[j]
		}
		s.Mean[j] = sum / n
	}

	for j := 0; j < width; j++ {
		variance := 0.0
		for _, row := range matrix {
			d := row[j] - s.Mean[j]
			variance += d * d
		}
		variance /= n
		scale := math.Sqrt(variance)
		if scale == 0 {
			scale = 1
		}
		s.Scale[j] = scale
	}
}

// Fitted reports whether Fit has been called.
func (s *Scaler) Fitted() bool {
	return len(s.Mean) > 0
}

// Transform standardizes the matrix with the fitted parameters.
// The input is not modified.
func (s *Scaler) Transform(matrix [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, ErrNotFitted
	}

	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != len(s.Mean) {
			return nil, ErrShapeChange
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// Encode builds the standardized feature matrix for a batch of events.
// A nil encoding is built from the batch (training path); a nil scaler is
// fitted on the batch. The returned encoding and scaler are the ones
// actually used, so callers can retain them for subsequent scoring.
func Encode(events []*domain.TransactionEvent, enc *Encoding, scaler *Scaler) ([][]float64, *Encoding, *Scaler, error) {
	if len(events) == 0 {
		return nil, nil, nil, ErrNoEvents
	}

	if enc == nil {
		enc = BuildEncoding(events)
	}

	raw := make([][]float64, len(events))
	for i, e := range events {
		raw[i] = []float64{
			e.LatencyMs,
			e.Amount,
			float64(e.StatusInt()),
			float64(enc.MerchantID(e.Merchant)),
			float64(enc.RegionID(e.Region)),
			float64(e.Hour()),
		}
	}

	if scaler == nil {
		scaler = &Scaler{}
		scaler.Fit(raw)
	}

	matrix, err := scaler.Transform(raw)
	if err != nil {
		return nil, nil, nil, err
	}
	return matrix, enc, scaler, nil
}
