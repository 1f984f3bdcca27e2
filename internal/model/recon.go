package model

import (
	"bytes"
	"encoding/gob"
	"math"
	"sort"
	"sync"
)

// varianceFloor keeps near-constant features from dominating the error.
const varianceFloor = 1e-9

// ReconstructionModel scores rows by their distance from a diagonal
// Gaussian fitted on the training matrix: each row is reconstructed as the
// per-feature training mean and the error is the variance-weighted mean
// squared residual. Rows far from the training distribution in any feature
// produce large errors.
type ReconstructionModel struct {
	mu sync.RWMutex

	thresholdPercentile float64

	// Trained state
	mean      []float64
	variance  []float64
	threshold float64
	trained   bool
}

// Option configures a ReconstructionModel.
type Option func(*ReconstructionModel)

// WithThresholdPercentile sets the training-error percentile used as the
// anomaly threshold. Default: 0.975.
func WithThresholdPercentile(p float64) Option {
	return func(m *ReconstructionModel) {
		m.thresholdPercentile = p
	}
}

// NewReconstructionModel creates an untrained ReconstructionModel.
func NewReconstructionModel(opts ...Option) *ReconstructionModel {
	m := &ReconstructionModel{
		thresholdPercentile: 0.975,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Compile-time interface check.
var _ ScoringModel = (*ReconstructionModel)(nil)

// Train fits per-feature mean and variance on the matrix and sets the
// threshold to the configured percentile of training reconstruction error.
func (m *ReconstructionModel) Train(matrix [][]float64) error {
	if len(matrix) == 0 {
		return ErrNoData
	}

	width := len(matrix[0])
	n := float64(len(matrix))

	mean := make([]float64, width)
	for j := 0; j < width; j++ {
		sum := 0.0
		for _, row := range matrix {
			sum += row[j]
		}
		mean[j] = sum / n
	}

	variance := make([]float64, width)
	for j := 0; j < width; j++ {
		v := 0.0
		for _, row := range matrix {
			d := row[j] - mean[j]
			v += d * d
		}
		variance[j] = v / n
	}

	errs := make([]float64, len(matrix))
	for i, row := range matrix {
		errs[i] = reconstructionError(row, mean, variance)
	}
	sort.Float64s(errs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mean = mean
	m.variance = variance
	m.threshold = percentile(errs, m.thresholdPercentile)
	m.trained = true
	return nil
}

// Score returns per-row reconstruction error aligned with input rows.
func (m *ReconstructionModel) Score(matrix [][]float64) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return nil, ErrNotTrained
	}

	errs := make([]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != len(m.mean) {
			return nil, ErrBadShape
		}
		errs[i] = reconstructionError(row, m.mean, m.variance)
	}
	return errs, nil
}

// Threshold returns the anomaly threshold from the last Train.
func (m *ReconstructionModel) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// reconstructionError is the variance-weighted mean squared residual
// between a row and the training mean vector.
func reconstructionError(row, mean, variance []float64) float64 {
	sum := 0.0
	for j, v := range row {
		d := v - mean[j]
		sum += d * d / (variance[j] + varianceFloor)
	}
	return sum / float64(len(row))
}

// percentile returns the p-quantile (0..1) of sorted values using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// snapshot is the gob-serialized form of a trained model.
type snapshot struct {
	ThresholdPercentile float64
	Mean                []float64
	Variance            []float64
	Threshold           float64
	Trained             bool
}

// Save serializes the trained model to bytes.
func (m *ReconstructionModel) Save() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return nil, ErrNotTrained
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		ThresholdPercentile: m.thresholdPercentile,
		Mean:                m.mean,
		Variance:            m.variance,
		Threshold:           m.threshold,
		Trained:             true,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model from bytes.
func (m *ReconstructionModel) Load(data []byte) error {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholdPercentile = snap.ThresholdPercentile
	m.mean = snap.Mean
	m.variance = snap.Variance
	m.threshold = snap.Threshold
	m.trained = snap.Trained
	return nil
}
