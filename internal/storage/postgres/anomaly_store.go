package postgres

import (
	"context"
	"fmt"

	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/storage"
)

// AnomalyStore implements storage.AnomalyStore using PostgreSQL.
// Records get a synthetic serial id; the stream itself is append-only.
type AnomalyStore struct {
	pool *Pool
}

// NewAnomalyStore creates a new AnomalyStore.
func NewAnomalyStore(pool *Pool) *AnomalyStore {
	return &AnomalyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AnomalyStore = (*AnomalyStore)(nil)

const selectColumns = `
	detected_at, event_timestamp, merchant, region,
	amount, latency_ms, status, types, recon_err, raw_line
`

// Append persists one record.
func (s *AnomalyStore) Append(ctx context.Context, rec *domain.AnomalyRecord) error {
	if rec == nil || len(rec.Types) == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO anomaly_records (
			detected_at, event_timestamp, merchant, region,
			amount, latency_ms, status, types, recon_err, raw_line
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.DetectedAt, rec.Timestamp, rec.Merchant, rec.Region,
		rec.Amount, rec.LatencyMs, rec.Status, rec.Types, rec.ReconErr, rec.RawLine,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly record: %w", err)
	}
	return nil
}

// GetByMerchant retrieves all records for a merchant, ordered by
// detected_at ASC.
func (s *AnomalyStore) GetByMerchant(ctx context.Context, merchant string) ([]*domain.AnomalyRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM anomaly_records
		WHERE merchant = $1
		ORDER BY detected_at ASC, id ASC
	`
	return s.query(ctx, query, merchant)
}

// GetByTimeRange retrieves records with event timestamp within
// [start, end] (inclusive), ordered by timestamp ASC.
func (s *AnomalyStore) GetByTimeRange(ctx context.Context, start, end string) ([]*domain.AnomalyRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM anomaly_records
		WHERE event_timestamp >= $1 AND event_timestamp <= $2
		ORDER BY event_timestamp ASC, id ASC
	`
	return s.query(ctx, query, start, end)
}

// CountByType returns the number of records carrying the given label.
func (s *AnomalyStore) CountByType(ctx context.Context, label string) (int, error) {
	query := `SELECT COUNT(*) FROM anomaly_records WHERE $1 = ANY(types)`

	var count int
	if err := s.pool.QueryRow(ctx, query, label).Scan(&count); err != nil {
		return 0, fmt.Errorf("count anomaly records by type: %w", err)
	}
	return count, nil
}

// query runs a SELECT with selectColumns and scans the rows.
func (s *AnomalyStore) query(ctx context.Context, query string, args ...any) ([]*domain.AnomalyRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomaly records: %w", err)
	}
	defer rows.Close()

	var result []*domain.AnomalyRecord
	for rows.Next() {
		var rec domain.AnomalyRecord
		err := rows.Scan(
			&rec.DetectedAt, &rec.Timestamp, &rec.Merchant, &rec.Region,
			&rec.Amount, &rec.LatencyMs, &rec.Status, &rec.Types, &rec.ReconErr, &rec.RawLine,
		)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly record: %w", err)
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomaly records: %w", err)
	}
	return result, nil
}
