package clickhouse

import (
	"context"
	"fmt"

	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/storage"
)

// AnomalyStore implements storage.AnomalyStore using ClickHouse.
// Status is stored as UInt8, recon_err as Nullable(Float64), types as
// Array(String).
type AnomalyStore struct {
	conn *Conn
}

// NewAnomalyStore creates a new AnomalyStore.
func NewAnomalyStore(conn *Conn) *AnomalyStore {
	return &AnomalyStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AnomalyStore = (*AnomalyStore)(nil)

const selectColumns = `
	detected_at, event_timestamp, merchant, region,
	amount, latency_ms, status, types, recon_err, raw_line
`

// Append persists one record via a single-row batch.
func (s *AnomalyStore) Append(ctx context.Context, rec *domain.AnomalyRecord) error {
	if rec == nil || len(rec.Types) == 0 {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO anomaly_records (
			detected_at, event_timestamp, merchant, region,
			amount, latency_ms, status, types, recon_err, raw_line
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		rec.DetectedAt, rec.Timestamp, rec.Merchant, rec.Region,
		rec.Amount, rec.LatencyMs, uint8(rec.Status), rec.Types, rec.ReconErr, rec.RawLine,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByMerchant retrieves all records for a merchant, ordered by
// detected_at ASC.
func (s *AnomalyStore) GetByMerchant(ctx context.Context, merchant string) ([]*domain.AnomalyRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM anomaly_records
		WHERE merchant = ?
		ORDER BY detected_at ASC
	`
	return s.query(ctx, query, merchant)
}

// GetByTimeRange retrieves records with event timestamp within
// [start, end] (inclusive), ordered by timestamp ASC.
func (s *AnomalyStore) GetByTimeRange(ctx context.Context, start, end string) ([]*domain.AnomalyRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM anomaly_records
		WHERE event_timestamp >= ? AND event_timestamp <= ?
		ORDER BY event_timestamp ASC
	`
	return s.query(ctx, query, start, end)
}

// CountByType returns the number of records carrying the given label.
func (s *AnomalyStore) CountByType(ctx context.Context, label string) (int, error) {
	query := `SELECT COUNT(*) FROM anomaly_records WHERE has(types, ?)`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, label).Scan(&count); err != nil {
		return 0, fmt.Errorf("count anomaly records by type: %w", err)
	}
	return int(count), nil
}

// query runs a SELECT with selectColumns and scans the rows.
func (s *AnomalyStore) query(ctx context.Context, query string, args ...any) ([]*domain.AnomalyRecord, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomaly records: %w", err)
	}
	defer rows.Close()

	var result []*domain.AnomalyRecord
	for rows.Next() {
		var rec domain.AnomalyRecord
		var status uint8
		err := rows.Scan(
			&rec.DetectedAt, &rec.Timestamp, &rec.Merchant, &rec.Region,
			&rec.Amount, &rec.LatencyMs, &status, &rec.Types, &rec.ReconErr, &rec.RawLine,
		)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly record: %w", err)
		}
		rec.Status = int(status)
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomaly records: %w", err)
	}
	return result, nil
}
