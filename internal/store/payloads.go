package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lox/gridprep/internal/metrics"
)

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// PutPayload stores a compressed weather payload under (source, key),
// replacing any previous payload for that key.
func (s *Store) PutPayload(ctx context.Context, runID int64, source, key string, payload []byte) error {
	compressed, err := compress(payload)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(payload)

	var ingestRunID sql.NullInt64
	if runID > 0 {
		ingestRunID = sql.NullInt64{Int64: runID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weather_payloads
		(ingest_run_id, fetched_unix, source, cache_key, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, cache_key) DO UPDATE SET
			ingest_run_id = excluded.ingest_run_id,
			fetched_unix = excluded.fetched_unix,
			payload_compressed = excluded.payload_compressed,
			payload_hash = excluded.payload_hash
	`, ingestRunID, time.Now().Unix(), source, key, compressed, hex.EncodeToString(hash[:]))
	if err != nil {
		return fmt.Errorf("insert payload: %w", err)
	}
	return nil
}

// GetPayload returns the decompressed payload for (source, key). The bool
// is false when nothing is cached.
func (s *Store) GetPayload(ctx context.Context, source, key string) ([]byte, bool, error) {
	var compressed []byte
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_compressed, payload_hash FROM weather_payloads WHERE source = ? AND cache_key = ?`,
		source, key).Scan(&compressed, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.CacheMiss("payload")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, false, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()
	payload, err := io.ReadAll(gz)
	if err != nil {
		return nil, false, fmt.Errorf("decompress payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != hash {
		return nil, false, fmt.Errorf("payload %s/%s: hash mismatch", source, key)
	}
	metrics.CacheHit("payload")
	return payload, true, nil
}

// PayloadStats contains storage statistics for cached payloads.
type PayloadStats struct {
	TotalCount     int
	TotalSizeBytes int64
	Oldest         time.Time
	Newest         time.Time
	CountBySource  map[string]int
	SizeBySource   map[string]int64
}

func (s *Store) PayloadStats(ctx context.Context) (*PayloadStats, error) {
	stats := &PayloadStats{
		CountBySource: make(map[string]int),
		SizeBySource:  make(map[string]int64),
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0),
		       MIN(fetched_unix), MAX(fetched_unix)
		FROM weather_payloads
	`)
	var oldest, newest sql.NullInt64
	if err := row.Scan(&stats.TotalCount, &stats.TotalSizeBytes, &oldest, &newest); err != nil {
		return nil, err
	}
	if oldest.Valid {
		stats.Oldest = time.Unix(oldest.Int64, 0).UTC()
	}
	if newest.Valid {
		stats.Newest = time.Unix(newest.Int64, 0).UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM weather_payloads
		GROUP BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		var size int64
		if err := rows.Scan(&source, &count, &size); err != nil {
			return nil, err
		}
		stats.CountBySource[source] = count
		stats.SizeBySource[source] = size
	}
	return stats, rows.Err()
}

// PrunePayloads deletes payloads fetched before cutoff and returns the
// number removed.
func (s *Store) PrunePayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM weather_payloads WHERE fetched_unix < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
