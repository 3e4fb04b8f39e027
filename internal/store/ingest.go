package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestRun represents a single external fetch for auditing.
type IngestRun struct {
	ID                int64
	RunID             string // pipeline run that triggered the fetch
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "hrrr", "nsrdb", "eia"
	Endpoint          string
	CacheKey          sql.NullString
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(ctx context.Context, runID, source, endpoint, key string) (*IngestRun, error) {
	run := &IngestRun{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Source:    source,
		Endpoint:  endpoint,
		CacheKey:  sql.NullString{String: key, Valid: key != ""},
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, started_at, source, endpoint, cache_key, success)
		VALUES (?, ?, ?, ?, ?, FALSE)
	`, run.RunID, run.StartedAt, run.Source, run.Endpoint, run.CacheKey)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			records_parsed = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RecordsParsed,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// IngestSummary aggregates ingest runs for one source and endpoint.
type IngestSummary struct {
	Source       string
	Endpoint     string
	TotalRuns    int
	SuccessRuns  int
	FailedRuns   int
	TotalBytes   int64
	TotalRecords int64
}

// IngestSummaryForRun summarises the fetches made by one pipeline run.
func (s *Store) IngestSummaryForRun(ctx context.Context, runID string) ([]IngestSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			source,
			endpoint,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(response_size_bytes), 0) as total_bytes,
			COALESCE(SUM(records_parsed), 0) as total_records
		FROM ingest_runs
		WHERE run_id = ?
		GROUP BY source, endpoint
		ORDER BY source, endpoint
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestSummary
	for rows.Next() {
		var h IngestSummary
		if err := rows.Scan(&h.Source, &h.Endpoint, &h.TotalRuns, &h.SuccessRuns,
			&h.FailedRuns, &h.TotalBytes, &h.TotalRecords); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// RecentIngestErrors returns recent failed ingest runs.
func (s *Store) RecentIngestErrors(ctx context.Context, limit int) ([]IngestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(run_id, ''), started_at, finished_at, source, endpoint, cache_key,
			   http_status, response_size_bytes, records_parsed, success, error_message
		FROM ingest_runs
		WHERE success = FALSE
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.RunID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint,
			&r.CacheKey, &r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
