// Package ingest fetches external weather and generation data: HRRR wind
// fields, NSRDB PSM3 irradiance and EIA hourly generation.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/lox/gridprep/internal/httputil"
	"github.com/lox/gridprep/internal/store"
)

// ErrNotFound is returned by a transport when the requested object does not
// exist.
var ErrNotFound = errors.New("ingest: not found")

// Recorder writes an ingest_runs row for every external fetch. A nil
// Recorder, or one without a store, records nothing.
type Recorder struct {
	Store *store.Store
	RunID string
}

func (r *Recorder) start(ctx context.Context, source, endpoint, key string) *store.IngestRun {
	if r == nil || r.Store == nil {
		return nil
	}
	run, err := r.Store.StartIngestRun(ctx, r.RunID, source, endpoint, key)
	if err != nil {
		log.Printf("ingest: failed to start ingest run: %v", err)
		return nil
	}
	return run
}

func (r *Recorder) finish(ctx context.Context, run *store.IngestRun, size, records int, err error) {
	if run == nil {
		return
	}
	run.ResponseSizeBytes = sql.NullInt64{Int64: int64(size), Valid: size > 0}
	run.RecordsParsed = sql.NullInt64{Int64: int64(records), Valid: records > 0}
	run.Success = err == nil
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		var se *httputil.StatusError
		if errors.As(err, &se) {
			run.HTTPStatus = sql.NullInt64{Int64: int64(se.StatusCode), Valid: true}
		}
	} else {
		run.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
	}
	if err := r.Store.CompleteIngestRun(ctx, run); err != nil {
		log.Printf("ingest: failed to complete ingest run: %v", err)
	}
}

func (r *Recorder) runID(run *store.IngestRun) int64 {
	if run == nil {
		return 0
	}
	return run.ID
}

// payloadStore is the subset of the store used as a response cache.
type payloadStore interface {
	GetPayload(ctx context.Context, source, key string) ([]byte, bool, error)
	PutPayload(ctx context.Context, runID int64, source, key string, payload []byte) error
}
