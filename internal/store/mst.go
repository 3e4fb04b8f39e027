package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/gridprep/internal/islands"
)

// LoadMST returns the cached spanning edges for an island-connection input
// hash.
func (s *Store) LoadMST(ctx context.Context, key string) ([]islands.Edge, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT edges_json FROM mst_cache WHERE input_hash = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load mst %s: %w", key, err)
	}
	var edges []islands.Edge
	if err := json.Unmarshal([]byte(raw), &edges); err != nil {
		return nil, false, fmt.Errorf("decode mst %s: %w", key, err)
	}
	return edges, true, nil
}

func (s *Store) SaveMST(ctx context.Context, key string, edges []islands.Edge) error {
	raw, err := json.Marshal(edges)
	if err != nil {
		return fmt.Errorf("encode mst: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mst_cache (input_hash, edges_json, created_at) VALUES (?, ?, ?)
		ON CONFLICT(input_hash) DO UPDATE SET edges_json = excluded.edges_json, created_at = excluded.created_at
	`, key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save mst %s: %w", key, err)
	}
	return nil
}

var _ islands.Cache = (*Store)(nil)
