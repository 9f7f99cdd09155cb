//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"epinet/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.CreatedAtUTC, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs ORDER BY created_at_utc, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveStepDiagnostics(ctx context.Context, runID string, diagnostics []model.StepDiagnostics) error {
	payload, err := EncodeStepDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.putRunPayload(ctx, "step_diagnostics", runID, payload)
}

func (s *SQLiteStore) GetStepDiagnostics(ctx context.Context, runID string) ([]model.StepDiagnostics, bool, error) {
	payload, ok, err := s.getRunPayload(ctx, "step_diagnostics", runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	diagnostics, err := DecodeStepDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode step diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *SQLiteStore) SaveNetworkParams(ctx context.Context, runID string, params []model.NetworkParams) error {
	payload, err := EncodeNetworkParams(params)
	if err != nil {
		return err
	}
	return s.putRunPayload(ctx, "network_params", runID, payload)
}

func (s *SQLiteStore) GetNetworkParams(ctx context.Context, runID string) ([]model.NetworkParams, bool, error) {
	payload, ok, err := s.getRunPayload(ctx, "network_params", runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	params, err := DecodeNetworkParams(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode network params %s: %w", runID, err)
	}
	return params, true, nil
}

func (s *SQLiteStore) SaveCumulative(ctx context.Context, runID string, network int, edges []model.CumulativeEdge) error {
	payload, err := EncodeCumulative(edges)
	if err != nil {
		return err
	}
	return s.putNetworkPayload(ctx, "cumulative_edgelists", runID, network, payload)
}

func (s *SQLiteStore) GetCumulative(ctx context.Context, runID string, network int) ([]model.CumulativeEdge, bool, error) {
	payload, ok, err := s.getNetworkPayload(ctx, "cumulative_edgelists", runID, network)
	if err != nil || !ok {
		return nil, ok, err
	}
	edges, err := DecodeCumulative(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode cumulative edgelist %s/%d: %w", runID, network, err)
	}
	return edges, true, nil
}

func (s *SQLiteStore) SaveStatsHistory(ctx context.Context, runID string, network int, history []model.StatsRecord) error {
	payload, err := EncodeStatsHistory(history)
	if err != nil {
		return err
	}
	return s.putNetworkPayload(ctx, "stats_history", runID, network, payload)
}

func (s *SQLiteStore) GetStatsHistory(ctx context.Context, runID string, network int) ([]model.StatsRecord, bool, error) {
	payload, ok, err := s.getNetworkPayload(ctx, "stats_history", runID, network)
	if err != nil || !ok {
		return nil, ok, err
	}
	history, err := DecodeStatsHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode stats history %s/%d: %w", runID, network, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Table names below are package constants, never caller input.

func (s *SQLiteStore) putRunPayload(ctx context.Context, table, runID string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) getRunPayload(ctx context.Context, table, runID string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLiteStore) putNetworkPayload(ctx context.Context, table, runID string, network int, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (run_id, network, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, network) DO UPDATE SET
			payload = excluded.payload
	`, runID, network, payload)
	return err
}

func (s *SQLiteStore) getNetworkPayload(ctx context.Context, table, runID string, network int) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE run_id = ? AND network = ?`, runID, network).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS step_diagnostics (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS network_params (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cumulative_edgelists (
			run_id TEXT NOT NULL,
			network INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, network)
		);
		CREATE TABLE IF NOT EXISTS stats_history (
			run_id TEXT NOT NULL,
			network INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, network)
		);
	`)
	return err
}
