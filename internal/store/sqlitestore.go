package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/candorops/signoff/model"
)

// SQLiteStateStore is a SQLite-backed StateStore for single-node deployments
// that want durability without running a database server. WAL mode is enabled
// so the monitor and the HTTP handlers can read concurrently.
type SQLiteStateStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS workflow_states (
	incident_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	step        TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	state       TEXT NOT NULL,
	PRIMARY KEY (incident_id, kind)
);
CREATE INDEX IF NOT EXISTS workflow_states_step_idx ON workflow_states (step);
`

// NewSQLiteStateStore opens (or creates) a SQLite state store at the given
// DSN and applies the schema.
func NewSQLiteStateStore(dsn string) (*SQLiteStateStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	return &SQLiteStateStore{db: db}, nil
}

// Save upserts the state document, last write wins.
func (s *SQLiteStateStore) Save(ctx context.Context, state model.WorkflowState) (string, error) {
	doc, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (incident_id, kind, step, updated_at, state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (incident_id, kind) DO UPDATE SET
			step = excluded.step,
			updated_at = excluded.updated_at,
			state = excluded.state`,
		state.IncidentID, string(state.Kind), string(state.Step),
		state.UpdatedAt.UTC().Format(time.RFC3339Nano), string(doc),
	)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: save state: %w", err)
	}
	return state.IncidentID, nil
}

// LoadByIncident retrieves a persisted state, absence reported via the bool.
func (s *SQLiteStateStore) LoadByIncident(ctx context.Context, incidentID string, kind model.WorkflowKind) (model.WorkflowState, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM workflow_states
		WHERE incident_id = ? AND kind = ?`,
		incidentID, string(kind),
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.WorkflowState{}, false, nil
	}
	if err != nil {
		return model.WorkflowState{}, false, fmt.Errorf("sqlitestore: query state: %w", err)
	}

	var state model.WorkflowState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return model.WorkflowState{}, false, fmt.Errorf("sqlitestore: unmarshal state: %w", err)
	}
	return state, true, nil
}

// ListOpen returns every persisted state whose step is not completed.
func (s *SQLiteStateStore) ListOpen(ctx context.Context) ([]model.WorkflowState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state FROM workflow_states
		WHERE step != ?
		ORDER BY updated_at ASC`,
		string(model.StepCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query open states: %w", err)
	}
	defer rows.Close()

	var states []model.WorkflowState
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan state: %w", err)
		}
		var state model.WorkflowState
		if err := json.Unmarshal([]byte(doc), &state); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// HealthCheck verifies database connectivity for the readiness endpoint.
func (s *SQLiteStateStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}

// Compile-time interface check.
var _ StateStore = (*SQLiteStateStore)(nil)
