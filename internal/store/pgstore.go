package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candorops/signoff/model"
)

// PgStateStore is a PostgreSQL-backed StateStore using pgx/v5. States are
// stored as one JSONB document per (incident_id, kind), with step and
// updated_at promoted to columns for the open-state scan.
type PgStateStore struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS workflow_states (
	incident_id TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	step        TEXT        NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	state       JSONB       NOT NULL,
	PRIMARY KEY (incident_id, kind)
);
CREATE INDEX IF NOT EXISTS workflow_states_step_idx ON workflow_states (step);
`

// NewPgStateStore creates a new PostgreSQL state store.
func NewPgStateStore(pool *pgxpool.Pool) *PgStateStore {
	return &PgStateStore{pool: pool}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PgStateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// Save upserts the state document, last write wins.
func (s *PgStateStore) Save(ctx context.Context, state model.WorkflowState) (string, error) {
	doc, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("pgstore: marshal state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_states (incident_id, kind, step, updated_at, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (incident_id, kind) DO UPDATE SET
			step = EXCLUDED.step,
			updated_at = EXCLUDED.updated_at,
			state = EXCLUDED.state`,
		state.IncidentID, string(state.Kind), string(state.Step), state.UpdatedAt, doc,
	)
	if err != nil {
		return "", fmt.Errorf("pgstore: save state: %w", err)
	}
	return state.IncidentID, nil
}

// LoadByIncident retrieves a persisted state, absence reported via the bool.
func (s *PgStateStore) LoadByIncident(ctx context.Context, incidentID string, kind model.WorkflowKind) (model.WorkflowState, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM workflow_states
		WHERE incident_id = $1 AND kind = $2`,
		incidentID, string(kind),
	).Scan(&doc)
	if err == pgx.ErrNoRows {
		return model.WorkflowState{}, false, nil
	}
	if err != nil {
		return model.WorkflowState{}, false, fmt.Errorf("pgstore: query state: %w", err)
	}

	var state model.WorkflowState
	if err := json.Unmarshal(doc, &state); err != nil {
		return model.WorkflowState{}, false, fmt.Errorf("pgstore: unmarshal state: %w", err)
	}
	return state, true, nil
}

// ListOpen returns every persisted state whose step is not completed.
func (s *PgStateStore) ListOpen(ctx context.Context) ([]model.WorkflowState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT state FROM workflow_states
		WHERE step != $1
		ORDER BY updated_at ASC`,
		string(model.StepCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query open states: %w", err)
	}
	defer rows.Close()

	var states []model.WorkflowState
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("pgstore: scan state: %w", err)
		}
		var state model.WorkflowState
		if err := json.Unmarshal(doc, &state); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// HealthCheck verifies database connectivity for the readiness endpoint.
func (s *PgStateStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Compile-time interface check.
var _ StateStore = (*PgStateStore)(nil)
