// Package store provides durable persistence for workflow state so the bus
// can rebuild its in-memory view after a restart. The bus treats every
// implementation as best-effort: save failures are logged by the caller and
// never abort the operation that triggered them.
package store

import (
	"context"

	"github.com/candorops/signoff/model"
)

// StateStore persists workflow state snapshots keyed by incident id and
// workflow kind, with last-write-wins semantics per key.
type StateStore interface {
	// Save upserts the state and returns the incident id it was stored
	// under. Errors indicate a storage fault; the caller decides whether
	// that is fatal.
	Save(ctx context.Context, state model.WorkflowState) (string, error)

	// LoadByIncident retrieves the state persisted for an incident and
	// workflow kind. Absence is reported via the bool, not an error.
	LoadByIncident(ctx context.Context, incidentID string, kind model.WorkflowKind) (model.WorkflowState, bool, error)

	// ListOpen returns every persisted state whose step is not completed,
	// in ascending updated_at order. Used by the recovery bootstrap.
	ListOpen(ctx context.Context) ([]model.WorkflowState, error)
}
