package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/candorops/signoff/internal/bus"
	"github.com/candorops/signoff/model"
)

// stateBody is the agent-supplied snapshot for an emission.
type stateBody struct {
	SubjectID        string             `json:"subject_id"`
	Kind             model.WorkflowKind `json:"kind"`
	Step             model.Step         `json:"step"`
	Payload          map[string]any     `json:"payload"`
	PolicyBand       model.PolicyBand   `json:"policy_band"`
	RequiresApproval bool               `json:"requires_approval"`
	CanAutoApply     bool               `json:"can_auto_apply"`
	Error            string             `json:"error"`
	Warning          string             `json:"warning"`
	// Message, when present, is appended to the incident's diagnostic log.
	Message string `json:"message"`
}

func handleEmitState(b *bus.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidentID := chi.URLParam(r, "incidentID")

		var body stateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(r.Context(), w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		state := model.WorkflowState{
			IncidentID:       incidentID,
			SubjectID:        body.SubjectID,
			Kind:             body.Kind,
			Step:             body.Step,
			Payload:          body.Payload,
			PolicyBand:       body.PolicyBand,
			RequiresApproval: body.RequiresApproval,
			CanAutoApply:     body.CanAutoApply,
			Error:            body.Error,
			Warning:          body.Warning,
		}

		// Emissions replace the snapshot wholesale; the diagnostic trail
		// accumulated so far survives the replacement.
		if prev, ok := b.State(incidentID); ok {
			state.Log = prev.Log
		}
		if body.Message != "" {
			state.AppendLog(time.Now().UTC(), model.ActorID(r.Context()), body.Message)
		}

		updated, err := b.Emit(r.Context(), state)
		if err != nil {
			WriteError(r.Context(), w, err)
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}

func handleGetIncident(b *bus.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidentID := chi.URLParam(r, "incidentID")

		state, ok := b.State(incidentID)
		if !ok {
			WriteError(r.Context(), w, model.NewNotFoundError(fmt.Sprintf("Incident %q not found", incidentID)))
			return
		}
		WriteJSON(w, http.StatusOK, state)
	}
}

func handleListIncidents(b *bus.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step := model.Step(r.URL.Query().Get("step"))
		if step != "" && !step.Valid() {
			WriteError(r.Context(), w, model.NewBadRequestError(fmt.Sprintf("unknown step %q", step)))
			return
		}

		states := b.ListStates()
		if step != "" {
			filtered := states[:0]
			for _, s := range states {
				if s.Step == step {
					filtered = append(filtered, s)
				}
			}
			states = filtered
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":  states,
			"count": len(states),
		})
	}
}
