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

func handlePause(b *bus.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidentID := chi.URLParam(r, "incidentID")

		var body struct {
			ActionName     string           `json:"action_name"`
			ActionKind     model.ActionKind `json:"action_kind"`
			Description    string           `json:"description"`
			Payload        map[string]any   `json:"payload"`
			TimeoutSeconds int              `json:"timeout_seconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(r.Context(), w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		state, ok := b.State(incidentID)
		if !ok {
			WriteError(r.Context(), w, model.NewNotFoundError(fmt.Sprintf("Incident %q not found", incidentID)))
			return
		}

		paused, err := b.Pause(r.Context(), state, bus.PauseRequest{
			ActionName:  body.ActionName,
			Kind:        body.ActionKind,
			Description: body.Description,
			Payload:     body.Payload,
			Timeout:     time.Duration(body.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			WriteError(r.Context(), w, err)
			return
		}
		WriteJSON(w, http.StatusOK, paused)
	}
}

func handleResume(b *bus.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidentID := chi.URLParam(r, "incidentID")

		var body struct {
			ActionName         string           `json:"action_name"`
			Approved           bool             `json:"approved"`
			EditedPayload      map[string]any   `json:"edited_payload"`
			Notes              string           `json:"notes"`
			PolicyBandOverride model.PolicyBand `json:"policy_band_override"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(r.Context(), w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		// The acting reviewer comes from the verified identity, never from
		// the request body.
		resumed, err := b.Resume(r.Context(), incidentID, bus.ResumeRequest{
			ActionName:    body.ActionName,
			Approved:      body.Approved,
			EditedPayload: body.EditedPayload,
			Notes:         body.Notes,
			BandOverride:  body.PolicyBandOverride,
			Actor:         model.ActorID(r.Context()),
		})
		if err != nil {
			WriteError(r.Context(), w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resumed)
	}
}

func handleGetAction(b *bus.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidentID := chi.URLParam(r, "incidentID")

		action, ok := b.PendingAction(incidentID)
		if !ok {
			WriteError(r.Context(), w, model.NewNotFoundError(fmt.Sprintf("Incident %q has no pending action", incidentID)))
			return
		}
		WriteJSON(w, http.StatusOK, action)
	}
}

func handleListActions(b *bus.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actions := b.ListPendingActions()
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":  actions,
			"count": len(actions),
		})
	}
}
