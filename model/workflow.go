package model

import "time"

// WorkflowKind identifies which agent pipeline produced a workflow.
type WorkflowKind string

// Workflow kinds.
const (
	WorkflowTriage     WorkflowKind = "triage"
	WorkflowResolution WorkflowKind = "resolution"
)

// Valid reports whether the kind is one of the known workflow kinds.
func (k WorkflowKind) Valid() bool {
	switch k {
	case WorkflowTriage, WorkflowResolution:
		return true
	}
	return false
}

// Step is an execution step reported by the agent pipeline. The bus records
// whatever step the caller reports; it does not drive transitions itself,
// except for the review pair (paused_for_review, resumed_from_review) and the
// terminal error written by timeout escalation.
type Step string

// Execution steps, in nominal pipeline order.
const (
	StepInitialized        Step = "initialized"
	StepRetrievingContext  Step = "retrieving_context"
	StepContextRetrieved   Step = "context_retrieved"
	StepCallingModel       Step = "calling_model"
	StepModelCompleted     Step = "model_completed"
	StepValidating         Step = "validating"
	StepValidationComplete Step = "validation_complete"
	StepPolicyEvaluating   Step = "policy_evaluating"
	StepPolicyEvaluated    Step = "policy_evaluated"
	StepPausedForReview    Step = "paused_for_review"
	StepResumedFromReview  Step = "resumed_from_review"
	StepStoring            Step = "storing"
	StepCompleted          Step = "completed"
	StepError              Step = "error"
)

var knownSteps = map[Step]struct{}{
	StepInitialized:        {},
	StepRetrievingContext:  {},
	StepContextRetrieved:   {},
	StepCallingModel:       {},
	StepModelCompleted:     {},
	StepValidating:         {},
	StepValidationComplete: {},
	StepPolicyEvaluating:   {},
	StepPolicyEvaluated:    {},
	StepPausedForReview:    {},
	StepResumedFromReview:  {},
	StepStoring:            {},
	StepCompleted:          {},
	StepError:              {},
}

// Valid reports whether the step is one of the known execution steps.
func (s Step) Valid() bool {
	_, ok := knownSteps[s]
	return ok
}

// Terminal reports whether the step ends the workflow. No pause or resume is
// defined on a terminal incident.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// ActionKind identifies what kind of human decision a pending action requests.
type ActionKind string

// Pending action kinds. ActionApprovePolicy is also the kind the timeout
// monitor escalates expired review actions into.
const (
	ActionReviewTriage     ActionKind = "review_triage"
	ActionReviewResolution ActionKind = "review_resolution"
	ActionApprovePolicy    ActionKind = "approve_policy"
)

// Valid reports whether the kind is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionReviewTriage, ActionReviewResolution, ActionApprovePolicy:
		return true
	}
	return false
}

// PolicyBand is the upstream-determined approval tier. The bus carries it
// without interpreting it, except when a resume overrides it.
type PolicyBand string

// Policy bands.
const (
	PolicyBandAuto    PolicyBand = "AUTO"
	PolicyBandPropose PolicyBand = "PROPOSE"
	PolicyBandReview  PolicyBand = "REVIEW"
)

// Valid reports whether the band is one of the known policy bands.
func (b PolicyBand) Valid() bool {
	switch b {
	case PolicyBandAuto, PolicyBandPropose, PolicyBandReview:
		return true
	}
	return false
}

// PendingAction describes one outstanding human decision request. An incident
// holds at most one at a time; it is created by pause and destroyed by a
// successful resume or by timeout escalation.
type PendingAction struct {
	Name        string         `json:"name"`
	Kind        ActionKind     `json:"kind"`
	IncidentID  string         `json:"incident_id"`
	Description string         `json:"description,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// Expired reports whether the action's expiry has passed at the given instant.
// Actions without an expiry never expire.
func (a *PendingAction) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Clone returns a deep copy of the action.
func (a *PendingAction) Clone() *PendingAction {
	if a == nil {
		return nil
	}
	dup := *a
	dup.Payload = deepCopyMap(a.Payload)
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		dup.ExpiresAt = &t
	}
	return &dup
}

// LogEntry is one line of an incident's append-only diagnostic trail.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Actor   string    `json:"actor,omitempty"`
	Message string    `json:"message"`
}

// WorkflowState is the canonical snapshot of one incident's workflow. The bus
// keeps at most one live instance per incident id and treats persisted copies
// as a mirror of the in-memory value, not the other way around.
type WorkflowState struct {
	IncidentID       string         `json:"incident_id"`
	SubjectID        string         `json:"subject_id,omitempty"`
	Kind             WorkflowKind   `json:"kind"`
	Step             Step           `json:"step"`
	Payload          map[string]any `json:"payload,omitempty"`
	PolicyBand       PolicyBand     `json:"policy_band,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
	CanAutoApply     bool           `json:"can_auto_apply"`
	Pending          *PendingAction `json:"pending_action,omitempty"`
	Log              []LogEntry     `json:"log,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	Error            string         `json:"error,omitempty"`
	Warning          string         `json:"warning,omitempty"`
}

// Clone returns a deep copy of the state. The bus clones at every boundary so
// callers and subscribers can never mutate the canonical copy.
func (s WorkflowState) Clone() WorkflowState {
	dup := s
	dup.Payload = deepCopyMap(s.Payload)
	dup.Pending = s.Pending.Clone()
	if s.Log != nil {
		dup.Log = make([]LogEntry, len(s.Log))
		copy(dup.Log, s.Log)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}

// AppendLog appends a diagnostic entry to the state's trail.
func (s *WorkflowState) AppendLog(at time.Time, actor, message string) {
	s.Log = append(s.Log, LogEntry{Time: at, Actor: actor, Message: message})
}

// CopyPayload returns a deep copy of a free-form payload bag. Nested maps
// and slices are duplicated so the copy can be mutated independently.
func CopyPayload(m map[string]any) map[string]any {
	return deepCopyMap(m)
}

// deepCopyMap copies a free-form attribute bag, descending into nested maps
// and slices. Scalar leaves are shared, which is safe for JSON-shaped data.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
