// Package bus implements the coordination core for human-in-the-loop agent
// workflows: an authoritative in-memory state store, a pending-action tracker,
// subscriber fan-out, best-effort persistence, timeout escalation, and
// idempotent resume bookkeeping.
//
// The in-memory store is the source of truth while the process is alive.
// Persisted copies are a recovery mirror, written after every mutation and
// read back only at startup.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/candorops/signoff/internal/observability"
	"github.com/candorops/signoff/internal/store"
	"github.com/candorops/signoff/model"
)

// DefaultEscalationWindow is how long an escalated approve_policy action waits
// for an approver before the incident is failed.
const DefaultEscalationWindow = 60 * time.Minute

// escalationTimeoutError is the terminal error recorded when an escalated
// approval itself expires.
const escalationTimeoutError = "Escalated approval timed out; manual intervention required."

// Resume outcome labels.
const (
	resumeOutcomeResumed  = "resumed"
	resumeOutcomeReplayed = "replayed"
	resumeOutcomeNotFound = "not_found"
	resumeOutcomeMismatch = "mismatch"
)

// Escalation outcome labels.
const (
	escalationOutcomeEscalated = "escalated"
	escalationOutcomeTerminal  = "terminal"
)

// PauseRequest describes the human decision an agent wants before continuing.
type PauseRequest struct {
	// ActionName is the unique token a resume must present. Generated when
	// blank. Reusing a name across incidents is the caller's responsibility
	// to avoid; reusing it on the same incident replaces the prior action.
	ActionName  string
	Kind        model.ActionKind
	Description string
	Payload     map[string]any
	// Timeout sets the action's expiry relative to now. Zero or negative
	// means the action never expires and the monitor will not touch it.
	Timeout time.Duration
}

// ResumeRequest carries a human decision back into a paused workflow. Approved
// and Notes are recorded in the state's log but never gate the transition;
// rejection handling belongs to upstream policy logic.
type ResumeRequest struct {
	ActionName    string
	Approved      bool
	EditedPayload map[string]any
	Notes         string
	// BandOverride replaces the state's policy band when set. AUTO derives
	// can_auto_apply=true/requires_approval=false, any other band the inverse.
	BandOverride model.PolicyBand
	Actor        string
}

// Coordinator is the state and action coordination bus. One instance serves a
// deployment; agents emit state snapshots into it, humans resolve pending
// actions through it, and subscribers observe every change.
type Coordinator struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	store   store.StateStore
	ledger  ResumeLedger
	subs    *registry

	escalationWindow time.Duration

	// mu guards states and pending together. Writers hold it for the full
	// read-modify-write on an incident and release it before persistence and
	// fan-out. pending holds the same *PendingAction the owning state holds,
	// never a copy.
	mu      sync.RWMutex
	states  map[string]*model.WorkflowState
	pending map[string]*model.PendingAction
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore attaches a persistence adapter. Without one the bus is purely
// in-memory and Restore is a no-op.
func WithStore(s store.StateStore) Option {
	return func(b *Coordinator) { b.store = s }
}

// WithLedger replaces the resumed-action ledger. The default is an in-memory
// ledger with DefaultLedgerRetention.
func WithLedger(l ResumeLedger) Option {
	return func(b *Coordinator) {
		if l != nil {
			b.ledger = l
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(b *Coordinator) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics attaches metric instruments. Without them nothing is recorded.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Coordinator) { b.metrics = m }
}

// WithEscalationWindow sets how long escalated approvals wait before the
// incident is failed.
func WithEscalationWindow(d time.Duration) Option {
	return func(b *Coordinator) {
		if d > 0 {
			b.escalationWindow = d
		}
	}
}

// New creates a Coordinator.
func New(opts ...Option) *Coordinator {
	b := &Coordinator{
		logger:           zap.NewNop(),
		ledger:           NewMemoryResumeLedger(DefaultLedgerRetention),
		subs:             newRegistry(),
		escalationWindow: DefaultEscalationWindow,
		states:           make(map[string]*model.WorkflowState),
		pending:          make(map[string]*model.PendingAction),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit records a state snapshot reported by an agent. The snapshot replaces
// whatever the bus held for the incident, gets updated_at stamped (plus
// started_at if zero and completed_at on terminal steps), is mirrored to the
// persistence adapter, and is fanned out to subscribers. Persistence and
// subscriber failures are logged and never surfaced to the caller.
func (b *Coordinator) Emit(ctx context.Context, state model.WorkflowState) (model.WorkflowState, error) {
	if state.IncidentID == "" {
		return model.WorkflowState{}, requiredError("incident_id")
	}
	if !state.Kind.Valid() {
		return model.WorkflowState{}, invalidValueError("kind", fmt.Sprintf("unknown workflow kind %q", state.Kind))
	}
	if !state.Step.Valid() {
		return model.WorkflowState{}, invalidValueError("step", fmt.Sprintf("unknown step %q", state.Step))
	}

	now := time.Now().UTC()

	b.mu.Lock()
	stored := state.Clone()
	stored.UpdatedAt = now
	if stored.StartedAt.IsZero() {
		if prev, ok := b.states[stored.IncidentID]; ok {
			stored.StartedAt = prev.StartedAt
		}
		if stored.StartedAt.IsZero() {
			stored.StartedAt = now
		}
	}
	if stored.Step.Terminal() {
		// Terminal incidents carry no pending action; a leftover one would
		// sit in the review queue and later escalate a finished workflow.
		stored.Pending = nil
		if stored.CompletedAt == nil {
			t := now
			stored.CompletedAt = &t
		}
	}
	b.states[stored.IncidentID] = &stored
	if stored.Pending != nil {
		b.pending[stored.IncidentID] = stored.Pending
	} else {
		delete(b.pending, stored.IncidentID)
	}
	b.setGaugesLocked()
	snapshot := stored.Clone()
	b.mu.Unlock()

	b.logger.Debug("state emitted",
		zap.String("incident_id", snapshot.IncidentID),
		zap.String("kind", string(snapshot.Kind)),
		zap.String("step", string(snapshot.Step)))
	b.recordEmission(snapshot.Kind)

	b.persist(ctx, snapshot)
	b.fanOut(ctx, snapshot)
	return snapshot, nil
}

// Pause stores the supplied state with a new pending action attached and
// emits it. The state's step becomes paused_for_review and requires_approval
// is set; everything else is taken from the supplied snapshot. Pausing an
// incident whose stored state is already terminal fails with an
// INCIDENT_TERMINAL error. A second pause on the same incident replaces the
// prior action: last pause wins.
func (b *Coordinator) Pause(ctx context.Context, state model.WorkflowState, req PauseRequest) (model.WorkflowState, error) {
	if state.IncidentID == "" {
		return model.WorkflowState{}, requiredError("incident_id")
	}
	if !state.Kind.Valid() {
		return model.WorkflowState{}, invalidValueError("kind", fmt.Sprintf("unknown workflow kind %q", state.Kind))
	}
	if !req.Kind.Valid() {
		return model.WorkflowState{}, invalidValueError("action_kind", fmt.Sprintf("unknown action kind %q", req.Kind))
	}

	now := time.Now().UTC()
	name := req.ActionName
	if name == "" {
		name = newActionName(req.Kind, state.IncidentID)
	}

	action := &model.PendingAction{
		Name:        name,
		Kind:        req.Kind,
		IncidentID:  state.IncidentID,
		Description: req.Description,
		Payload:     model.CopyPayload(req.Payload),
		CreatedAt:   now,
	}
	if req.Timeout > 0 {
		expires := now.Add(req.Timeout)
		action.ExpiresAt = &expires
	}

	b.mu.Lock()
	prev, exists := b.states[state.IncidentID]
	if exists && prev.Step.Terminal() {
		step := prev.Step
		b.mu.Unlock()
		return model.WorkflowState{}, model.NewIncidentTerminalError(state.IncidentID, step)
	}
	if exists && prev.Pending != nil {
		b.logger.Warn("replacing pending action",
			zap.String("incident_id", state.IncidentID),
			zap.String("previous_action", prev.Pending.Name),
			zap.String("action", action.Name))
	}
	stored := state.Clone()
	if stored.StartedAt.IsZero() {
		if exists {
			stored.StartedAt = prev.StartedAt
		}
		if stored.StartedAt.IsZero() {
			stored.StartedAt = now
		}
	}
	stored.Pending = action
	stored.Step = model.StepPausedForReview
	stored.RequiresApproval = true
	stored.UpdatedAt = now
	b.states[stored.IncidentID] = &stored
	b.pending[stored.IncidentID] = action
	b.setGaugesLocked()
	snapshot := stored.Clone()
	b.mu.Unlock()

	b.logger.Info("workflow paused for human action",
		zap.String("incident_id", snapshot.IncidentID),
		zap.String("action", action.Name),
		zap.String("action_kind", string(action.Kind)),
		zap.Timep("expires_at", action.ExpiresAt))
	b.recordPause(req.Kind)

	b.persist(ctx, snapshot)
	b.fanOut(ctx, snapshot)
	return snapshot, nil
}

// Resume applies a human decision to the incident's pending action.
//
// Failure modes, checked in order: no state for the incident is NOT_FOUND; no
// pending action is an idempotent replay (current state, no error) when the
// action name was resumed before, NOT_FOUND otherwise; a live action with a
// different name is ACTION_MISMATCH.
//
// On success the pending action is cleared, the step becomes
// resumed_from_review, the edited payload is merged into the domain payload
// under the workflow kind's key, a band override rewrites the approval flags,
// and the action name is remembered for future replays.
func (b *Coordinator) Resume(ctx context.Context, incidentID string, req ResumeRequest) (model.WorkflowState, error) {
	if incidentID == "" {
		return model.WorkflowState{}, requiredError("incident_id")
	}
	if req.ActionName == "" {
		return model.WorkflowState{}, requiredError("action_name")
	}
	if req.BandOverride != "" && !req.BandOverride.Valid() {
		return model.WorkflowState{}, invalidValueError("policy_band_override", fmt.Sprintf("unknown policy band %q", req.BandOverride))
	}

	now := time.Now().UTC()

	b.mu.Lock()
	stored, ok := b.states[incidentID]
	if !ok {
		b.mu.Unlock()
		b.recordResume(resumeOutcomeNotFound)
		return model.WorkflowState{}, model.NewNotFoundError(fmt.Sprintf("incident %q has no workflow state", incidentID))
	}
	if stored.Pending == nil {
		snapshot := stored.Clone()
		b.mu.Unlock()

		// Ledger lookup happens outside the lock; it may be a network call.
		replayed, err := b.ledger.WasResumed(ctx, req.ActionName)
		if err != nil {
			b.logger.Warn("resume ledger lookup failed",
				zap.String("incident_id", incidentID),
				zap.String("action", req.ActionName),
				zap.Error(err))
		}
		if replayed {
			b.logger.Info("resume replayed",
				zap.String("incident_id", incidentID),
				zap.String("action", req.ActionName))
			b.recordResume(resumeOutcomeReplayed)
			return snapshot, nil
		}
		b.recordResume(resumeOutcomeNotFound)
		return model.WorkflowState{}, model.NewNotFoundError(fmt.Sprintf("incident %q has no pending action", incidentID))
	}
	if stored.Pending.Name != req.ActionName {
		live := stored.Pending.Name
		b.mu.Unlock()
		b.recordResume(resumeOutcomeMismatch)
		return model.WorkflowState{}, model.NewActionMismatchError(req.ActionName, live)
	}

	stored.Pending = nil
	delete(b.pending, incidentID)
	stored.Step = model.StepResumedFromReview
	if len(req.EditedPayload) > 0 {
		mergePayload(stored, req.EditedPayload)
	}
	if req.BandOverride != "" {
		stored.PolicyBand = req.BandOverride
		if req.BandOverride == model.PolicyBandAuto {
			stored.CanAutoApply = true
			stored.RequiresApproval = false
		} else {
			stored.CanAutoApply = false
			stored.RequiresApproval = true
		}
	}
	message := fmt.Sprintf("action %q resumed (approved=%t)", req.ActionName, req.Approved)
	if req.Notes != "" {
		message += ": " + req.Notes
	}
	stored.AppendLog(now, req.Actor, message)
	stored.UpdatedAt = now
	b.setGaugesLocked()
	snapshot := stored.Clone()
	b.mu.Unlock()

	if err := b.ledger.MarkResumed(ctx, req.ActionName); err != nil {
		b.logger.Warn("recording resumed action failed",
			zap.String("action", req.ActionName),
			zap.Error(err))
	}
	b.logger.Info("workflow resumed",
		zap.String("incident_id", incidentID),
		zap.String("action", req.ActionName),
		zap.Bool("approved", req.Approved),
		zap.String("actor", req.Actor))
	b.recordResume(resumeOutcomeResumed)

	b.persist(ctx, snapshot)
	b.fanOut(ctx, snapshot)
	return snapshot, nil
}

// State returns a copy of the incident's current state.
func (b *Coordinator) State(incidentID string) (model.WorkflowState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stored, ok := b.states[incidentID]
	if !ok {
		return model.WorkflowState{}, false
	}
	return stored.Clone(), true
}

// PendingAction returns a copy of the incident's pending action.
func (b *Coordinator) PendingAction(incidentID string) (model.PendingAction, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	action, ok := b.pending[incidentID]
	if !ok {
		return model.PendingAction{}, false
	}
	return *action.Clone(), true
}

// ListStates returns a copy of every tracked state, least recently updated
// first.
func (b *Coordinator) ListStates() []model.WorkflowState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.WorkflowState, 0, len(b.states))
	for _, stored := range b.states {
		out = append(out, stored.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].IncidentID < out[j].IncidentID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}

// ListPendingActions returns a copy of every pending action, oldest first.
// This is the review queue.
func (b *Coordinator) ListPendingActions() []model.PendingAction {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.PendingAction, 0, len(b.pending))
	for _, action := range b.pending {
		out = append(out, *action.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Subscribe registers a callback for one incident's emissions. The returned
// func removes the registration.
func (b *Coordinator) Subscribe(incidentID string, sub Subscriber) func() {
	return b.subs.add(incidentID, sub)
}

// SubscribeAll registers a callback for every emission.
func (b *Coordinator) SubscribeAll(sub Subscriber) func() {
	return b.subs.addGlobal(sub)
}

// Watch returns a channel-backed subscription for one incident. Closing the
// watcher unsubscribes it.
func (b *Coordinator) Watch(incidentID string, buffer int) *Watcher {
	w := newWatcher(buffer)
	w.remove = b.subs.add(incidentID, b.watchSubscriber(w))
	return w
}

// WatchAll returns a channel-backed subscription for every incident.
func (b *Coordinator) WatchAll(buffer int) *Watcher {
	w := newWatcher(buffer)
	w.remove = b.subs.addGlobal(b.watchSubscriber(w))
	return w
}

func (b *Coordinator) watchSubscriber(w *Watcher) Subscriber {
	return SubscriberFunc(func(_ context.Context, state model.WorkflowState) error {
		if !w.send(state) {
			b.recordWatchDrop()
			b.logger.Warn("watcher buffer full, dropping snapshot",
				zap.String("incident_id", state.IncidentID),
				zap.Uint64("dropped", w.Dropped()))
		}
		return nil
	})
}

// Restore reloads every non-completed state from the persistence adapter into
// the in-memory store and re-indexes embedded pending actions. Restored
// action names are dropped from the resume ledger: an action that is pending
// again after a restart must be resumable even if a previous life marked it
// resumed. Returns the number of states and pending actions restored.
func (b *Coordinator) Restore(ctx context.Context) (int, int, error) {
	if b.store == nil {
		return 0, 0, nil
	}
	states, err := b.store.ListOpen(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing open workflow states: %w", err)
	}

	restored, actions := 0, 0
	names := make([]string, 0, len(states))

	b.mu.Lock()
	for _, state := range states {
		if state.IncidentID == "" {
			continue
		}
		stored := state.Clone()
		b.states[stored.IncidentID] = &stored
		if stored.Pending != nil {
			b.pending[stored.IncidentID] = stored.Pending
			names = append(names, stored.Pending.Name)
			actions++
		} else {
			delete(b.pending, stored.IncidentID)
		}
		restored++
	}
	b.setGaugesLocked()
	b.mu.Unlock()

	for _, name := range names {
		if err := b.ledger.Forget(ctx, name); err != nil {
			b.logger.Warn("clearing resumed-action ledger entry failed",
				zap.String("action", name),
				zap.Error(err))
		}
	}

	b.recordRestore(restored, actions)
	return restored, actions, nil
}

// expiredAction identifies one tracker entry whose expiry had passed when the
// monitor snapshotted it. Escalation re-validates before acting.
type expiredAction struct {
	incidentID string
	name       string
	expiresAt  time.Time
}

// expiredActions snapshots the tracker entries whose expiry has elapsed,
// oldest expiry first.
func (b *Coordinator) expiredActions(now time.Time) []expiredAction {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []expiredAction
	for incidentID, action := range b.pending {
		if action.Expired(now) {
			out = append(out, expiredAction{
				incidentID: incidentID,
				name:       action.Name,
				expiresAt:  *action.ExpiresAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].expiresAt.Before(out[j].expiresAt) })
	return out
}

// escalateExpired escalates one expired action. The tracker is re-checked
// under the write lock because the action may have been resumed or replaced
// between the monitor's snapshot and this call. An expired review action is
// replaced with an approve_policy action carrying the original kind and
// payload; an expired approve_policy action fails the incident. Reports
// whether a state change was made.
func (b *Coordinator) escalateExpired(ctx context.Context, ref expiredAction, now time.Time) bool {
	b.mu.Lock()
	stored, ok := b.states[ref.incidentID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	action := stored.Pending
	if action == nil || action.Name != ref.name || !action.Expired(now) {
		b.mu.Unlock()
		return false
	}

	var outcome string
	if action.Kind == model.ActionApprovePolicy {
		stored.Pending = nil
		delete(b.pending, ref.incidentID)
		stored.Step = model.StepError
		stored.Error = escalationTimeoutError
		completed := now
		stored.CompletedAt = &completed
		outcome = escalationOutcomeTerminal
	} else {
		expires := now.Add(b.escalationWindow)
		escalated := &model.PendingAction{
			Name:        newActionName(model.ActionApprovePolicy, ref.incidentID),
			Kind:        model.ActionApprovePolicy,
			IncidentID:  ref.incidentID,
			Description: fmt.Sprintf("Approval required: %s action %q expired without a response", action.Kind, action.Name),
			Payload: map[string]any{
				"previous_kind":    string(action.Kind),
				"previous_payload": model.CopyPayload(action.Payload),
			},
			CreatedAt: now,
			ExpiresAt: &expires,
		}
		stored.Pending = escalated
		b.pending[ref.incidentID] = escalated
		stored.Step = model.StepPausedForReview
		stored.RequiresApproval = true
		stored.Warning = fmt.Sprintf("HITL action '%s' timed out; escalating to approver.", action.Kind)
		outcome = escalationOutcomeEscalated
	}
	stored.UpdatedAt = now
	b.setGaugesLocked()
	snapshot := stored.Clone()
	b.mu.Unlock()

	if outcome == escalationOutcomeTerminal {
		b.logger.Error("escalated approval expired, failing incident",
			zap.String("incident_id", ref.incidentID),
			zap.String("action", ref.name))
	} else {
		b.logger.Warn("pending action expired, escalating to approver",
			zap.String("incident_id", ref.incidentID),
			zap.String("action", ref.name),
			zap.String("escalated_action", snapshot.Pending.Name),
			zap.Timep("escalation_expires_at", snapshot.Pending.ExpiresAt))
	}
	b.recordEscalation(outcome)

	b.persist(ctx, snapshot)
	b.fanOut(ctx, snapshot)
	return true
}

// persist mirrors a snapshot to the configured store. Persistence is
// best-effort: failures are logged and swallowed so a slow or absent store
// never blocks the workflow.
func (b *Coordinator) persist(ctx context.Context, state model.WorkflowState) {
	if b.store == nil {
		return
	}
	if _, err := b.store.Save(ctx, state); err != nil {
		b.recordPersistFailure()
		b.logger.Warn("persisting workflow state failed",
			zap.String("incident_id", state.IncidentID),
			zap.String("step", string(state.Step)),
			zap.Error(err))
	}
}

// fanOut delivers a snapshot to every matching subscriber. Each subscriber
// gets its own deep copy and its own panic recovery, so one bad subscriber
// can neither corrupt the canonical state nor starve the rest.
func (b *Coordinator) fanOut(ctx context.Context, state model.WorkflowState) {
	for _, sub := range b.subs.snapshot(state.IncidentID) {
		b.deliver(ctx, sub, state.Clone())
	}
}

func (b *Coordinator) deliver(ctx context.Context, sub Subscriber, state model.WorkflowState) {
	defer func() {
		if r := recover(); r != nil {
			b.recordSubscriberError()
			b.logger.Error("subscriber panicked",
				zap.String("incident_id", state.IncidentID),
				zap.Any("panic", r))
		}
	}()
	if err := sub.OnState(ctx, state); err != nil {
		b.recordSubscriberError()
		b.logger.Warn("subscriber returned error",
			zap.String("incident_id", state.IncidentID),
			zap.Error(err))
	}
}

// mergePayload merges edits into the state's domain payload under the key
// matching the workflow kind, overwriting colliding fields and keeping the
// rest.
func mergePayload(state *model.WorkflowState, edits map[string]any) {
	if state.Payload == nil {
		state.Payload = make(map[string]any)
	}
	key := string(state.Kind)
	section, _ := state.Payload[key].(map[string]any)
	if section == nil {
		section = make(map[string]any)
	}
	for k, v := range model.CopyPayload(edits) {
		section[k] = v
	}
	state.Payload[key] = section
}

// newActionName builds a pending-action name for callers that did not supply
// one.
func newActionName(kind model.ActionKind, incidentID string) string {
	return fmt.Sprintf("%s_%s_%s", kind, incidentID, uuid.NewString()[:8])
}

func requiredError(field string) *model.ErrorEnvelope {
	return model.NewValidationError([]model.FieldError{
		{Field: field, Code: "REQUIRED", Message: field + " is required"},
	})
}

func invalidValueError(field, message string) *model.ErrorEnvelope {
	return model.NewValidationError([]model.FieldError{
		{Field: field, Code: "INVALID_VALUE", Message: message},
	})
}

// setGaugesLocked refreshes the tracked-incident and pending-action gauges.
// Callers must hold mu.
func (b *Coordinator) setGaugesLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.SetTrackedIncidents(float64(len(b.states)))
	b.metrics.SetPendingActions(float64(len(b.pending)))
}

func (b *Coordinator) recordEmission(kind model.WorkflowKind) {
	if b.metrics != nil {
		b.metrics.RecordEmission(string(kind))
	}
}

func (b *Coordinator) recordPause(kind model.ActionKind) {
	if b.metrics != nil {
		b.metrics.RecordPause(string(kind))
	}
}

func (b *Coordinator) recordResume(outcome string) {
	if b.metrics != nil {
		b.metrics.RecordResume(outcome)
	}
}

func (b *Coordinator) recordEscalation(outcome string) {
	if b.metrics != nil {
		b.metrics.RecordEscalation(outcome)
	}
}

func (b *Coordinator) recordSubscriberError() {
	if b.metrics != nil {
		b.metrics.RecordSubscriberError()
	}
}

func (b *Coordinator) recordWatchDrop() {
	if b.metrics != nil {
		b.metrics.RecordWatchDrop()
	}
}

func (b *Coordinator) recordPersistFailure() {
	if b.metrics != nil {
		b.metrics.RecordPersistFailure()
	}
}

func (b *Coordinator) recordRestore(states, actions int) {
	if b.metrics != nil {
		b.metrics.RecordRestore(states, actions)
	}
}
