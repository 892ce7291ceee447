package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/candorops/signoff/model"
)

// DefaultWatchBuffer is the per-watcher channel buffer used when the caller
// passes a non-positive size.
const DefaultWatchBuffer = 256

// Subscriber receives workflow state snapshots as they are emitted.
// Callbacks run synchronously on the emitting goroutine; a returned error is
// logged and never propagated, and panics are recovered per subscriber.
type Subscriber interface {
	OnState(ctx context.Context, state model.WorkflowState) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, state model.WorkflowState) error

// OnState implements Subscriber.
func (f SubscriberFunc) OnState(ctx context.Context, state model.WorkflowState) error {
	return f(ctx, state)
}

// registry tracks callback subscribers per incident plus global ones.
// Registrations are keyed by an id so that the returned unsubscribe func
// removes exactly one entry, which matters for short-lived registrations
// such as live-update connections.
type registry struct {
	mu         sync.RWMutex
	nextID     uint64
	byIncident map[string]map[uint64]Subscriber
	global     map[uint64]Subscriber
}

func newRegistry() *registry {
	return &registry{
		byIncident: make(map[string]map[uint64]Subscriber),
		global:     make(map[uint64]Subscriber),
	}
}

// add registers an incident-scoped subscriber and returns its remove func.
func (r *registry) add(incidentID string, sub Subscriber) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	subs, ok := r.byIncident[incidentID]
	if !ok {
		subs = make(map[uint64]Subscriber)
		r.byIncident[incidentID] = subs
	}
	subs[id] = sub

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if subs, ok := r.byIncident[incidentID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(r.byIncident, incidentID)
			}
		}
	}
}

// addGlobal registers a subscriber that sees every emission.
func (r *registry) addGlobal(sub Subscriber) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.global[id] = sub

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.global, id)
	}
}

// snapshot returns the subscribers an emission for the incident must reach:
// incident-scoped first, then global.
func (r *registry) snapshot(incidentID string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscriber, 0, len(r.byIncident[incidentID])+len(r.global))
	for _, sub := range r.byIncident[incidentID] {
		out = append(out, sub)
	}
	for _, sub := range r.global {
		out = append(out, sub)
	}
	return out
}

// Watcher is a channel-backed subscription for consumers that range over
// snapshots instead of registering a callback. Sends never block: when the
// buffer is full the snapshot is dropped and counted, so a slow consumer
// falls behind on intermediate states but never stalls the bus.
type Watcher struct {
	ch      chan model.WorkflowState
	remove  func()
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

func newWatcher(buffer int) *Watcher {
	if buffer <= 0 {
		buffer = DefaultWatchBuffer
	}
	return &Watcher{ch: make(chan model.WorkflowState, buffer)}
}

// States returns the channel of state snapshots. Close closes it.
func (w *Watcher) States() <-chan model.WorkflowState {
	return w.ch
}

// Dropped reports how many snapshots were discarded because the buffer was
// full.
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Close unsubscribes the watcher and closes its channel. Safe to call more
// than once.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	if w.remove != nil {
		w.remove()
	}
}

// send delivers a snapshot without blocking. It reports false only when the
// snapshot was dropped because the buffer was full; sends to a closed watcher
// are ignored.
func (w *Watcher) send(state model.WorkflowState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return true
	}
	select {
	case w.ch <- state:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Compile-time interface check.
var _ Subscriber = SubscriberFunc(nil)
