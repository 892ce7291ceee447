package bus

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often the timeout monitor scans for expired
// pending actions.
const DefaultSweepInterval = 30 * time.Second

// Monitor periodically escalates expired pending actions. A review action
// that times out gets a second chance in front of an approver; an approval
// that times out fails the incident.
type Monitor struct {
	bus      *Coordinator
	interval time.Duration
	logger   *zap.Logger

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor creates a monitor for the bus. A non-positive interval falls
// back to DefaultSweepInterval.
func NewMonitor(b *Coordinator, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		bus:      b,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Subsequent calls are no-ops.
func (m *Monitor) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.run()
}

// Stop signals the loop and waits for any in-flight sweep to finish. Stopping
// a monitor that never started is a no-op.
func (m *Monitor) Stop() {
	if !m.started.Load() {
		return
	}
	select {
	case <-m.stop:
		// Already stopped.
	default:
		close(m.stop)
	}
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("timeout monitor started", zap.Duration("interval", m.interval))
	for {
		select {
		case <-m.stop:
			m.logger.Info("timeout monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(context.Background())
		}
	}
}

// Sweep runs a single escalation pass and returns the number of actions it
// escalated or failed. Exported so tests and operators can force a pass
// without waiting for the ticker.
func (m *Monitor) Sweep(ctx context.Context) int {
	now := time.Now().UTC()
	expired := m.bus.expiredActions(now)
	if len(expired) == 0 {
		return 0
	}

	handled := 0
	for _, ref := range expired {
		if m.bus.escalateExpired(ctx, ref, now) {
			handled++
		}
	}
	if handled > 0 {
		m.logger.Info("expired actions handled", zap.Int("count", handled))
	}
	return handled
}
