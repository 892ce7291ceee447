package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/candorops/signoff/internal/bus"
	"github.com/candorops/signoff/internal/config"
	"github.com/candorops/signoff/internal/observability"
	"github.com/candorops/signoff/model"
)

// liveWriteTimeout bounds a single snapshot write or ping to one client.
const liveWriteTimeout = 5 * time.Second

// handleLive upgrades to a WebSocket and streams every state change of one
// incident. On connect the watcher is registered first, then the current
// state is sent when one exists, so no emission between the two is lost.
// Slow consumers lose intermediate snapshots, never the connection.
func handleLive(b *bus.Coordinator, cfg config.LiveConfig, logger *zap.Logger, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidentID := chi.URLParam(r, "incidentID")

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			// Accept already wrote the handshake failure.
			logger.Debug("live accept failed",
				zap.String("incident_id", incidentID), zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream aborted")

		if metrics != nil {
			metrics.RecordLiveConnect()
			defer metrics.RecordLiveDisconnect()
		}

		watcher := b.Watch(incidentID, cfg.Buffer)
		defer watcher.Close()

		// The client never sends application data; CloseRead surfaces its
		// disconnect as context cancellation.
		ctx := conn.CloseRead(r.Context())

		if state, ok := b.State(incidentID); ok {
			if err := writeState(ctx, conn, state); err != nil {
				return
			}
		}

		pingInterval := cfg.PingInterval
		if pingInterval <= 0 {
			pingInterval = 30 * time.Second
		}
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case state, ok := <-watcher.States():
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				if err := writeState(ctx, conn, state); err != nil {
					logger.Debug("live write failed",
						zap.String("incident_id", incidentID), zap.Error(err))
					return
				}
			case <-ticker.C:
				pctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}
}

func writeState(ctx context.Context, conn *websocket.Conn, state model.WorkflowState) error {
	wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, state)
}
