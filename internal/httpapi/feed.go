package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"strategy-builder-go/internal/canvas"
)

const (
	feedBuffer    = 64
	writeDeadline = 10 * time.Second
)

// FeedHandler streams store changes as JSON messages over a websocket.
// Changes are dropped for a client that falls too far behind.
func (h *APIHandler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	changes := make(chan canvas.Change, feedBuffer)
	unsubscribe := h.store.Subscribe(func(c canvas.Change) {
		select {
		case changes <- c:
		default:
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case c := <-changes:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(c); err != nil {
				h.log.Debug("Change feed client went away", zap.Error(err))
				return
			}
		}
	}
}
