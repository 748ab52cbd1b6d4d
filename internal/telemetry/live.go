package telemetry

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/GoSRT/internal/logging"
)

const liveWriteWait = 5 * time.Second

// handleLive streams the current spectrum over a websocket, pushing at most
// once per refresh interval and only when a new frame has been applied.
func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("live client dropped", logging.Err(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()

	var lastSeq uint64
	push := func() bool {
		seq := h.spectrum.Sequence()
		if seq == 0 || seq == lastSeq {
			return true
		}
		resp, ok := h.spectrumResponse()
		if !ok {
			return true
		}
		lastSeq = resp.Sequence
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			h.logger.Debug("live write failed", logging.Err(err))
			return false
		}
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}
