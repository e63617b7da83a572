package httpapi

import (
	"net/http"
	"time"

	"estimo/domain"
	"estimo/infrastructure/wire"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stream pushes every snapshot of the room as a JSON text frame, starting
// with the current state. The connection is read only to notice the peer
// going away.
func (h *Handler) stream(c *gin.Context) {
	id := roomID(c)
	if err := domain.ValidateRoomID(id); err != nil {
		h.fail(c, err)
		return
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "room_id", id, "error", err)
		return
	}
	defer func() { _ = ws.Close() }()

	updates := make(chan domain.Room, 16)
	gone := make(chan struct{})
	stop := make(chan struct{})
	cancel := h.engine.SubscribeRoom(id, func(room domain.Room) {
		select {
		case updates <- room:
		case <-gone:
		case <-stop:
		}
	}, func(err error) {
		h.log.Warn("Room stream degraded", "room_id", id, "error", err)
	})
	// stop is closed first so a blocked callback lets cancel return.
	defer cancel()
	defer close(stop)

	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case room := <-updates:
			data, err := json.Marshal(wire.FromRoom(room))
			if err != nil {
				h.log.Error("Failed to encode room", "room_id", id, "error", err)
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
