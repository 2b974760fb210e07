// Package ws upgrades HTTP requests to websocket connections and hands them
// to the hub. The pipeline is one-directional; the read loop exists only to
// notice when the peer goes away.
package ws

import (
	nethttp "net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"live-results/dashboard/internal/hub"
)

// Handler serves the /ws endpoint.
type Handler struct {
	hub      *hub.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the websocket handler. A nil logger is replaced with a
// no-op one.
func NewHandler(h *hub.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the connection, subscribes it to the hub (which queues the
// full replay), and blocks reading until the peer disconnects.
func (h *Handler) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	id := h.hub.Subscribe(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Unsubscribe(id)
			return nil
		}
	}
}
