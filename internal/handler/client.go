package handler

import (
	"context"
	"net/http"

	"farmsentry/internal/logger"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscribers is the hub side of an alert subscription.
type Subscribers interface {
	Register(ctx context.Context, client *websocket.Conn) error
	Unregister(ctx context.Context, client *websocket.Conn)
}

// AlertsWebsocketHandler subscribes a client to alert broadcasts until it
// disconnects. Incoming messages are ignored.
func AlertsWebsocketHandler(hub Subscribers, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		if err := hub.Register(r.Context(), connection); err != nil {
			connection.Close()
			return
		}
		defer hub.Unregister(context.Background(), connection)

		logger.Info("Alert subscriber connected")

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Alert subscriber disconnected normally")
				} else {
					logger.Warning("Alert subscriber disconnected: %v", err)
				}
				break
			}
		}
	}
}
