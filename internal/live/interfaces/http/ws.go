package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"plantform-cloud/internal/live"
	"plantform-cloud/internal/observability/metrics"
)

const (
	writeTimeout = 3 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
)

// WSHandler upgrades observer connections and wires them to the registry.
// A connection must declare exactly one device id at connect time; without
// it the upgrade is refused.
type WSHandler struct {
	registry *live.Registry
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewWSHandler constructs a websocket handler.
func NewWSHandler(registry *live.Registry, logger *log.Logger) (*WSHandler, error) {
	if registry == nil {
		return nil, errNilRegistry
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}, nil
}

// ServeHTTP handles GET /ws?deviceId=...
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade: %v", err)
		return
	}

	observer := live.NewObserver()
	h.registry.Subscribe(deviceID, observer)
	metrics.IncLiveObservers(deviceID)

	go h.writePump(conn, observer)
	h.readPump(conn, deviceID, observer)
}

// readPump blocks until the connection closes or errors, then removes the
// observer from the registry. Disconnect is the only cancellation signal a
// live view has.
func (h *WSHandler) readPump(conn *websocket.Conn, deviceID string, observer *live.Observer) {
	defer func() {
		h.registry.Unsubscribe(deviceID, observer)
		observer.Close()
		_ = conn.Close()
		metrics.DecLiveObservers(deviceID)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the observer queue onto the connection and keeps the
// connection alive with pings.
func (h *WSHandler) writePump(conn *websocket.Conn, observer *live.Observer) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case payload, ok := <-observer.Messages():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
