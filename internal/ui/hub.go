package ui

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/messaging"
)

// Hub fans router broadcasts out to connected WebSocket clients. It is the
// push half of the UI: product list changes, capture lifecycle events, and
// try-on results arrive here without polling.
type Hub struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("ws"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Register subscribes the hub to every broadcast the UI cares about.
func (h *Hub) Register(router *messaging.Router) {
	forward := func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
		h.broadcast(msg)
		return nil, nil
	}
	router.Handle(schemas.MsgProductsUpdated, forward)
	router.Handle(schemas.MsgProductCaptureActivated, forward)
	router.Handle(schemas.MsgProductCaptureFinished, forward)
	router.Handle(schemas.MsgTryOnResult, forward)
}

// ServeWS upgrades the request and keeps the connection until the client
// goes away. Clients only listen; inbound frames are drained and dropped.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("UI client connected", zap.Int("clients", count))

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) broadcast(msg schemas.Envelope) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode broadcast", zap.Error(err))
		return
	}

	h.mu.Lock()
	conns := make([]net.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := wsutil.WriteServerText(c, raw); err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) drop(conn net.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]net.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[net.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
