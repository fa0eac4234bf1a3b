package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/status", Handler: m.handleSSE},
		{Method: "GET", Path: "/ws", Handler: m.handleWebSocket},
	}
}

// handleSSE streams events as Server-Sent Events until the client leaves.
//
//	@Summary		Event stream (SSE)
//	@Tags			broadcast
//	@Produce		text/event-stream
//	@Success		200 {object} models.StreamMessage
//	@Router			/broadcast/status [get]
func (m *Module) handleSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		m.logger.Debug("clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		m.logger.Debug("sse flush unsupported", zap.Error(err))
		return
	}

	sub := m.bc.Subscribe()
	defer sub.Close()
	m.logger.Debug("sse client connected", zap.String("remote", r.RemoteAddr))

	keepAlive := time.NewTicker(m.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			m.logger.Debug("sse client disconnected", zap.String("remote", r.RemoteAddr))
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				m.logger.Warn("encode stream message", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// handleWebSocket streams events as JSON text frames. Client frames are
// ignored.
//
//	@Summary		Event stream (WebSocket)
//	@Tags			broadcast
//	@Success		101
//	@Router			/broadcast/ws [get]
func (m *Module) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: m.cfg.OriginPatterns,
	})
	if err != nil {
		m.logger.Debug("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	sub := m.bc.Subscribe()
	defer sub.Close()
	m.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	keepAlive := time.NewTicker(m.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("websocket client disconnected", zap.String("remote", r.RemoteAddr))
			return
		case <-keepAlive.C:
			if err := m.wsDo(ctx, func(ctx context.Context) error { return conn.Ping(ctx) }); err != nil {
				m.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := m.wsDo(ctx, func(ctx context.Context) error { return wsjson.Write(ctx, conn, msg) }); err != nil {
				m.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

// wsDo runs one WebSocket operation under the write timeout.
func (m *Module) wsDo(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	return op(ctx)
}
