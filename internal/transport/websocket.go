package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/chessmcp/internal/agentreg"
	"github.com/kadirpekel/chessmcp/internal/mcpserver"
	"github.com/kadirpekel/chessmcp/internal/notify"
)

// Keepalive timing per RFC 6455, matching the pattern of generous write
// budget / tight pong tolerance used for long-lived game connections.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// WebSocket serves the MCP protocol over a long-lived WebSocket connection
// per agent: one text frame per JSON-RPC message, with ping/pong keepalive.
type WebSocket struct {
	Router *mcpserver.Router
	Agents *agentreg.Registry
	Notify *notify.Bus
	Log    *slog.Logger

	upgrader websocket.Upgrader
	once     sync.Once
}

func (w *WebSocket) init() {
	w.once.Do(func() {
		w.upgrader = websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		}
	})
}

// ServeHTTP upgrades the connection and runs the read/write pumps until
// the client disconnects.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.init()
	log := w.Log
	if log == nil {
		log = slog.Default()
	}

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	agent, err := w.Agents.Register(agentreg.ClientInfo{Name: "websocket-client"}, "websocket")
	if err != nil {
		log.Warn("registering websocket agent failed", "error", err)
		return
	}
	defer w.Agents.Remove(agent.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	notifications := w.Notify.Subscribe(agent.ID)
	defer w.Notify.Unsubscribe(agent.ID)

	var writeMu sync.Mutex
	writeText := func(b []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.pump(ctx, conn, &writeMu)

	go func() {
		for {
			select {
			case n, ok := <-notifications:
				if !ok {
					return
				}
				if b := mcpserver.EncodeNotification(n); b != nil {
					if err := writeText(b); err != nil {
						cancel()
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		resp := w.Router.Handle(ctx, agent.ID, "websocket", message)
		if resp != nil {
			if err := writeText(resp); err != nil {
				cancel()
				return
			}
		}
	}
}

// pump sends periodic pings so the connection survives idle intervals
// between moves. It stops pinging if a write fails; it does not close the
// socket itself.
func (w *WebSocket) pump(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
