package admin

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// TraceHub is a live packet-trace feed: every broker log line is both
// written to the standard logger and fanned out to every connected
// websocket client, so an operator can `wscat` into a running broker
// instead of tailing a log file. It satisfies the broker's Logger
// collaborator interface directly.
//
// Grounded on the teacher's ListenAndServeWebsocket (server.go), which
// wires a websocket.Handler into the same Server that serves plain
// MQTT; repurposed here from "serve the protocol over WS" (MQTT-SN is
// UDP-only, so that role doesn't apply) to "stream an operational feed
// over WS", using gorilla/websocket in place of the teacher's
// golang.org/x/net/websocket (design note, dropped dependency).
type TraceHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewTraceHub returns an empty trace hub.
func NewTraceHub() *TraceHub {
	return &TraceHub{clients: make(map[*websocket.Conn]struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection as a trace subscriber until it disconnects.
func (h *TraceHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("trace: upgrade: %v", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	go h.drain(conn)
}

// drain discards anything the client sends (trace is one-way) and
// deregisters the connection once the client goes away.
func (h *TraceHub) drain(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Log implements the broker's Logger interface: write through to the
// standard logger (matching the teacher's plain log.Printf call sites)
// and broadcast the formatted line to every connected trace client.
func (h *TraceHub) Log(level string, msg string, args ...any) {
	line := fmt.Sprintf("[%s] "+msg, append([]any{level}, args...)...)
	log.Print(line)
	h.broadcast(line)
}

func (h *TraceHub) broadcast(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}
