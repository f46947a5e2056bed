package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const broadcastBuffer = 256

// Hub fans frames out to the WebSocket clients of one feed. A single run
// loop owns the client set; clients that cannot keep up are dropped so
// one stalled dashboard never blocks the rest.
type Hub struct {
	name     string
	logger   *slog.Logger
	snapshot func() any // full-state frame for new clients

	upgrader   websocket.Upgrader
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan any
	clients    map[*wsClient]struct{}
	done       chan struct{}

	count   atomic.Int64
	evicted atomic.Int64
	lost    atomic.Int64
}

func newHub(name string, snapshot func() any, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:     name,
		logger:   logger.With("hub", name),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan any, broadcastBuffer),
		clients:    make(map[*wsClient]struct{}),
		done:       make(chan struct{}),
	}
}

// run owns the client set until the context ends.
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.count.Store(0)
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			if h.snapshot != nil {
				client.send <- h.snapshot()
			}
			h.logger.Debug("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Store(int64(len(h.clients)))
			}

		case frame := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					delete(h.clients, client)
					close(client.send)
					h.evicted.Add(1)
					h.logger.Warn("slow client dropped", "clients", len(h.clients))
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// Broadcast queues a frame for all clients. Frames are dropped (and
// counted) when the hub itself is saturated.
func (h *Hub) Broadcast(frame any) {
	select {
	case h.broadcast <- frame:
	default:
		h.lost.Add(1)
	}
}

// Clients returns the current client count.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// handle upgrades the request and hands the connection to the hub.
func (h *Hub) handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan any, clientSendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
