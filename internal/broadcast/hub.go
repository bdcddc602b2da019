// Package broadcast fans gallery envelopes out to WebSocket clients and
// accepts command requests over the same connections.
package broadcast

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/logging"
)

// CommandHandler answers inbound command requests
type CommandHandler interface {
	HandleCommand(ctx context.Context, req events.Request) *events.Message
}

// HandlerFunc adapts a function to CommandHandler
type HandlerFunc func(ctx context.Context, req events.Request) *events.Message

// HandleCommand calls f(ctx, req)
func (f HandlerFunc) HandleCommand(ctx context.Context, req events.Request) *events.Message {
	return f(ctx, req)
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum command size allowed from peer.
	maxMessageSize = 4096

	// Commands a single client may have in flight at once.
	maxPendingCommands = 4

	sendBuffer      = 64
	broadcastBuffer = 256
)

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *events.Message
	register   chan *Client
	unregister chan *Client
	handler    CommandHandler
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zerolog.Logger

	// pongWait bounds the silence tolerated from a peer; pings go out at 9/10 of it
	pongWait time.Duration
}

// NewHub creates a hub. handler may be nil, in which case inbound commands
// are answered with an error envelope.
func NewHub(handler CommandHandler, logger *zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *events.Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		handler:    handler,
		done:       make(chan struct{}),
		logger:     logging.Component(logger, "broadcast"),
		pongWait:   defaultPongWait,
	}
}

func (h *Hub) pingPeriod() time.Duration {
	return (h.pongWait * 9) / 10
}

// Run is the hub's main loop. It disconnects every client when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.disconnect()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", client.id).
				Str("remote", client.remoteHost).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.disconnect()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					client.disconnect()
					delete(h.clients, client)
					h.logger.Warn().Str("client_id", client.id).Msg("client buffer full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every connected client. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(message *events.Message) {
	if message == nil {
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn().Str("type", string(message.Type)).Msg("broadcast queue full, message dropped")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.disconnect()
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Client is one WebSocket connection
type Client struct {
	id         string
	remoteHost string
	hub        *Hub
	conn       *websocket.Conn
	send       chan *events.Message

	// done is closed once the client is dropped; send is never closed
	done      chan struct{}
	closeOnce sync.Once

	pending chan struct{}
}

// NewClient wraps a connection. remoteAddr is used as the requester id for
// commands that do not carry one.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return &Client{
		id:         uuid.New().String(),
		remoteHost: host,
		hub:        hub,
		conn:       conn,
		send:       make(chan *events.Message, sendBuffer),
		done:       make(chan struct{}),
		pending:    make(chan struct{}, maxPendingCommands),
	}
}

func (c *Client) disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
}

// reply queues a direct answer to this client only. Replies to a dropped
// client are discarded.
func (c *Client) reply(msg *events.Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.hub.logger.Warn().Str("client_id", c.id).Msg("reply dropped, client buffer full")
	}
}

// dispatch runs one command off the read loop so slow commands never stall
// keepalive handling
func (c *Client) dispatch(ctx context.Context, data []byte) {
	select {
	case c.pending <- struct{}{}:
	default:
		c.reply(events.NewError("Too many pending requests.", time.Now()))
		return
	}
	go func() {
		defer func() {
			<-c.pending
			if r := recover(); r != nil {
				c.hub.logger.Error().Interface("panic", r).Str("client_id", c.id).Msg("command handler panicked")
				c.reply(events.NewError("Internal error.", time.Now()))
			}
		}()
		c.reply(c.handle(ctx, data))
	}()
}

// ReadPump reads command requests until the connection closes
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		c.disconnect()
		_ = c.conn.Close()
	}()

	pongWait := c.hub.pongWait
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("read error")
			}
			return
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) *events.Message {
	var req events.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return events.NewError("Malformed request.", time.Now())
	}
	if req.RequesterID == "" {
		req.RequesterID = c.remoteHost
	}
	if c.hub.handler == nil {
		return events.NewError("Commands are not accepted on this endpoint.", time.Now())
	}
	return c.hub.handler.HandleCommand(ctx, req)
}

// WritePump writes queued messages and keepalive pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(message)
			if err != nil {
				c.hub.logger.Error().Err(err).Msg("failed to marshal message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
