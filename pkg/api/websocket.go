package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/events"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
)

const (
	ChannelEvents  = "events"
	ChannelTrades  = "trades"
	ChannelOrders  = "orders"
	accountChannel = "account:"
)

// AccountChannel is the channel carrying every event that touches addr
func AccountChannel(addr common.Address) string {
	return accountChannel + addr.Hex()
}

// channelsFor lists every channel a record is published on
func channelsFor(rec events.Record) []string {
	chans := []string{ChannelEvents}
	switch rec.Kind() {
	case events.KindTrade:
		chans = append(chans, ChannelTrades, ChannelOrders)
	case events.KindOrder, events.KindCancel:
		chans = append(chans, ChannelOrders)
	}
	for _, addr := range rec.Payload.Accounts() {
		chans = append(chans, AccountChannel(addr))
	}
	return chans
}

// normalizeChannel accepts account channels in any address case
func normalizeChannel(ch string) (string, bool) {
	switch ch {
	case ChannelEvents, ChannelTrades, ChannelOrders:
		return ch, true
	}
	if rest, ok := strings.CutPrefix(ch, accountChannel); ok && common.IsHexAddress(rest) {
		return AccountChannel(common.HexToAddress(rest)), true
	}
	return "", false
}

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				metrics.WSClientDisconnected()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			close(client.registered)
			metrics.WSClientConnected()
			h.logger.Infow("ws_client_connected", "client", client.id, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WSClientDisconnected()
				h.logger.Infow("ws_client_disconnected", "client", client.id, "total", len(h.clients))
			}
			h.mu.Unlock()
		}
	}
}

// Publish sends rec to every client subscribed to one of its channels.
// A client with a full buffer misses the record and can backfill
// from GET /events.
func (h *Hub) Publish(rec events.Record) {
	chans := channelsFor(rec)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		for _, ch := range chans {
			if !client.IsSubscribed(ch) {
				continue
			}
			message, err := json.Marshal(WSMessage{Channel: ch, Data: rec})
			if err != nil {
				h.logger.Errorw("ws_marshal_failed", "seq", rec.Seq, "err", err)
				return
			}
			select {
			case client.send <- message:
			default:
				h.logger.Warnw("ws_client_lagging", "client", client.id, "seq", rec.Seq)
			}
		}
	}
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	registered chan struct{}

	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) Subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[channel] = true
	c.subsMu.Unlock()
}

func (c *Client) Unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, channel)
	c.subsMu.Unlock()
}

func (c *Client) ack(op string, channels []string) {
	message, err := json.Marshal(WSAck{Op: op, Channels: channels})
	if err != nil {
		return
	}
	// send is closed by the hub under the write lock
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnw("ws_read_failed", "client", c.id, "err", err)
			}
			break
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Debugw("ws_invalid_message", "client", c.id, "err", err)
			continue
		}

		var applied []string
		for _, raw := range req.Channels {
			ch, ok := normalizeChannel(raw)
			if !ok {
				c.hub.logger.Debugw("ws_unknown_channel", "client", c.id, "channel", raw)
				continue
			}
			switch req.Op {
			case "subscribe":
				c.Subscribe(ch)
			case "unsubscribe":
				c.Unsubscribe(ch)
			default:
				continue
			}
			applied = append(applied, ch)
		}
		c.ack(req.Op, applied)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled by main server
		return true
	},
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            conn.RemoteAddr().String(),
		registered:    make(chan struct{}),
		subscriptions: make(map[string]bool),
	}

	select {
	case client.hub.register <- client:
		<-client.registered
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
