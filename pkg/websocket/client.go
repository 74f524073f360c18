package websocket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/pubsub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client represents one connected session in either the passenger or
// driver role.
type Client struct {
	ID       string
	UserID   string
	UserType string // "passenger" or "driver"
	Gateway  *Gateway
	Conn     *websocket.Conn
	Send     chan []byte

	mu     sync.Mutex
	closed bool
	tokens map[string]pubsub.Token // subscription key -> hub token
	logger *logger.Logger
}

// ClientMessage is an inbound control frame.
// Keys look like "trip/p1", "driver/d1", "watch/d1" or "trips".
type ClientMessage struct {
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`
}

// NewClient creates a websocket client bound to the gateway.
func NewClient(gw *Gateway, conn *websocket.Conn, userID, userType string, log *logger.Logger) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserType: userType,
		Gateway:  gw,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		tokens:   make(map[string]pubsub.Token),
		logger:   log,
	}
}

// ReadPump pumps control messages from the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Gateway.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					logger.Err(err),
					logger.String("client_id", c.ID),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// WritePump pumps outbound frames and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("Bad client message",
			logger.Err(err),
			logger.String("client_id", c.ID),
		)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Key)
	case "unsubscribe":
		c.unsubscribe(msg.Key)
	case "ping":
		c.enqueue([]byte(`{"type":"pong"}`))
	default:
		c.logger.Warn("Unknown message type",
			logger.String("type", msg.Type),
			logger.String("client_id", c.ID),
		)
	}
}

func (c *Client) subscribe(rawKey string) {
	key, ok := parseKey(rawKey)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tokens[rawKey]; exists {
		return
	}
	c.tokens[rawKey] = c.Gateway.hub.Subscribe(key, func(e pubsub.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		c.enqueue(data)
	})

	c.logger.Info("Session subscribed",
		logger.String("client_id", c.ID),
		logger.String("key", rawKey),
	)
}

func (c *Client) unsubscribe(rawKey string) {
	c.mu.Lock()
	token, ok := c.tokens[rawKey]
	if ok {
		delete(c.tokens, rawKey)
	}
	c.mu.Unlock()

	if ok {
		c.Gateway.hub.Unsubscribe(token)
	}
}

func (c *Client) dropAllSubscriptions() {
	c.mu.Lock()
	tokens := make([]pubsub.Token, 0, len(c.tokens))
	for _, t := range c.tokens {
		tokens = append(tokens, t)
	}
	c.tokens = make(map[string]pubsub.Token)
	c.mu.Unlock()

	for _, t := range tokens {
		c.Gateway.hub.Unsubscribe(t)
	}
}

func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.logger.Warn("Client send buffer full, dropping frame",
			logger.String("client_id", c.ID),
		)
	}
}

// closeSend marks the client closed so late hub deliveries are dropped
// instead of hitting a closed channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func parseKey(raw string) (pubsub.Key, bool) {
	if raw == "" {
		return pubsub.Key{}, false
	}
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) == 1 {
		return pubsub.Key{Kind: parts[0]}, true
	}
	if parts[0] == "" || parts[1] == "" {
		return pubsub.Key{}, false
	}
	return pubsub.Key{Kind: parts[0], ID: parts[1]}, true
}
