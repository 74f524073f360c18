package websocket

import (
	"sync"

	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/metrics"
	"github.com/swiftcab/dispatch/pkg/pubsub"
)

// Gateway tracks connected websocket sessions and bridges their
// subscriptions onto the pubsub hub. The hub owns fan-out; the gateway
// owns connection lifecycle.
type Gateway struct {
	hub     *pubsub.Hub
	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *logger.Logger
}

func NewGateway(hub *pubsub.Hub, log *logger.Logger) *Gateway {
	return &Gateway{
		hub:     hub,
		clients: make(map[*Client]bool),
		logger:  log,
	}
}

// Register adds a connected client.
func (g *Gateway) Register(c *Client) {
	g.mu.Lock()
	g.clients[c] = true
	g.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()
	g.logger.Info("Session connected",
		logger.String("client_id", c.ID),
		logger.String("user_id", c.UserID),
		logger.String("user_type", c.UserType),
	)
}

// Unregister drops a client and releases all its hub subscriptions.
func (g *Gateway) Unregister(c *Client) {
	g.mu.Lock()
	_, ok := g.clients[c]
	if ok {
		delete(g.clients, c)
	}
	g.mu.Unlock()

	if !ok {
		return
	}

	c.dropAllSubscriptions()
	c.closeSend()
	metrics.ActiveSubscriptions.Dec()
	g.logger.Info("Session disconnected", logger.String("client_id", c.ID))
}

// ActiveConnections returns the number of connected sessions.
func (g *Gateway) ActiveConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
