package pubsub

import (
	"sync"

	"github.com/swiftcab/dispatch/pkg/logger"
)

// Key identifies a published entity, e.g. {Kind: "trip", ID: passengerID}.
// Feed-style keys leave ID empty.
type Key struct {
	Kind string
	ID   string
}

func (k Key) String() string {
	if k.ID == "" {
		return k.Kind
	}
	return k.Kind + "/" + k.ID
}

// Event is one change notification. Delivery is best-effort: nothing is
// persisted, and a subscriber that connects after a publish must resync
// with a read.
type Event struct {
	Key     Key         `json:"key"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Handler receives events for one subscription. Handlers run on the
// subscriber's own delivery goroutine, so a slow handler only delays
// its own queue.
type Handler func(Event)

// Token identifies a subscription for Unsubscribe.
type Token uint64

type subscriber struct {
	key     Key
	handler Handler
	queue   chan Event
	done    chan struct{}
}

// Hub fans out events to subscribers keyed by (kind, id). Each subscriber
// gets a bounded queue with drop-oldest overflow so publishers never block.
type Hub struct {
	mu        sync.RWMutex
	subs      map[Key]map[Token]*subscriber
	byToken   map[Token]*subscriber
	nextToken Token
	queueSize int
	logger    *logger.Logger
}

// NewHub creates a hub. queueSize bounds each subscriber's backlog.
func NewHub(queueSize int, log *logger.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Hub{
		subs:      make(map[Key]map[Token]*subscriber),
		byToken:   make(map[Token]*subscriber),
		queueSize: queueSize,
		logger:    log,
	}
}

// Subscribe registers handler for all subsequent events on key.
func (h *Hub) Subscribe(key Key, handler Handler) Token {
	sub := &subscriber{
		key:     key,
		handler: handler,
		queue:   make(chan Event, h.queueSize),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.nextToken++
	token := h.nextToken
	if h.subs[key] == nil {
		h.subs[key] = make(map[Token]*subscriber)
	}
	h.subs[key][token] = sub
	h.byToken[token] = sub
	h.mu.Unlock()

	go sub.run()

	h.logger.Debug("subscription added", logger.String("key", key.String()))
	return token
}

// Unsubscribe stops delivery for token. Safe to call twice.
func (h *Hub) Unsubscribe(token Token) {
	h.mu.Lock()
	sub, ok := h.byToken[token]
	if ok {
		delete(h.byToken, token)
		delete(h.subs[sub.key], token)
		if len(h.subs[sub.key]) == 0 {
			delete(h.subs, sub.key)
		}
	}
	h.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// Publish delivers event to every current subscriber of event.Key.
// A full subscriber queue drops its oldest pending event first.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	subs := h.subs[event.Key]
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.offer(event)
	}
}

// SubscriberCount reports active subscriptions for key.
func (h *Hub) SubscriberCount(key Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

func (s *subscriber) offer(e Event) {
	for {
		select {
		case s.queue <- e:
			return
		default:
		}
		// queue full: evict the oldest and retry
		select {
		case <-s.queue:
		default:
		}
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			s.handler(e)
		}
	}
}
