// Package hub fans encoded cycle reports out to websocket subscribers.
//
// A single goroutine owns the subscriber set. Publishing never blocks the
// control loop: a subscriber that falls behind loses its oldest queued
// messages rather than stalling everyone else.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-follower/internal/log"
)

// queueSize is how many messages wait for each subscriber.
const queueSize = 64

// Message is one encoded JSON payload.
type Message []byte

// Stats are the hub diagnostics.
type Stats struct {
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"` // Messages discarded for slow subscribers or a full inbox
}

// Hub tracks subscribers and delivers every published message to each.
type Hub struct {
	name   string
	logger *slog.Logger

	inbox      chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Owned by Run
	clients map[*Client]struct{}

	mu    sync.Mutex
	stats Stats
}

// New creates a hub. name tags its log lines.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		logger:     log.Component("hub").With("hub", name),
		inbox:      make(chan Message, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// SetLogger replaces the hub logger.
func (h *Hub) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// Run delivers messages until ctx is cancelled, then closes every
// subscriber's queue so their connections shut down.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			n := h.setClients()
			h.logger.Info("subscriber joined", "clients", n)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Info("subscriber left", "clients", h.setClients())
			}

		case m := <-h.inbox:
			for c := range h.clients {
				if !c.offer(m) {
					h.countDrop()
				}
			}
		}
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Publish queues m for every subscriber without blocking. When the hub's
// inbox is full the message is dropped.
func (h *Hub) Publish(m Message) {
	select {
	case h.inbox <- m:
		h.mu.Lock()
		h.stats.Published++
		h.mu.Unlock()
	default:
		if n := h.countDrop(); n == 1 || n%100 == 0 {
			h.logger.Warn("hub inbox full, dropping message", "dropped", n)
		}
	}
}

// PublishJSON encodes v and publishes it.
func (h *Hub) PublishJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(data)
	return nil
}

// ClientCount returns the number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats.Clients
}

// Stats returns a copy of the diagnostics.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setClients()
}

func (h *Hub) setClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Clients = len(h.clients)
	return h.stats.Clients
}

func (h *Hub) countDrop() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Dropped++
	return h.stats.Dropped
}
