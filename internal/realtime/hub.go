// Package realtime pushes live dashboards to websocket clients. Each client
// owns one merged feed; the hub tracks clients and periodically asks them to
// re-evaluate so date-based statuses move without any data change.
package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/aggregate"
)

// Hub maintains the set of active dashboard clients.
type Hub struct {
	log logrus.FieldLogger
	now func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}

	cron *cron.Cron
}

// NewHub creates a hub. now is used to evaluate dashboards; nil means
// time.Now.
func NewHub(log logrus.FieldLogger, now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	return &Hub{
		log:     log,
		now:     now,
		clients: make(map[*Client]struct{}),
		cron:    cron.New(),
	}
}

// Start schedules the periodic refresh.
func (h *Hub) Start(every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", every)
	}
	if _, err := h.cron.AddFunc("@every "+every.String(), h.Refresh); err != nil {
		return fmt.Errorf("schedule dashboard refresh: %w", err)
	}
	h.cron.Start()
	h.log.WithField("every", every.String()).Info("dashboard refresher started")
	return nil
}

// Stop halts the refresher and closes every client.
func (h *Hub) Stop() {
	<-h.cron.Stop().Done()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.log.Info("dashboard hub stopped")
}

// Attach registers a client for feed. release is called once when the client
// closes.
func (h *Hub) Attach(feed *aggregate.Feed, release func()) *Client {
	c := newClient(h, feed, release)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	go c.run()
	h.log.WithField("clients", total).Debug("dashboard client connected")
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	h.log.WithField("clients", total).Debug("dashboard client disconnected")
}

// Refresh asks every client to re-evaluate its dashboard.
func (h *Hub) Refresh() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.poke()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
