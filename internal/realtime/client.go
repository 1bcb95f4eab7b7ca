package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/aggregate"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message types
const (
	TypeDashboard     = "dashboard"
	TypeSelectVehicle = "select_vehicle"
	TypeError         = "error"
)

// DashboardMessage is the complete dashboard state sent after every change.
type DashboardMessage struct {
	Type            string                 `json:"type"`
	GeneratedAt     time.Time              `json:"generated_at"`
	ActiveVehicleID string                 `json:"active_vehicle_id,omitempty"`
	Summary         schedule.Summary       `json:"summary"`
	Tasks           []models.DashboardTask `json:"tasks"`
	VehicleTasks    []models.DashboardTask `json:"vehicle_tasks"`
	Vehicles        []models.Vehicle       `json:"vehicles"`
}

// ClientMessage is a command sent by the browser.
type ClientMessage struct {
	Type      string `json:"type"`
	VehicleID string `json:"vehicle_id,omitempty"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const sendBuffer = 16

// Client turns feed snapshots into dashboard messages for one connection.
type Client struct {
	hub     *Hub
	feed    *aggregate.Feed
	release func()

	send    chan []byte
	refresh chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newClient(h *Hub, feed *aggregate.Feed, release func()) *Client {
	return &Client{
		hub:     h,
		feed:    feed,
		release: release,
		send:    make(chan []byte, sendBuffer),
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Send is the stream of encoded messages for the connection writer.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close releases the feed and unregisters the client. Safe to call more than
// once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.release != nil {
			c.release()
		}
		c.hub.unregister(c)
	})
}

// HandleMessage applies a command received from the browser.
func (c *Client) HandleMessage(data []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode client message: %w", err)
	}
	switch msg.Type {
	case TypeSelectVehicle:
		id, err := primitive.ObjectIDFromHex(msg.VehicleID)
		if err != nil {
			return fmt.Errorf("invalid vehicle id %q", msg.VehicleID)
		}
		c.feed.SelectVehicle(id)
		return nil
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (c *Client) poke() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

func (c *Client) run() {
	snapshots, unsubscribe := c.feed.Subscribe()
	defer unsubscribe()

	var last aggregate.Snapshot
	for {
		select {
		case <-c.done:
			return
		case snap := <-snapshots:
			last = snap
		case <-c.refresh:
		}
		c.push(BuildMessage(last, c.hub.now()))
	}
}

func (c *Client) push(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.log.WithError(err).Error("encode dashboard message")
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		// Every message carries the full state, the next one supersedes it.
		c.hub.log.WithFields(logrus.Fields{"buffered": len(c.send)}).Warn("dashboard client is slow, dropping update")
	}
}

func (c *Client) pushError(err error) {
	c.push(errorMessage{Type: TypeError, Message: err.Error()})
}

// BuildMessage evaluates a snapshot at now.
func BuildMessage(snap aggregate.Snapshot, now time.Time) DashboardMessage {
	tasks := schedule.BuildDashboard(snap.Vehicles, snap.Tasks, now)
	msg := DashboardMessage{
		Type:         TypeDashboard,
		GeneratedAt:  now,
		Summary:      schedule.Summarize(tasks),
		Tasks:        tasks,
		VehicleTasks: []models.DashboardTask{},
		Vehicles:     snap.Vehicles,
	}
	if msg.Vehicles == nil {
		msg.Vehicles = []models.Vehicle{}
	}
	if !snap.ActiveVehicleID.IsZero() {
		msg.ActiveVehicleID = snap.ActiveVehicleID.Hex()
		msg.VehicleTasks = schedule.ForVehicle(tasks, snap.ActiveVehicleID)
	}
	return msg
}
