package aggregate

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Source identifies which side of the merge an update comes from.
type Source int

const (
	SourcePersonal Source = iota
	SourceFleet
)

func (s Source) String() string {
	if s == SourceFleet {
		return "fleet"
	}
	return "personal"
}

// Snapshot is the merged view published after every update.
type Snapshot struct {
	Vehicles        []models.Vehicle         `json:"vehicles"`
	Tasks           []models.MaintenanceTask `json:"tasks"`
	Logs            []models.ServiceLog      `json:"logs"`
	ActiveVehicleID primitive.ObjectID       `json:"active_vehicle_id"`
}

// Feed keeps the latest collections per source and republishes the merged
// snapshot whenever any of them changes.
//
// Contract:
//   - Setters never block on subscribers.
//   - Each subscriber channel holds at most the latest snapshot; an unread
//     snapshot is replaced by a newer one.
//   - A source that reports an error is treated as empty until it recovers.
type Feed struct {
	log logrus.FieldLogger

	mu       sync.Mutex
	vehicles [2][]models.Vehicle
	tasks    [2][]models.MaintenanceTask
	logs     [2][]models.ServiceLog
	active   primitive.ObjectID
	current  Snapshot

	subs map[uint64]chan Snapshot
	seq  atomic.Uint64
}

// NewFeed returns an empty feed.
func NewFeed(log logrus.FieldLogger) *Feed {
	f := &Feed{log: log, subs: map[uint64]chan Snapshot{}}
	f.current = f.rebuild()
	return f
}

// SetVehicles replaces the vehicles of one source.
func (f *Feed) SetVehicles(src Source, vehicles []models.Vehicle, err error) {
	if err != nil {
		f.degrade("vehicles", src, err)
		vehicles = nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles[src] = vehicles
	f.publishLocked()
}

// SetTasks replaces the tasks of one source.
func (f *Feed) SetTasks(src Source, tasks []models.MaintenanceTask, err error) {
	if err != nil {
		f.degrade("tasks", src, err)
		tasks = nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[src] = tasks
	f.publishLocked()
}

// SetLogs replaces the service logs of one source.
func (f *Feed) SetLogs(src Source, logs []models.ServiceLog, err error) {
	if err != nil {
		f.degrade("logs", src, err)
		logs = nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[src] = logs
	f.publishLocked()
}

// SelectVehicle changes the active vehicle. Unknown ids fall back like any
// other update.
func (f *Feed) SelectVehicle(id primitive.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = id
	f.publishLocked()
}

// Snapshot returns the latest merged view.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Subscribe returns a channel receiving every new snapshot, starting with the
// current one. The unsubscribe func is safe to call more than once.
func (f *Feed) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	id := f.seq.Add(1)

	f.mu.Lock()
	f.subs[id] = ch
	ch <- f.current
	f.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			close(ch)
			f.mu.Unlock()
		})
	}
	return ch, unsub
}

func (f *Feed) degrade(kind string, src Source, err error) {
	f.log.WithFields(logrus.Fields{
		"collection": kind,
		"source":     src.String(),
	}).WithError(err).Warn("subscription failed, treating source as empty")
}

func (f *Feed) rebuild() Snapshot {
	vehicles := MergeVehicles(f.vehicles[SourcePersonal], f.vehicles[SourceFleet])
	f.active = SelectActive(f.active, vehicles)
	return Snapshot{
		Vehicles:        vehicles,
		Tasks:           MergeTasks(f.tasks[SourcePersonal], f.tasks[SourceFleet]),
		Logs:            MergeLogs(f.logs[SourcePersonal], f.logs[SourceFleet]),
		ActiveVehicleID: f.active,
	}
}

func (f *Feed) publishLocked() {
	f.current = f.rebuild()
	for _, ch := range f.subs {
		// Drop a stale unread snapshot so the newest one always fits.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f.current:
		default:
		}
	}
}
