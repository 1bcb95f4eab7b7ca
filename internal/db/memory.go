package db

import (
	"context"
	"errors"
	"sync"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInjectedFailure is returned by a MemoryStore write armed with FailAfter.
var ErrInjectedFailure = errors.New("injected write failure")

// MemoryStore is an in-process Store. Transactions run serialized on a
// private copy of the data which replaces the live data only on success.
// It backs tests and local runs without MongoDB.
type MemoryStore struct {
	mu        sync.Mutex
	data      memData
	failAfter int

	// notifyMu keeps watcher deliveries in commit order.
	notifyMu sync.Mutex
	watchMu  sync.Mutex
	watchers map[uint64]*memWatcher
	seq      uint64
}

type memData struct {
	vehicles map[primitive.ObjectID]models.Vehicle
	tasks    map[primitive.ObjectID]models.MaintenanceTask
	logs     map[primitive.ObjectID]models.ServiceLog
}

func (d memData) clone() memData {
	out := memData{
		vehicles: make(map[primitive.ObjectID]models.Vehicle, len(d.vehicles)),
		tasks:    make(map[primitive.ObjectID]models.MaintenanceTask, len(d.tasks)),
		logs:     make(map[primitive.ObjectID]models.ServiceLog, len(d.logs)),
	}
	for k, v := range d.vehicles {
		out.vehicles[k] = v
	}
	for k, v := range d.tasks {
		out.tasks[k] = v
	}
	for k, v := range d.logs {
		out.logs[k] = v
	}
	return out
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      memData{}.clone(),
		failAfter: -1,
		watchers:  make(map[uint64]*memWatcher),
	}
}

// FailAfter arms the store so that the write following the next n successful
// writes fails with ErrInjectedFailure. The failure fires once. A negative n
// disarms it.
func (s *MemoryStore) FailAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
}

// RunInTransaction runs fn against a copy of the data and commits the copy
// when fn succeeds.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	tx := &memTx{store: s, data: s.data.clone()}
	err := fn(ctx, tx)
	if err == nil && tx.writes > 0 {
		s.data = tx.data
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if tx.writes > 0 {
		s.notify()
	}
	return nil
}

// Vehicles returns the scoped vehicles.
func (s *MemoryStore) Vehicles(ctx context.Context, scope Scope) ([]models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterScope(s.data.vehicles, scope, func(v models.Vehicle) models.Ownership { return v.Ownership }), nil
}

// Tasks returns the scoped maintenance tasks.
func (s *MemoryStore) Tasks(ctx context.Context, scope Scope) ([]models.MaintenanceTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterScope(s.data.tasks, scope, func(t models.MaintenanceTask) models.Ownership { return t.Ownership }), nil
}

// Logs returns the scoped service logs.
func (s *MemoryStore) Logs(ctx context.Context, scope Scope) ([]models.ServiceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterScope(s.data.logs, scope, func(l models.ServiceLog) models.Ownership { return l.Ownership }), nil
}

// WatchVehicles streams the scoped vehicles.
func (s *MemoryStore) WatchVehicles(ctx context.Context, scope Scope, fn func([]models.Vehicle, error)) (Subscription, error) {
	return s.watch(func() { fn(s.Vehicles(ctx, scope)) }), nil
}

// WatchTasks streams the scoped maintenance tasks.
func (s *MemoryStore) WatchTasks(ctx context.Context, scope Scope, fn func([]models.MaintenanceTask, error)) (Subscription, error) {
	return s.watch(func() { fn(s.Tasks(ctx, scope)) }), nil
}

// WatchLogs streams the scoped service logs.
func (s *MemoryStore) WatchLogs(ctx context.Context, scope Scope, fn func([]models.ServiceLog, error)) (Subscription, error) {
	return s.watch(func() { fn(s.Logs(ctx, scope)) }), nil
}

// Close drops every watcher.
func (s *MemoryStore) Close(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for id, w := range s.watchers {
		w.closed = true
		delete(s.watchers, id)
	}
	return nil
}

// Watchers reports how many subscriptions are open.
func (s *MemoryStore) Watchers() int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return len(s.watchers)
}

type memWatcher struct {
	deliver func()
	closed  bool
}

type memSubscription struct {
	store *MemoryStore
	id    uint64
	once  sync.Once
}

func (m *memSubscription) Close() {
	m.once.Do(func() {
		m.store.watchMu.Lock()
		if w, ok := m.store.watchers[m.id]; ok {
			w.closed = true
			delete(m.store.watchers, m.id)
		}
		m.store.watchMu.Unlock()
	})
}

func (s *MemoryStore) watch(deliver func()) Subscription {
	s.watchMu.Lock()
	s.seq++
	id := s.seq
	s.watchers[id] = &memWatcher{deliver: deliver}
	s.watchMu.Unlock()

	s.notifyMu.Lock()
	deliver()
	s.notifyMu.Unlock()
	return &memSubscription{store: s, id: id}
}

func (s *MemoryStore) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.watchMu.Lock()
	pending := make([]*memWatcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		pending = append(pending, w)
	}
	s.watchMu.Unlock()

	for _, w := range pending {
		s.watchMu.Lock()
		closed := w.closed
		s.watchMu.Unlock()
		if !closed {
			w.deliver()
		}
	}
}

func filterScope[T any](items map[primitive.ObjectID]T, scope Scope, owner func(T) models.Ownership) []T {
	out := make([]T, 0)
	for _, item := range items {
		if scope.Matches(owner(item)) {
			out = append(out, item)
		}
	}
	return out
}

type memTx struct {
	store  *MemoryStore
	data   memData
	writes int
}

// write counts a write and fires an armed failure. Callers hold store.mu.
func (t *memTx) write() error {
	if t.store.failAfter == 0 {
		t.store.failAfter = -1
		return ErrInjectedFailure
	}
	if t.store.failAfter > 0 {
		t.store.failAfter--
	}
	t.writes++
	return nil
}

func (t *memTx) Vehicle(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	v, ok := t.data.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (t *memTx) Task(ctx context.Context, id primitive.ObjectID) (*models.MaintenanceTask, error) {
	task, ok := t.data.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

func (t *memTx) Log(ctx context.Context, id primitive.ObjectID) (*models.ServiceLog, error) {
	l, ok := t.data.logs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (t *memTx) TasksByVehicle(ctx context.Context, vehicleID primitive.ObjectID) ([]models.MaintenanceTask, error) {
	out := make([]models.MaintenanceTask, 0)
	for _, task := range t.data.tasks {
		if task.VehicleID == vehicleID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (t *memTx) LogsByVehicle(ctx context.Context, vehicleID primitive.ObjectID) ([]models.ServiceLog, error) {
	out := make([]models.ServiceLog, 0)
	for _, l := range t.data.logs {
		if l.VehicleID == vehicleID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *memTx) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if err := t.write(); err != nil {
		return err
	}
	t.data.vehicles[vehicle.ID] = vehicle
	return nil
}

func (t *memTx) UpdateVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if _, ok := t.data.vehicles[vehicle.ID]; !ok {
		return ErrNotFound
	}
	if err := t.write(); err != nil {
		return err
	}
	t.data.vehicles[vehicle.ID] = vehicle
	return nil
}

func (t *memTx) DeleteVehicle(ctx context.Context, id primitive.ObjectID) error {
	if _, ok := t.data.vehicles[id]; !ok {
		return ErrNotFound
	}
	if err := t.write(); err != nil {
		return err
	}
	delete(t.data.vehicles, id)
	return nil
}

func (t *memTx) InsertTasks(ctx context.Context, tasks []models.MaintenanceTask) error {
	for _, task := range tasks {
		if err := t.write(); err != nil {
			return err
		}
		t.data.tasks[task.ID] = task
	}
	return nil
}

func (t *memTx) UpdateTask(ctx context.Context, task models.MaintenanceTask) error {
	if _, ok := t.data.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	if err := t.write(); err != nil {
		return err
	}
	t.data.tasks[task.ID] = task
	return nil
}

func (t *memTx) DeleteTasksByVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int, error) {
	n := 0
	for id, task := range t.data.tasks {
		if task.VehicleID != vehicleID {
			continue
		}
		if err := t.write(); err != nil {
			return n, err
		}
		delete(t.data.tasks, id)
		n++
	}
	return n, nil
}

func (t *memTx) InsertLog(ctx context.Context, log models.ServiceLog) error {
	if err := t.write(); err != nil {
		return err
	}
	t.data.logs[log.ID] = log
	return nil
}

func (t *memTx) UpdateLog(ctx context.Context, log models.ServiceLog) error {
	if _, ok := t.data.logs[log.ID]; !ok {
		return ErrNotFound
	}
	if err := t.write(); err != nil {
		return err
	}
	t.data.logs[log.ID] = log
	return nil
}

func (t *memTx) DeleteLog(ctx context.Context, id primitive.ObjectID) error {
	if _, ok := t.data.logs[id]; !ok {
		return ErrNotFound
	}
	if err := t.write(); err != nil {
		return err
	}
	delete(t.data.logs, id)
	return nil
}

func (t *memTx) DeleteLogsByVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int, error) {
	n := 0
	for id, l := range t.data.logs {
		if l.VehicleID != vehicleID {
			continue
		}
		if err := t.write(); err != nil {
			return n, err
		}
		delete(t.data.logs, id)
		n++
	}
	return n, nil
}
