package db

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")
)

// Scope selects one owner partition: a user's personal records or a fleet's
// shared records.
type Scope struct {
	OwnerType models.OwnerType
	ID        string
}

// PersonalScope selects the personal records created by a user.
func PersonalScope(userID string) Scope {
	return Scope{OwnerType: models.OwnerPersonal, ID: userID}
}

// FleetScope selects the shared records of a fleet.
func FleetScope(fleetID string) Scope {
	return Scope{OwnerType: models.OwnerFleet, ID: fleetID}
}

// Key is the document field holding the scope id.
func (s Scope) Key() string {
	if s.OwnerType == models.OwnerFleet {
		return "fleet_id"
	}
	return "owner_id"
}

// Filter is the query selecting the scope.
func (s Scope) Filter() bson.M {
	return bson.M{"owner_type": s.OwnerType, s.Key(): s.ID}
}

// Matches reports whether a record belongs to the scope.
func (s Scope) Matches(o models.Ownership) bool {
	if o.OwnerType != s.OwnerType {
		return false
	}
	if s.OwnerType == models.OwnerFleet {
		return o.FleetID != nil && *o.FleetID == s.ID
	}
	return o.OwnerID == s.ID
}

// Subscription is a live query. Close stops delivery and may be called more
// than once.
type Subscription interface {
	Close()
}

// Tx is the set of reads and writes available inside a transaction. Either
// every write of a transaction is applied or none is.
type Tx interface {
	Vehicle(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error)
	Task(ctx context.Context, id primitive.ObjectID) (*models.MaintenanceTask, error)
	Log(ctx context.Context, id primitive.ObjectID) (*models.ServiceLog, error)
	TasksByVehicle(ctx context.Context, vehicleID primitive.ObjectID) ([]models.MaintenanceTask, error)
	LogsByVehicle(ctx context.Context, vehicleID primitive.ObjectID) ([]models.ServiceLog, error)

	InsertVehicle(ctx context.Context, vehicle models.Vehicle) error
	UpdateVehicle(ctx context.Context, vehicle models.Vehicle) error
	DeleteVehicle(ctx context.Context, id primitive.ObjectID) error

	InsertTasks(ctx context.Context, tasks []models.MaintenanceTask) error
	UpdateTask(ctx context.Context, task models.MaintenanceTask) error
	DeleteTasksByVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int, error)

	InsertLog(ctx context.Context, log models.ServiceLog) error
	UpdateLog(ctx context.Context, log models.ServiceLog) error
	DeleteLog(ctx context.Context, id primitive.ObjectID) error
	DeleteLogsByVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int, error)
}

// Store is the document store behind the service layer.
type Store interface {
	// RunInTransaction runs fn with a single commit point. A non-nil error
	// from fn or from the commit discards every write made through tx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Vehicles(ctx context.Context, scope Scope) ([]models.Vehicle, error)
	Tasks(ctx context.Context, scope Scope) ([]models.MaintenanceTask, error)
	Logs(ctx context.Context, scope Scope) ([]models.ServiceLog, error)

	// Watch* deliver the full scoped collection once on subscribe and again
	// after every change. A delivery with a non-nil error ends the
	// subscription.
	WatchVehicles(ctx context.Context, scope Scope, fn func([]models.Vehicle, error)) (Subscription, error)
	WatchTasks(ctx context.Context, scope Scope, fn func([]models.MaintenanceTask, error)) (Subscription, error)
	WatchLogs(ctx context.Context, scope Scope, fn func([]models.ServiceLog, error)) (Subscription, error)

	Close(ctx context.Context) error
}
