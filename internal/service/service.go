// Package service exposes the maintenance operations. Every multi-record
// write runs inside a single store transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/aggregate"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/costs"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/lifecycle"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
	"github.com/ukydev/fleet-maintenance/internal/units"
	"github.com/ukydev/fleet-maintenance/internal/validation"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TemplateSource supplies the default tasks for a vehicle type.
type TemplateSource interface {
	ForType(vt models.VehicleType) []models.MaintenanceTemplate
}

// Service implements the vehicle maintenance operations.
type Service struct {
	store     db.Store
	templates TemplateSource
	log       logrus.FieldLogger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a service.
func New(store db.Store, templates TemplateSource, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		templates: templates,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VehicleInput describes a new vehicle.
type VehicleInput struct {
	Nickname        string             `json:"nickname" validate:"max=100"`
	Type            models.VehicleType `json:"type" validate:"omitempty,vehicle_type"`
	Make            string             `json:"make" validate:"required,max=100"`
	Model           string             `json:"model" validate:"required,max=100"`
	Year            int                `json:"year" validate:"omitempty,min=1886,max=2100"`
	Trim            string             `json:"trim" validate:"max=100"`
	CurrentOdometer int                `json:"current_odometer" validate:"gte=0"`
	OdometerUnit    models.Unit        `json:"odometer_unit" validate:"required,odometer_unit"`
	// Fleet shares the vehicle with the principal's fleet.
	Fleet bool `json:"fleet"`
}

// VehicleUpdate replaces the descriptive fields of a vehicle. The unit is
// changed through ConvertVehicleUnit only.
type VehicleUpdate struct {
	Nickname        string             `json:"nickname" validate:"max=100"`
	Type            models.VehicleType `json:"type" validate:"omitempty,vehicle_type"`
	Make            string             `json:"make" validate:"required,max=100"`
	Model           string             `json:"model" validate:"required,max=100"`
	Year            int                `json:"year" validate:"omitempty,min=1886,max=2100"`
	Trim            string             `json:"trim" validate:"max=100"`
	CurrentOdometer *int               `json:"current_odometer,omitempty" validate:"omitempty,gte=0"`
}

// LogInput describes a performed service.
type LogInput struct {
	VehicleID  primitive.ObjectID  `json:"vehicle_id"`
	TaskID     *primitive.ObjectID `json:"task_id,omitempty"`
	TaskName   string              `json:"task_name" validate:"max=200"`
	Category   string              `json:"category" validate:"max=100"`
	Odometer   int                 `json:"odometer" validate:"gte=0"`
	Date       time.Time           `json:"date"`
	Cost       *float64            `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Notes      string              `json:"notes" validate:"max=2000"`
	ReceiptURL string              `json:"receipt_url" validate:"omitempty,url"`
}

func principal(ctx context.Context) (*models.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return p, nil
}

// CreateVehicleWithDefaultTasks stores a vehicle together with its default
// maintenance tasks.
func (s *Service) CreateVehicleWithDefaultTasks(ctx context.Context, in VehicleInput) (*models.Vehicle, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}

	owner := models.Ownership{OwnerType: models.OwnerPersonal, OwnerID: p.UserID}
	if in.Fleet {
		if !p.HasFleet() || !p.Role.HasPermission(models.ActionManageVehicles) {
			return nil, ErrForbidden
		}
		fleetID := p.FleetID
		owner = models.Ownership{OwnerType: models.OwnerFleet, OwnerID: p.UserID, FleetID: &fleetID}
	}
	if in.Type == "" {
		in.Type = models.VehicleTypeICE
	}

	now := s.now()
	vehicle := models.Vehicle{
		ID:                 primitive.NewObjectID(),
		Nickname:           in.Nickname,
		Type:               in.Type,
		Make:               in.Make,
		Model:              in.Model,
		Year:               in.Year,
		Trim:               in.Trim,
		CurrentOdometer:    in.CurrentOdometer,
		OdometerUnit:       in.OdometerUnit,
		Ownership:          owner,
		LastOdometerUpdate: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tasks := lifecycle.NewTasks(vehicle, s.templates.ForType(vehicle.Type), now)

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		if err := tx.InsertVehicle(ctx, vehicle); err != nil {
			return err
		}
		return tx.InsertTasks(ctx, tasks)
	})
	if err != nil {
		return nil, fmt.Errorf("create vehicle: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"vehicle_id": vehicle.ID.Hex(),
		"user_id":    p.UserID,
		"owner_type": owner.OwnerType,
		"tasks":      len(tasks),
	}).Info("vehicle created")
	return &vehicle, nil
}

// UpdateVehicle replaces a vehicle's descriptive fields and, when given, its
// odometer.
func (s *Service) UpdateVehicle(ctx context.Context, id primitive.ObjectID, in VehicleUpdate) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	if err := validation.Struct(in); err != nil {
		return invalid(err)
	}

	return s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		vehicle, err := tx.Vehicle(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if err := authorize(p, vehicle.Ownership, models.ActionManageVehicles); err != nil {
			return err
		}

		now := s.now()
		vehicle.Nickname = in.Nickname
		if in.Type != "" {
			vehicle.Type = in.Type
		}
		vehicle.Make = in.Make
		vehicle.Model = in.Model
		vehicle.Year = in.Year
		vehicle.Trim = in.Trim
		if in.CurrentOdometer != nil {
			vehicle.CurrentOdometer = *in.CurrentOdometer
			vehicle.LastOdometerUpdate = now
		}
		vehicle.UpdatedAt = now
		return storeErr(tx.UpdateVehicle(ctx, *vehicle))
	})
}

// UpdateOdometer sets the vehicle's odometer. Lower readings are accepted to
// allow corrections.
func (s *Service) UpdateOdometer(ctx context.Context, id primitive.ObjectID, value int) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	if value < 0 {
		return invalidField("odometer", "gte", "must not be negative")
	}

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		vehicle, err := tx.Vehicle(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if err := authorize(p, vehicle.Ownership, models.ActionUpdateOdometer); err != nil {
			return err
		}
		now := s.now()
		vehicle.CurrentOdometer = value
		vehicle.LastOdometerUpdate = now
		vehicle.UpdatedAt = now
		return storeErr(tx.UpdateVehicle(ctx, *vehicle))
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"vehicle_id": id.Hex(),
		"odometer":   value,
		"user_id":    p.UserID,
	}).Debug("odometer updated")
	return nil
}

// RecordOdometerReading applies a device reading, converted to the vehicle's
// unit. Readings that do not move the odometer forward are dropped so
// late-delivered messages cannot roll it back. It reports whether the
// vehicle changed.
func (s *Service) RecordOdometerReading(ctx context.Context, id primitive.ObjectID, reading models.OdometerReading) (bool, error) {
	p, err := principal(ctx)
	if err != nil {
		return false, err
	}
	if reading.Odometer < 0 {
		return false, invalidField("odometer", "gte", "must not be negative")
	}
	if reading.Unit != "" && !models.IsValidUnit(reading.Unit) {
		return false, invalidField("unit", "odometer_unit", "must be mi or km")
	}

	advanced := false
	var value int
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		vehicle, err := tx.Vehicle(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if err := authorize(p, vehicle.Ownership, models.ActionUpdateOdometer); err != nil {
			return err
		}
		unit := reading.Unit
		if unit == "" {
			unit = vehicle.OdometerUnit
		}
		value = units.Convert(reading.Odometer, unit, vehicle.OdometerUnit)
		moved, ok := lifecycle.AdvanceOdometer(*vehicle, value, s.now())
		if !ok {
			return nil
		}
		advanced = true
		return storeErr(tx.UpdateVehicle(ctx, moved))
	})
	if err != nil {
		return false, err
	}

	s.log.WithFields(logrus.Fields{
		"vehicle_id": id.Hex(),
		"odometer":   value,
		"advanced":   advanced,
		"source":     p.UserID,
	}).Debug("odometer reading recorded")
	return advanced, nil
}

// RemoveVehicle deletes a vehicle with all of its tasks and logs.
func (s *Service) RemoveVehicle(ctx context.Context, id primitive.ObjectID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}

	var tasks, logs int
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		vehicle, err := tx.Vehicle(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if err := authorize(p, vehicle.Ownership, models.ActionDeleteVehicles); err != nil {
			return err
		}
		if tasks, err = tx.DeleteTasksByVehicle(ctx, id); err != nil {
			return err
		}
		if logs, err = tx.DeleteLogsByVehicle(ctx, id); err != nil {
			return err
		}
		return storeErr(tx.DeleteVehicle(ctx, id))
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"vehicle_id": id.Hex(),
		"tasks":      tasks,
		"logs":       logs,
		"user_id":    p.UserID,
	}).Info("vehicle removed")
	return nil
}

// LogService records a service, re-baselines its task and moves the vehicle
// odometer forward when the service reading is ahead of it. A task id that no
// longer resolves is tolerated: the log keeps the caller's name and category
// and no task is re-baselined.
func (s *Service) LogService(ctx context.Context, in LogInput) (*models.ServiceLog, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if in.VehicleID.IsZero() {
		return nil, invalidField("vehicle_id", "required", "is required")
	}

	now := s.now()
	if in.Date.IsZero() {
		in.Date = now
	}

	var entry models.ServiceLog
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		vehicle, err := tx.Vehicle(ctx, in.VehicleID)
		if err != nil {
			return storeErr(err)
		}
		if err := authorize(p, vehicle.Ownership, models.ActionLogService); err != nil {
			return err
		}

		entry = models.ServiceLog{
			ID:         primitive.NewObjectID(),
			VehicleID:  vehicle.ID,
			TaskID:     in.TaskID,
			TaskName:   in.TaskName,
			Category:   in.Category,
			Odometer:   in.Odometer,
			Date:       in.Date,
			Cost:       in.Cost,
			Notes:      in.Notes,
			ReceiptURL: in.ReceiptURL,
			Ownership:  vehicle.Ownership,
			CreatedAt:  now,
		}

		if in.TaskID != nil {
			task, err := tx.Task(ctx, *in.TaskID)
			switch {
			case errors.Is(err, db.ErrNotFound) || (err == nil && task.VehicleID != vehicle.ID):
				s.log.WithFields(logrus.Fields{
					"vehicle_id": vehicle.ID.Hex(),
					"task_id":    in.TaskID.Hex(),
				}).Warn("service logged against a missing task, skipping re-baseline")
			case err != nil:
				return err
			default:
				entry.TaskName = task.Name
				entry.Category = task.Category
				rebased := lifecycle.Rebaseline(*task, in.Odometer, in.Date, now)
				if err := tx.UpdateTask(ctx, rebased); err != nil {
					return storeErr(err)
				}
			}
		}
		if entry.TaskName == "" {
			return invalidField("task_name", "required", "is required when the task cannot be resolved")
		}

		if advanced, ok := lifecycle.AdvanceOdometer(*vehicle, in.Odometer, now); ok {
			if err := tx.UpdateVehicle(ctx, advanced); err != nil {
				return storeErr(err)
			}
		}
		return tx.InsertLog(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"log_id":     entry.ID.Hex(),
		"vehicle_id": entry.VehicleID.Hex(),
		"task":       entry.TaskName,
		"user_id":    p.UserID,
	}).Info("service logged")
	return &entry, nil
}

// RemoveServiceLog deletes one log. Task baselines are left as they are.
func (s *Service) RemoveServiceLog(ctx context.Context, id primitive.ObjectID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		entry, err := tx.Log(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if err := authorize(p, entry.Ownership, models.ActionDeleteLogs); err != nil {
			return err
		}
		return storeErr(tx.DeleteLog(ctx, id))
	})
}

// ConvertVehicleUnit switches a vehicle to another unit, rewriting every
// distance of the vehicle, its tasks and its logs.
func (s *Service) ConvertVehicleUnit(ctx context.Context, id primitive.ObjectID, unit models.Unit) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	if !models.IsValidUnit(unit) {
		return invalidField("unit", "odometer_unit", "must be mi or km")
	}

	converted := false
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		vehicle, err := tx.Vehicle(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if err := authorize(p, vehicle.Ownership, models.ActionManageVehicles); err != nil {
			return err
		}
		if vehicle.OdometerUnit == unit {
			return nil
		}

		tasks, err := tx.TasksByVehicle(ctx, id)
		if err != nil {
			return err
		}
		logs, err := tx.LogsByVehicle(ctx, id)
		if err != nil {
			return err
		}

		plan := lifecycle.ConvertUnit(*vehicle, tasks, logs, unit, s.now())
		if err := tx.UpdateVehicle(ctx, plan.Vehicle); err != nil {
			return storeErr(err)
		}
		for _, t := range plan.Tasks {
			if err := tx.UpdateTask(ctx, t); err != nil {
				return storeErr(err)
			}
		}
		for _, l := range plan.Logs {
			if err := tx.UpdateLog(ctx, l); err != nil {
				return storeErr(err)
			}
		}
		converted = true
		return nil
	})
	if err != nil {
		return err
	}

	if converted {
		s.log.WithFields(logrus.Fields{
			"vehicle_id": id.Hex(),
			"unit":       unit,
			"user_id":    p.UserID,
		}).Info("vehicle unit converted")
	}
	return nil
}

// Vehicles returns the principal's personal and fleet vehicles, newest first.
func (s *Service) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return readMerged(ctx, s, p, models.ActionViewVehicles, "vehicles", s.store.Vehicles, aggregate.MergeVehicles)
}

// Logs returns the principal's service logs, most recent first. A non-zero
// vehicleID keeps only that vehicle's logs.
func (s *Service) Logs(ctx context.Context, vehicleID primitive.ObjectID) ([]models.ServiceLog, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := readMerged(ctx, s, p, models.ActionViewVehicles, "logs", s.store.Logs, aggregate.MergeLogs)
	if err != nil || vehicleID.IsZero() {
		return logs, err
	}
	out := make([]models.ServiceLog, 0, len(logs))
	for _, l := range logs {
		if l.VehicleID == vehicleID {
			out = append(out, l)
		}
	}
	return out, nil
}

// DashboardTasks evaluates every visible task at now.
func (s *Service) DashboardTasks(ctx context.Context, now time.Time) ([]models.DashboardTask, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	vehicles, err := readMerged(ctx, s, p, models.ActionViewVehicles, "vehicles", s.store.Vehicles, aggregate.MergeVehicles)
	if err != nil {
		return nil, err
	}
	tasks, err := readMerged(ctx, s, p, models.ActionViewVehicles, "tasks", s.store.Tasks, aggregate.MergeTasks)
	if err != nil {
		return nil, err
	}
	return schedule.BuildDashboard(vehicles, tasks, now), nil
}

// CostReport summarizes the spend visible to the principal. Fleet spend is
// included only for roles allowed to view costs.
func (s *Service) CostReport(ctx context.Context, now time.Time, topN int) (*costs.Report, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	vehicles, err := readMerged(ctx, s, p, models.ActionViewCosts, "vehicles", s.store.Vehicles, aggregate.MergeVehicles)
	if err != nil {
		return nil, err
	}
	logs, err := readMerged(ctx, s, p, models.ActionViewCosts, "logs", s.store.Logs, aggregate.MergeLogs)
	if err != nil {
		return nil, err
	}
	report := costs.BuildReport(vehicles, logs, now, topN)
	return &report, nil
}

// readMerged reads the personal scope and, for fleet members allowed action,
// the fleet scope. A failing fleet read degrades to an empty set.
func readMerged[T any](
	ctx context.Context,
	s *Service,
	p *models.Principal,
	action, kind string,
	read func(context.Context, db.Scope) ([]T, error),
	merge func(personal, fleet []T) []T,
) ([]T, error) {
	personal, err := read(ctx, db.PersonalScope(p.UserID))
	if err != nil {
		return nil, fmt.Errorf("read personal %s: %w", kind, err)
	}

	var fleet []T
	if p.HasFleet() && p.Role.HasPermission(action) {
		fleet, err = read(ctx, db.FleetScope(p.FleetID))
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"collection": kind,
				"fleet_id":   p.FleetID,
			}).WithError(err).Warn("fleet read failed, continuing with personal records")
			fleet = nil
		}
	}
	return merge(personal, fleet), nil
}
