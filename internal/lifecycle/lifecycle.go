// Package lifecycle computes how maintenance tasks are created, re-baselined
// and converted. Functions return new values and never touch storage; the
// service layer commits their results atomically.
package lifecycle

import (
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/units"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MonthDuration is the fixed length of one recurrence month.
const MonthDuration = 30 * 24 * time.Hour

// NextDueOdometer returns base+interval, or nil when the interval is disabled.
func NextDueOdometer(base, interval int) *int {
	if interval <= 0 {
		return nil
	}
	next := base + interval
	return &next
}

// NextDueDate returns base+months*30 days, or nil when the interval is disabled.
func NextDueDate(base time.Time, months int) *time.Time {
	if months <= 0 {
		return nil
	}
	next := base.Add(time.Duration(months) * MonthDuration)
	return &next
}

// NewTasks builds the estimated-baseline tasks for a freshly created vehicle
// from the templates applying to its type. Template intervals are expressed in
// miles and are converted to the vehicle's unit.
func NewTasks(vehicle models.Vehicle, templates []models.MaintenanceTemplate, now time.Time) []models.MaintenanceTask {
	tasks := make([]models.MaintenanceTask, 0, len(templates))
	for _, tpl := range templates {
		if !tpl.Applies(vehicle.Type) {
			continue
		}
		interval := units.Convert(tpl.MilesInterval, models.UnitMiles, vehicle.OdometerUnit)
		tasks = append(tasks, models.MaintenanceTask{
			ID:              primitive.NewObjectID(),
			VehicleID:       vehicle.ID,
			Name:            tpl.Name,
			Category:        tpl.Category,
			MilesInterval:   interval,
			MonthsInterval:  tpl.MonthsInterval,
			NextDueOdometer: NextDueOdometer(vehicle.CurrentOdometer, interval),
			NextDueDate:     NextDueDate(now, tpl.MonthsInterval),
			BaselineType:    models.BaselineEstimated,
			Ownership:       vehicle.Ownership,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return tasks
}

// Rebaseline returns the task with thresholds recomputed from a logged service.
func Rebaseline(task models.MaintenanceTask, odometer int, date time.Time, now time.Time) models.MaintenanceTask {
	odo := odometer
	d := date
	task.LastServiceOdometer = &odo
	task.LastServiceDate = &d
	task.NextDueOdometer = NextDueOdometer(odometer, task.MilesInterval)
	task.NextDueDate = NextDueDate(date, task.MonthsInterval)
	task.BaselineType = models.BaselineConfirmed
	task.UpdatedAt = now
	return task
}

// AdvanceOdometer moves the vehicle odometer forward to odometer. It reports
// false and leaves the vehicle unchanged when odometer is not ahead.
func AdvanceOdometer(vehicle models.Vehicle, odometer int, now time.Time) (models.Vehicle, bool) {
	if odometer <= vehicle.CurrentOdometer {
		return vehicle, false
	}
	vehicle.CurrentOdometer = odometer
	vehicle.LastOdometerUpdate = now
	vehicle.UpdatedAt = now
	return vehicle, true
}

// UnitConversion is the full set of records rewritten by a unit change.
type UnitConversion struct {
	Vehicle models.Vehicle
	Tasks   []models.MaintenanceTask
	Logs    []models.ServiceLog
}

// ConvertUnit rewrites every distance of a vehicle, its tasks and its logs
// from the vehicle's stored unit to the target unit. Every field converts from
// the same source unit so independently converted values cannot drift.
func ConvertUnit(vehicle models.Vehicle, tasks []models.MaintenanceTask, logs []models.ServiceLog, to models.Unit, now time.Time) UnitConversion {
	from := vehicle.OdometerUnit
	out := UnitConversion{
		Tasks: make([]models.MaintenanceTask, 0, len(tasks)),
		Logs:  make([]models.ServiceLog, 0, len(logs)),
	}

	vehicle.CurrentOdometer = units.Convert(vehicle.CurrentOdometer, from, to)
	vehicle.OdometerUnit = to
	vehicle.UpdatedAt = now
	out.Vehicle = vehicle

	for _, t := range tasks {
		t.MilesInterval = units.Convert(t.MilesInterval, from, to)
		t.LastServiceOdometer = units.ConvertPtr(t.LastServiceOdometer, from, to)
		t.NextDueOdometer = units.ConvertPtr(t.NextDueOdometer, from, to)
		t.UpdatedAt = now
		out.Tasks = append(out.Tasks, t)
	}
	for _, l := range logs {
		l.Odometer = units.Convert(l.Odometer, from, to)
		out.Logs = append(out.Logs, l)
	}
	return out
}
