package schedule

import (
	"sort"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Less orders dashboard tasks by status rank, then by remaining distance
// ascending. Tasks without a distance threshold sort after those with one.
func Less(a, b models.DashboardTask) bool {
	if ra, rb := a.Status.Rank(), b.Status.Rank(); ra != rb {
		return ra < rb
	}
	switch {
	case a.MilesRemaining == nil:
		return false
	case b.MilesRemaining == nil:
		return true
	default:
		return *a.MilesRemaining < *b.MilesRemaining
	}
}

// Sort orders tasks in place using Less. The sort is stable so equal tasks
// keep their input order.
func Sort(tasks []models.DashboardTask) {
	sort.SliceStable(tasks, func(i, j int) bool { return Less(tasks[i], tasks[j]) })
}

// BuildDashboard evaluates every task against its vehicle and returns the
// sorted dashboard. Tasks whose vehicle is not in vehicles are skipped.
func BuildDashboard(vehicles []models.Vehicle, tasks []models.MaintenanceTask, now time.Time) []models.DashboardTask {
	byID := make(map[primitive.ObjectID]models.Vehicle, len(vehicles))
	for _, v := range vehicles {
		byID[v.ID] = v
	}

	out := make([]models.DashboardTask, 0, len(tasks))
	for _, task := range tasks {
		vehicle, ok := byID[task.VehicleID]
		if !ok {
			continue
		}
		res := Evaluate(task, vehicle.CurrentOdometer, now)
		out = append(out, models.DashboardTask{
			MaintenanceTask: task,
			Status:          res.Status,
			MilesRemaining:  res.MilesRemaining,
			DaysRemaining:   res.DaysRemaining,
			VehicleName:     vehicle.DisplayName(),
		})
	}
	Sort(out)
	return out
}

// ForVehicle keeps only the dashboard entries of one vehicle.
func ForVehicle(tasks []models.DashboardTask, vehicleID primitive.ObjectID) []models.DashboardTask {
	out := make([]models.DashboardTask, 0)
	for _, t := range tasks {
		if t.VehicleID == vehicleID {
			out = append(out, t)
		}
	}
	return out
}

// Summary counts dashboard entries per status.
type Summary struct {
	Overdue  int `json:"overdue"`
	DueSoon  int `json:"due_soon"`
	Upcoming int `json:"upcoming"`
}

// Summarize counts tasks per status.
func Summarize(tasks []models.DashboardTask) Summary {
	var s Summary
	for _, t := range tasks {
		switch t.Status {
		case models.StatusOverdue:
			s.Overdue++
		case models.StatusDueSoon:
			s.DueSoon++
		default:
			s.Upcoming++
		}
	}
	return s
}
