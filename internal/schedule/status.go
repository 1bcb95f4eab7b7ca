// Package schedule derives the urgency of maintenance tasks from the
// current odometer and wall-clock time. Everything here is pure: results are
// recomputed on every read and never stored.
package schedule

import (
	"math"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

const (
	// DueSoonDistance is the warning window in the vehicle's own unit.
	DueSoonDistance = 500
	// DueSoonDays is the warning window in days.
	DueSoonDays = 14

	day = 24 * time.Hour
)

// Result is the derived state of a single task.
type Result struct {
	Status         models.Status
	MilesRemaining *int
	DaysRemaining  *int
}

// Evaluate derives status and remaining distance/time for a task given the
// owning vehicle's current odometer.
func Evaluate(task models.MaintenanceTask, currentOdometer int, now time.Time) Result {
	var res Result

	if task.NextDueOdometer != nil {
		miles := *task.NextDueOdometer - currentOdometer
		res.MilesRemaining = &miles
	}
	if task.NextDueDate != nil {
		days := int(math.Floor(float64(task.NextDueDate.Sub(now)) / float64(day)))
		res.DaysRemaining = &days
	}

	overdue := (res.MilesRemaining != nil && *res.MilesRemaining <= 0) ||
		(res.DaysRemaining != nil && *res.DaysRemaining <= 0)
	dueSoon := (res.MilesRemaining != nil && *res.MilesRemaining <= DueSoonDistance) ||
		(res.DaysRemaining != nil && *res.DaysRemaining <= DueSoonDays)

	switch {
	case overdue && task.BaselineType == models.BaselineEstimated:
		// An unconfirmed baseline never reports overdue.
		res.Status = models.StatusDueSoon
	case overdue:
		res.Status = models.StatusOverdue
	case dueSoon:
		res.Status = models.StatusDueSoon
	default:
		res.Status = models.StatusUpcoming
	}
	return res
}
