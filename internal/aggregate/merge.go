// Package aggregate merges the personal and fleet copies of each collection
// into a single de-duplicated, ordered view.
package aggregate

import (
	"sort"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Merge concatenates personal and fleet records, drops repeated ids keeping
// the first occurrence and sorts the result with less. A nil less keeps the
// concatenation order.
func Merge[T any](personal, fleet []T, id func(T) primitive.ObjectID, less func(a, b T) bool) []T {
	seen := make(map[primitive.ObjectID]struct{}, len(personal)+len(fleet))
	out := make([]T, 0, len(personal)+len(fleet))
	for _, src := range [][]T{personal, fleet} {
		for _, item := range src {
			key := id(item)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

// MergeVehicles merges vehicles, newest first.
func MergeVehicles(personal, fleet []models.Vehicle) []models.Vehicle {
	return Merge(personal, fleet,
		func(v models.Vehicle) primitive.ObjectID { return v.ID },
		func(a, b models.Vehicle) bool { return a.CreatedAt.After(b.CreatedAt) })
}

// MergeTasks merges tasks. Ordering is left to the status engine.
func MergeTasks(personal, fleet []models.MaintenanceTask) []models.MaintenanceTask {
	return Merge(personal, fleet,
		func(t models.MaintenanceTask) primitive.ObjectID { return t.ID }, nil)
}

// MergeLogs merges service logs, most recent service first.
func MergeLogs(personal, fleet []models.ServiceLog) []models.ServiceLog {
	return Merge(personal, fleet,
		func(l models.ServiceLog) primitive.ObjectID { return l.ID },
		func(a, b models.ServiceLog) bool { return a.Date.After(b.Date) })
}

// SelectActive keeps current when it is still among vehicles, otherwise
// falls back to the first vehicle. It returns primitive.NilObjectID when
// vehicles is empty.
func SelectActive(current primitive.ObjectID, vehicles []models.Vehicle) primitive.ObjectID {
	if len(vehicles) == 0 {
		return primitive.NilObjectID
	}
	if !current.IsZero() {
		for _, v := range vehicles {
			if v.ID == current {
				return current
			}
		}
	}
	return vehicles[0].ID
}
