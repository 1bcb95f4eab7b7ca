// Package units converts odometer distances between miles and kilometers.
package units

import (
	"math"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

const (
	milesToKilometers = 1.60934
	kilometersToMiles = 0.621371
)

// Convert converts value from one unit to another, rounded to the nearest
// whole unit. Unknown pairs are returned unchanged.
func Convert(value int, from, to models.Unit) int {
	if from == to {
		return value
	}
	switch {
	case from == models.UnitMiles && to == models.UnitKilometers:
		return int(math.Round(float64(value) * milesToKilometers))
	case from == models.UnitKilometers && to == models.UnitMiles:
		return int(math.Round(float64(value) * kilometersToMiles))
	default:
		return value
	}
}

// ConvertPtr converts an optional value, keeping nil as nil.
func ConvertPtr(value *int, from, to models.Unit) *int {
	if value == nil {
		return nil
	}
	v := Convert(*value, from, to)
	return &v
}
