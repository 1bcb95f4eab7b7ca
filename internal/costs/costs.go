// Package costs summarizes service log spending for reports.
package costs

import (
	"sort"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CategoryTotal is the spend of one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// Total sums every positive cost.
func Total(logs []models.ServiceLog) float64 {
	var sum float64
	for _, l := range logs {
		if l.Cost != nil && *l.Cost > 0 {
			sum += *l.Cost
		}
	}
	return sum
}

// ByCategory groups spend by category, largest first. topN <= 0 keeps every
// category. Equal totals are ordered by name.
func ByCategory(logs []models.ServiceLog, topN int) []CategoryTotal {
	sums := make(map[string]float64)
	for _, l := range logs {
		if l.Cost == nil || *l.Cost <= 0 {
			continue
		}
		sums[l.CategoryOrDefault()] += *l.Cost
	}

	out := make([]CategoryTotal, 0, len(sums))
	for cat, total := range sums {
		out = append(out, CategoryTotal{Category: cat, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Since keeps logs dated at or after start.
func Since(logs []models.ServiceLog, start time.Time) []models.ServiceLog {
	out := make([]models.ServiceLog, 0, len(logs))
	for _, l := range logs {
		if !l.Date.Before(start) {
			out = append(out, l)
		}
	}
	return out
}

// MonthStart is midnight on the first day of now's month, in now's location.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// YearStart is midnight on January 1st of now's year, in now's location.
func YearStart(now time.Time) time.Time {
	return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
}

// MonthToDate sums the current calendar month.
func MonthToDate(logs []models.ServiceLog, now time.Time) float64 {
	return Total(Since(logs, MonthStart(now)))
}

// YearToDate sums spend since January 1st.
func YearToDate(logs []models.ServiceLog, now time.Time) float64 {
	return Total(Since(logs, YearStart(now)))
}

// PerDistance is the cost per odometer unit, 0 when the odometer is 0.
func PerDistance(total float64, odometer int) float64 {
	if odometer <= 0 {
		return 0
	}
	return total / float64(odometer)
}

// VehicleCost is the spend attributed to one vehicle.
type VehicleCost struct {
	VehicleID   primitive.ObjectID `json:"vehicle_id"`
	VehicleName string             `json:"vehicle_name"`
	Unit        models.Unit        `json:"unit"`
	Total       float64            `json:"total"`
	PerDistance float64            `json:"per_distance"`
}

// Report combines every reducer for a set of vehicles and their logs.
type Report struct {
	Total       float64         `json:"total"`
	MonthToDate float64         `json:"month_to_date"`
	YearToDate  float64         `json:"year_to_date"`
	Categories  []CategoryTotal `json:"categories"`
	Vehicles    []VehicleCost   `json:"vehicles"`
}

// BuildReport computes the cost report. Vehicles keep their input order.
func BuildReport(vehicles []models.Vehicle, logs []models.ServiceLog, now time.Time, topN int) Report {
	byVehicle := make(map[primitive.ObjectID][]models.ServiceLog, len(vehicles))
	for _, l := range logs {
		byVehicle[l.VehicleID] = append(byVehicle[l.VehicleID], l)
	}

	perVehicle := make([]VehicleCost, 0, len(vehicles))
	for _, v := range vehicles {
		total := Total(byVehicle[v.ID])
		perVehicle = append(perVehicle, VehicleCost{
			VehicleID:   v.ID,
			VehicleName: v.DisplayName(),
			Unit:        v.OdometerUnit,
			Total:       total,
			PerDistance: PerDistance(total, v.CurrentOdometer),
		})
	}

	return Report{
		Total:       Total(logs),
		MonthToDate: MonthToDate(logs, now),
		YearToDate:  YearToDate(logs, now),
		Categories:  ByCategory(logs, topN),
		Vehicles:    perVehicle,
	}
}
