package costs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func costPtr(v float64) *float64 { return &v }

var now = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func TestTotal_SkipsMissingAndNonPositive(t *testing.T) {
	logs := []models.ServiceLog{
		{Cost: costPtr(40)},
		{Cost: nil},
		{Cost: costPtr(0)},
		{Cost: costPtr(-5)},
		{Cost: costPtr(60.5)},
	}
	assert.InDelta(t, 100.5, Total(logs), 0.0001)
	assert.Zero(t, Total(nil))
}

func TestByCategory(t *testing.T) {
	logs := []models.ServiceLog{
		{Category: "Engine", Cost: costPtr(80)},
		{Category: "Tires", Cost: costPtr(400)},
		{Category: "", Cost: costPtr(30)},
		{Category: "Engine", Cost: costPtr(90)},
		{Category: "Brakes", Cost: costPtr(10)},
		{Category: "Brakes"},
	}

	all := ByCategory(logs, 0)
	require.Len(t, all, 4)
	assert.Equal(t, CategoryTotal{Category: "Tires", Total: 400}, all[0])
	assert.Equal(t, CategoryTotal{Category: "Engine", Total: 170}, all[1])
	assert.Equal(t, CategoryTotal{Category: models.DefaultCategory, Total: 30}, all[2])
	assert.Equal(t, "Brakes", all[3].Category)

	top := ByCategory(logs, 2)
	assert.Len(t, top, 2)
	assert.Equal(t, "Engine", top[1].Category)
}

func TestWindows(t *testing.T) {
	logs := []models.ServiceLog{
		{Date: time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), Cost: costPtr(1000)},
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Cost: costPtr(100)},
		{Date: time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC), Cost: costPtr(20)},
		{Date: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), Cost: costPtr(5)},
		{Date: time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC), Cost: costPtr(7)},
	}

	assert.Equal(t, 12.0, MonthToDate(logs, now))
	assert.Equal(t, 132.0, YearToDate(logs, now))
	assert.Len(t, Since(logs, MonthStart(now)), 2)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), YearStart(now))
}

func TestPerDistance(t *testing.T) {
	assert.Equal(t, 0.0, PerDistance(500, 0))
	assert.InDelta(t, 0.05, PerDistance(500, 10000), 0.00001)
}

func TestBuildReport(t *testing.T) {
	car := models.Vehicle{ID: primitive.NewObjectID(), Nickname: "Car", CurrentOdometer: 20000, OdometerUnit: models.UnitMiles}
	fresh := models.Vehicle{ID: primitive.NewObjectID(), Nickname: "New", OdometerUnit: models.UnitKilometers}
	logs := []models.ServiceLog{
		{VehicleID: car.ID, Category: "Engine", Date: now.AddDate(0, 0, -2), Cost: costPtr(200)},
		{VehicleID: car.ID, Category: "Tires", Date: now.AddDate(-1, 0, 0), Cost: costPtr(600)},
		{VehicleID: fresh.ID, Date: now, Cost: costPtr(50)},
	}

	report := BuildReport([]models.Vehicle{car, fresh}, logs, now, 5)

	assert.Equal(t, 850.0, report.Total)
	assert.Equal(t, 250.0, report.MonthToDate)
	assert.Equal(t, 250.0, report.YearToDate)
	assert.Len(t, report.Categories, 3)
	require.Len(t, report.Vehicles, 2)
	assert.Equal(t, 800.0, report.Vehicles[0].Total)
	assert.InDelta(t, 0.04, report.Vehicles[0].PerDistance, 0.00001)
	assert.Equal(t, 0.0, report.Vehicles[1].PerDistance)
	assert.Equal(t, models.UnitKilometers, report.Vehicles[1].Unit)
}
