package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var now = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

var templates = []models.MaintenanceTemplate{
	{Name: "Oil change", Category: "Engine", MilesInterval: 5000, MonthsInterval: 6, AppliesTo: []models.VehicleType{models.VehicleTypeICE, models.VehicleTypeHybrid}},
	{Name: "Tire rotation", Category: "Tires", MilesInterval: 7500, MonthsInterval: 6},
	{Name: "Cabin filter", Category: "Interior", MonthsInterval: 12},
}

func TestNewTasks_EstimatedFromVehicleDefaults(t *testing.T) {
	fleet := "f1"
	vehicle := models.Vehicle{
		ID:              primitive.NewObjectID(),
		Type:            models.VehicleTypeICE,
		CurrentOdometer: 30000,
		OdometerUnit:    models.UnitMiles,
		Ownership:       models.Ownership{OwnerType: models.OwnerFleet, OwnerID: "u1", FleetID: &fleet},
	}

	tasks := NewTasks(vehicle, templates, now)
	require.Len(t, tasks, 3)

	oil := tasks[0]
	assert.Equal(t, "Oil change", oil.Name)
	assert.Equal(t, vehicle.ID, oil.VehicleID)
	assert.Nil(t, oil.LastServiceOdometer)
	assert.Nil(t, oil.LastServiceDate)
	require.NotNil(t, oil.NextDueOdometer)
	assert.Equal(t, 35000, *oil.NextDueOdometer)
	require.NotNil(t, oil.NextDueDate)
	assert.Equal(t, now.Add(180*24*time.Hour), *oil.NextDueDate)
	assert.Equal(t, models.BaselineEstimated, oil.BaselineType)
	assert.Equal(t, vehicle.Ownership, oil.Ownership)
	assert.False(t, oil.ID.IsZero())

	filter := tasks[2]
	assert.Nil(t, filter.NextDueOdometer, "zero distance interval disables the trigger")
	assert.NotNil(t, filter.NextDueDate)
}

func TestNewTasks_FiltersByVehicleType(t *testing.T) {
	ev := models.Vehicle{ID: primitive.NewObjectID(), Type: models.VehicleTypeEV, OdometerUnit: models.UnitMiles}
	tasks := NewTasks(ev, templates, now)

	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.NotEqual(t, "Oil change", task.Name)
	}
}

func TestNewTasks_ConvertsIntervalToVehicleUnit(t *testing.T) {
	vehicle := models.Vehicle{ID: primitive.NewObjectID(), Type: models.VehicleTypeICE, CurrentOdometer: 10000, OdometerUnit: models.UnitKilometers}
	tasks := NewTasks(vehicle, templates[:1], now)

	require.Len(t, tasks, 1)
	assert.Equal(t, 8047, tasks[0].MilesInterval)
	assert.Equal(t, 18047, *tasks[0].NextDueOdometer)
}

func TestRebaseline(t *testing.T) {
	task := models.MaintenanceTask{
		ID:              primitive.NewObjectID(),
		MilesInterval:   5000,
		MonthsInterval:  6,
		NextDueOdometer: intPtr(40000),
		BaselineType:    models.BaselineEstimated,
	}
	serviced := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	got := Rebaseline(task, 50000, serviced, now)

	require.NotNil(t, got.NextDueOdometer)
	assert.Equal(t, 55000, *got.NextDueOdometer)
	require.NotNil(t, got.NextDueDate)
	assert.Equal(t, serviced.Add(180*24*time.Hour), *got.NextDueDate)
	assert.Equal(t, 50000, *got.LastServiceOdometer)
	assert.Equal(t, serviced, *got.LastServiceDate)
	assert.Equal(t, models.BaselineConfirmed, got.BaselineType)
	assert.Equal(t, now, got.UpdatedAt)

	// The input is a value copy and stays untouched.
	assert.Equal(t, 40000, *task.NextDueOdometer)
	assert.Equal(t, models.BaselineEstimated, task.BaselineType)
}

func TestAdvanceOdometer(t *testing.T) {
	v := models.Vehicle{CurrentOdometer: 48000}

	moved, ok := AdvanceOdometer(v, 48500, now)
	assert.True(t, ok)
	assert.Equal(t, 48500, moved.CurrentOdometer)
	assert.Equal(t, now, moved.LastOdometerUpdate)

	same, ok := AdvanceOdometer(v, 47000, now)
	assert.False(t, ok, "a service never moves the odometer backwards")
	assert.Equal(t, 48000, same.CurrentOdometer)

	_, ok = AdvanceOdometer(v, 48000, now)
	assert.False(t, ok)
}

func TestConvertUnit(t *testing.T) {
	vehicle := models.Vehicle{ID: primitive.NewObjectID(), CurrentOdometer: 10000, OdometerUnit: models.UnitMiles}
	tasks := []models.MaintenanceTask{
		{MilesInterval: 5000, LastServiceOdometer: intPtr(5000), NextDueOdometer: intPtr(10000)},
		{MonthsInterval: 12},
	}
	logs := []models.ServiceLog{{Odometer: 5000}}

	conv := ConvertUnit(vehicle, tasks, logs, models.UnitKilometers, now)

	assert.Equal(t, models.UnitKilometers, conv.Vehicle.OdometerUnit)
	assert.Equal(t, 16093, conv.Vehicle.CurrentOdometer)
	assert.Equal(t, 8047, conv.Tasks[0].MilesInterval)
	assert.Equal(t, 8047, *conv.Tasks[0].LastServiceOdometer)
	assert.Equal(t, 16093, *conv.Tasks[0].NextDueOdometer)
	assert.Nil(t, conv.Tasks[1].NextDueOdometer)
	assert.Equal(t, 8047, conv.Logs[0].Odometer)

	// Originals are left alone.
	assert.Equal(t, 5000, *tasks[0].LastServiceOdometer)
	assert.Equal(t, 5000, logs[0].Odometer)
}
