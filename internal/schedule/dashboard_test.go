package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBuildDashboard(t *testing.T) {
	car := models.Vehicle{ID: primitive.NewObjectID(), Nickname: "Wagon", CurrentOdometer: 49600, OdometerUnit: models.UnitMiles}
	bike := models.Vehicle{ID: primitive.NewObjectID(), Make: "Ducati", Model: "Monster", CurrentOdometer: 1000, OdometerUnit: models.UnitKilometers}

	oil := confirmedTask(50000)
	oil.ID = primitive.NewObjectID()
	oil.VehicleID = car.ID

	chain := models.MaintenanceTask{
		ID:              primitive.NewObjectID(),
		VehicleID:       bike.ID,
		NextDueOdometer: intPtr(900),
		BaselineType:    models.BaselineConfirmed,
	}
	orphan := models.MaintenanceTask{
		ID:              primitive.NewObjectID(),
		VehicleID:       primitive.NewObjectID(),
		NextDueOdometer: intPtr(1),
		BaselineType:    models.BaselineConfirmed,
	}

	dash := BuildDashboard([]models.Vehicle{car, bike}, []models.MaintenanceTask{oil, orphan, chain}, now)
	require.Len(t, dash, 2, "tasks without a known vehicle are skipped")

	assert.Equal(t, chain.ID, dash[0].ID)
	assert.Equal(t, models.StatusOverdue, dash[0].Status)
	assert.Equal(t, "Ducati Monster", dash[0].VehicleName)
	assert.Equal(t, -100, *dash[0].MilesRemaining)

	assert.Equal(t, oil.ID, dash[1].ID)
	assert.Equal(t, models.StatusDueSoon, dash[1].Status)
	assert.Equal(t, "Wagon", dash[1].VehicleName)

	assert.Len(t, ForVehicle(dash, car.ID), 1)
	assert.Equal(t, Summary{Overdue: 1, DueSoon: 1}, Summarize(dash))
}

func TestBuildDashboard_DoesNotMutateInputs(t *testing.T) {
	car := models.Vehicle{ID: primitive.NewObjectID(), CurrentOdometer: 100}
	task := confirmedTask(5000)
	task.VehicleID = car.ID
	tasks := []models.MaintenanceTask{task}

	_ = BuildDashboard([]models.Vehicle{car}, tasks, now)
	assert.Equal(t, 5000, *tasks[0].NextDueOdometer)
	assert.Equal(t, models.BaselineConfirmed, tasks[0].BaselineType)
}

func TestBuildDashboard_Empty(t *testing.T) {
	dash := BuildDashboard(nil, nil, now)
	assert.NotNil(t, dash)
	assert.Empty(t, dash)
}
