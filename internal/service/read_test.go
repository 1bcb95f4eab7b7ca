package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/aggregate"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// brokenFleetStore fails every fleet-scoped read and watch.
type brokenFleetStore struct {
	*db.MemoryStore
}

var errMissingIndex = errors.New("missing index")

func (b brokenFleetStore) Vehicles(ctx context.Context, scope db.Scope) ([]models.Vehicle, error) {
	if scope.OwnerType == models.OwnerFleet {
		return nil, errMissingIndex
	}
	return b.MemoryStore.Vehicles(ctx, scope)
}

func (b brokenFleetStore) WatchTasks(ctx context.Context, scope db.Scope, fn func([]models.MaintenanceTask, error)) (db.Subscription, error) {
	if scope.OwnerType == models.OwnerFleet {
		return nil, errMissingIndex
	}
	return b.MemoryStore.WatchTasks(ctx, scope, fn)
}

func TestDashboardTasks_ConcreteScenario(t *testing.T) {
	svc, store, _ := newTestService(t)
	v, err := svc.CreateVehicleWithDefaultTasks(as(alice), car(45000))
	require.NoError(t, err)
	oil := taskNamed(t, tasksOf(t, store, v.ID), "Oil change")
	_, err = svc.LogService(as(alice), LogInput{VehicleID: v.ID, TaskID: &oil.ID, Odometer: 45000, Date: now})
	require.NoError(t, err)

	status := func() models.DashboardTask {
		dash, err := svc.DashboardTasks(as(alice), now)
		require.NoError(t, err)
		for _, d := range dash {
			if d.ID == oil.ID {
				return d
			}
		}
		t.Fatal("oil change missing from dashboard")
		return models.DashboardTask{}
	}

	require.NoError(t, svc.UpdateOdometer(as(alice), v.ID, 48000))
	d := status()
	assert.Equal(t, 2000, *d.MilesRemaining)
	assert.Equal(t, models.StatusUpcoming, d.Status)
	assert.Equal(t, "2019 Subaru Outback", d.VehicleName)

	require.NoError(t, svc.UpdateOdometer(as(alice), v.ID, 49600))
	assert.Equal(t, models.StatusDueSoon, status().Status)

	require.NoError(t, svc.UpdateOdometer(as(alice), v.ID, 50100))
	d = status()
	assert.Equal(t, -100, *d.MilesRemaining)
	assert.Equal(t, models.StatusOverdue, d.Status)
}

func TestDashboardTasks_MergesPersonalAndFleet(t *testing.T) {
	svc, _, _ := newTestService(t)
	member := &models.Principal{UserID: "carol", FleetID: "f1", Role: models.RoleAdmin}

	_, err := svc.CreateVehicleWithDefaultTasks(as(member), car(0))
	require.NoError(t, err)
	in := car(0)
	in.Fleet = true
	_, err = svc.CreateVehicleWithDefaultTasks(as(member), in)
	require.NoError(t, err)

	dash, err := svc.DashboardTasks(as(member), now)
	require.NoError(t, err)
	assert.Len(t, dash, 6)

	dash, err = svc.DashboardTasks(as(fleetView), now)
	require.NoError(t, err)
	assert.Len(t, dash, 3, "viewers see fleet tasks only")

	dash, err = svc.DashboardTasks(as(bob), now)
	require.NoError(t, err)
	assert.Empty(t, dash)

	_, err = svc.DashboardTasks(context.Background(), now)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestVehicles_FleetReadFailureDegrades(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := brokenFleetStore{db.NewMemoryStore()}
	svc := New(store, catalog, logger, WithClock(func() time.Time { return now }))

	_, err := svc.CreateVehicleWithDefaultTasks(as(fleetAdmin), car(0))
	require.NoError(t, err)

	vehicles, err := svc.Vehicles(as(fleetAdmin))
	require.NoError(t, err)
	assert.Len(t, vehicles, 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "vehicles", hook.LastEntry().Data["collection"])
}

func TestLogs(t *testing.T) {
	svc, _, _ := newTestService(t)
	a, _ := svc.CreateVehicleWithDefaultTasks(as(alice), car(0))
	b, _ := svc.CreateVehicleWithDefaultTasks(as(alice), car(0))
	_, _ = svc.LogService(as(alice), LogInput{VehicleID: a.ID, TaskName: "Wash", Date: now.AddDate(0, -1, 0)})
	_, _ = svc.LogService(as(alice), LogInput{VehicleID: a.ID, TaskName: "Wax", Date: now})
	_, _ = svc.LogService(as(alice), LogInput{VehicleID: b.ID, TaskName: "Wash", Date: now})

	all, err := svc.Logs(as(alice), primitive.NilObjectID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyA, err := svc.Logs(as(alice), a.ID)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, "Wax", onlyA[0].TaskName, "most recent first")
}

func TestCostReport(t *testing.T) {
	svc, _, _ := newTestService(t)
	v, _ := svc.CreateVehicleWithDefaultTasks(as(alice), car(10000))
	c1, c2 := 120.0, 80.0
	_, _ = svc.LogService(as(alice), LogInput{VehicleID: v.ID, TaskName: "Brakes", Category: "Brakes", Cost: &c1, Date: now, Odometer: 10000})
	_, _ = svc.LogService(as(alice), LogInput{VehicleID: v.ID, TaskName: "Wash", Cost: &c2, Date: now.AddDate(-1, 0, 0), Odometer: 9000})

	report, err := svc.CostReport(as(alice), now, 5)
	require.NoError(t, err)
	assert.Equal(t, 200.0, report.Total)
	assert.Equal(t, 120.0, report.YearToDate)
	require.Len(t, report.Vehicles, 1)
	assert.InDelta(t, 0.02, report.Vehicles[0].PerDistance, 0.00001)
	assert.Equal(t, models.DefaultCategory, report.Categories[1].Category)
}

func TestCostReport_FleetNeedsCostPermission(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := car(100)
	in.Fleet = true
	v, _ := svc.CreateVehicleWithDefaultTasks(as(fleetAdmin), in)
	cost := 50.0
	_, err := svc.LogService(as(fleetAdmin), LogInput{VehicleID: v.ID, TaskName: "Wash", Cost: &cost, Date: now})
	require.NoError(t, err)

	report, err := svc.CostReport(as(fleetOp), now, 0)
	require.NoError(t, err)
	assert.Zero(t, report.Total)

	report, err = svc.CostReport(as(fleetView), now, 0)
	require.NoError(t, err)
	assert.Equal(t, 50.0, report.Total)
}

func waitFor(t *testing.T, ch <-chan aggregate.Snapshot, match func(aggregate.Snapshot) bool) aggregate.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if match(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return aggregate.Snapshot{}
		}
	}
}

func TestOpenFeed(t *testing.T) {
	svc, store, _ := newTestService(t)
	feed, release, err := svc.OpenFeed(as(fleetAdmin))
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 6, store.Watchers())

	ch, unsub := feed.Subscribe()
	defer unsub()

	in := car(0)
	in.Fleet = true
	fleetVehicle, err := svc.CreateVehicleWithDefaultTasks(as(fleetAdmin), in)
	require.NoError(t, err)
	snap := waitFor(t, ch, func(s aggregate.Snapshot) bool { return len(s.Vehicles) == 1 && len(s.Tasks) == 3 })
	assert.Equal(t, fleetVehicle.ID, snap.ActiveVehicleID)

	_, err = svc.CreateVehicleWithDefaultTasks(as(fleetAdmin), car(0))
	require.NoError(t, err)
	snap = waitFor(t, ch, func(s aggregate.Snapshot) bool { return len(s.Vehicles) == 2 && len(s.Tasks) == 6 })
	assert.Equal(t, fleetVehicle.ID, snap.ActiveVehicleID, "selection survives new vehicles")

	require.NoError(t, svc.RemoveVehicle(as(fleetAdmin), fleetVehicle.ID))
	snap = waitFor(t, ch, func(s aggregate.Snapshot) bool { return len(s.Vehicles) == 1 })
	assert.NotEqual(t, fleetVehicle.ID, snap.ActiveVehicleID)

	release()
	release()
	assert.Equal(t, 0, store.Watchers())
}

func TestOpenFeed_FleetWatchFailureDegrades(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := brokenFleetStore{db.NewMemoryStore()}
	svc := New(store, catalog, logger, WithClock(func() time.Time { return now }))

	feed, release, err := svc.OpenFeed(as(fleetAdmin))
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 5, store.Watchers())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "fleet", hook.LastEntry().Data["source"])

	_, err = svc.CreateVehicleWithDefaultTasks(as(fleetAdmin), car(0))
	require.NoError(t, err)
	assert.Len(t, feed.Snapshot().Tasks, 3)
}

func TestOpenFeed_RequiresPrincipal(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.OpenFeed(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
