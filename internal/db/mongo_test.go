package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri", time.Second)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestChangeFilter(t *testing.T) {
	pipeline := changeFilter(FleetScope("f1"))
	require.Len(t, pipeline, 1)
	assert.Equal(t, "$match", pipeline[0][0].Key)
}

// Integration tests (require a MongoDB replica set)
func integrationStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	client, err := ConnectMongo(context.Background(), uri, 5*time.Second)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	store := NewMongoStore(client, "test_fleet_maintenance")
	ctx := context.Background()
	for _, coll := range []string{VehiclesCollection, TasksCollection, LogsCollection} {
		_ = client.Database("test_fleet_maintenance").Collection(coll).Drop(ctx)
	}
	require.NoError(t, store.EnsureIndexes(ctx))
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestMongoStore_TransactionCommitAndRollback_Integration(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	owner := models.Ownership{OwnerType: models.OwnerPersonal, OwnerID: "u1"}
	v := models.Vehicle{ID: primitive.NewObjectID(), Ownership: owner, CreatedAt: time.Now().UTC()}

	err := store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertVehicle(ctx, v); err != nil {
			return err
		}
		return tx.InsertTasks(ctx, []models.MaintenanceTask{
			{ID: primitive.NewObjectID(), VehicleID: v.ID, Ownership: owner},
			{ID: primitive.NewObjectID(), VehicleID: v.ID, Ownership: owner},
		})
	})
	require.NoError(t, err)

	err = store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.DeleteTasksByVehicle(ctx, v.ID); err != nil {
			return err
		}
		return tx.DeleteVehicle(ctx, primitive.NewObjectID())
	})
	assert.ErrorIs(t, err, ErrNotFound)

	tasks, err := store.Tasks(ctx, PersonalScope("u1"))
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "aborted transaction leaves tasks in place")
}

func TestMongoStore_Watch_Integration(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	updates := make(chan []models.Vehicle, 4)
	sub, err := store.WatchVehicles(ctx, PersonalScope("u2"), func(v []models.Vehicle, err error) {
		if err == nil {
			updates <- v
		}
	})
	require.NoError(t, err)
	defer sub.Close()

	select {
	case initial := <-updates:
		assert.Empty(t, initial)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial delivery")
	}

	v := models.Vehicle{ID: primitive.NewObjectID(), Ownership: models.Ownership{OwnerType: models.OwnerPersonal, OwnerID: "u2"}}
	require.NoError(t, store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertVehicle(ctx, v)
	}))

	select {
	case got := <-updates:
		assert.Len(t, got, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivery")
	}
}
