package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	VehiclesCollection = "vehicles"
	TasksCollection    = "maintenance_tasks"
	LogsCollection     = "service_logs"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
// Transactions and change streams require a replica set deployment.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if uri == "" {
		uri = "mongodb://localhost:27017/?replicaSet=rs0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client   *mongo.Client
	vehicles *mongo.Collection
	tasks    *mongo.Collection
	logs     *mongo.Collection
}

// NewMongoStore returns a store on the named database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:   client,
		vehicles: db.Collection(VehiclesCollection),
		tasks:    db.Collection(TasksCollection),
		logs:     db.Collection(LogsCollection),
	}
}

// EnsureIndexes creates the indexes used by scoped and per-vehicle queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	scoped := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_type", Value: 1}, {Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "owner_type", Value: 1}, {Key: "fleet_id", Value: 1}}},
	}
	byVehicle := mongo.IndexModel{Keys: bson.D{{Key: "vehicle_id", Value: 1}}}

	if _, err := s.vehicles.Indexes().CreateMany(ctx, scoped); err != nil {
		return fmt.Errorf("create vehicle indexes: %w", err)
	}
	for _, coll := range []*mongo.Collection{s.tasks, s.logs} {
		if _, err := coll.Indexes().CreateMany(ctx, append(scoped, byVehicle)); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll.Name(), err)
		}
	}
	return nil
}

// RunInTransaction runs fn inside a multi-document transaction. The driver
// may retry fn on transient errors, so fn must only act through tx.
func (s *MongoStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx, &mongoTx{store: s})
	})
	return err
}

// Vehicles returns the scoped vehicles.
func (s *MongoStore) Vehicles(ctx context.Context, scope Scope) ([]models.Vehicle, error) {
	return findAll[models.Vehicle](ctx, s.vehicles, scope.Filter())
}

// Tasks returns the scoped maintenance tasks.
func (s *MongoStore) Tasks(ctx context.Context, scope Scope) ([]models.MaintenanceTask, error) {
	return findAll[models.MaintenanceTask](ctx, s.tasks, scope.Filter())
}

// Logs returns the scoped service logs.
func (s *MongoStore) Logs(ctx context.Context, scope Scope) ([]models.ServiceLog, error) {
	return findAll[models.ServiceLog](ctx, s.logs, scope.Filter())
}

// WatchVehicles streams the scoped vehicles.
func (s *MongoStore) WatchVehicles(ctx context.Context, scope Scope, fn func([]models.Vehicle, error)) (Subscription, error) {
	return watchScoped(ctx, s.vehicles, scope, fn)
}

// WatchTasks streams the scoped maintenance tasks.
func (s *MongoStore) WatchTasks(ctx context.Context, scope Scope, fn func([]models.MaintenanceTask, error)) (Subscription, error) {
	return watchScoped(ctx, s.tasks, scope, fn)
}

// WatchLogs streams the scoped service logs.
func (s *MongoStore) WatchLogs(ctx context.Context, scope Scope, fn func([]models.ServiceLog, error)) (Subscription, error) {
	return watchScoped(ctx, s.logs, scope, fn)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}) ([]T, error) {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

func findByID[T any](ctx context.Context, coll *mongo.Collection, id primitive.ObjectID) (*T, error) {
	var out T
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find %s %s: %w", coll.Name(), id.Hex(), err)
	}
	return &out, nil
}

func replaceByID(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, doc interface{}) error {
	result, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("replace %s %s: %w", coll.Name(), id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID) error {
	result, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", coll.Name(), id.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// mongoTx runs every operation on the session context handed to the
// transaction callback.
type mongoTx struct {
	store *MongoStore
}

func (t *mongoTx) Vehicle(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	return findByID[models.Vehicle](ctx, t.store.vehicles, id)
}

func (t *mongoTx) Task(ctx context.Context, id primitive.ObjectID) (*models.MaintenanceTask, error) {
	return findByID[models.MaintenanceTask](ctx, t.store.tasks, id)
}

func (t *mongoTx) Log(ctx context.Context, id primitive.ObjectID) (*models.ServiceLog, error) {
	return findByID[models.ServiceLog](ctx, t.store.logs, id)
}

func (t *mongoTx) TasksByVehicle(ctx context.Context, vehicleID primitive.ObjectID) ([]models.MaintenanceTask, error) {
	return findAll[models.MaintenanceTask](ctx, t.store.tasks, bson.M{"vehicle_id": vehicleID})
}

func (t *mongoTx) LogsByVehicle(ctx context.Context, vehicleID primitive.ObjectID) ([]models.ServiceLog, error) {
	return findAll[models.ServiceLog](ctx, t.store.logs, bson.M{"vehicle_id": vehicleID})
}

func (t *mongoTx) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if _, err := t.store.vehicles.InsertOne(ctx, vehicle); err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

func (t *mongoTx) UpdateVehicle(ctx context.Context, vehicle models.Vehicle) error {
	return replaceByID(ctx, t.store.vehicles, vehicle.ID, vehicle)
}

func (t *mongoTx) DeleteVehicle(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, t.store.vehicles, id)
}

func (t *mongoTx) InsertTasks(ctx context.Context, tasks []models.MaintenanceTask) error {
	if len(tasks) == 0 {
		return nil
	}
	docs := make([]interface{}, len(tasks))
	for i := range tasks {
		docs[i] = tasks[i]
	}
	if _, err := t.store.tasks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert tasks: %w", err)
	}
	return nil
}

func (t *mongoTx) UpdateTask(ctx context.Context, task models.MaintenanceTask) error {
	return replaceByID(ctx, t.store.tasks, task.ID, task)
}

func (t *mongoTx) DeleteTasksByVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int, error) {
	result, err := t.store.tasks.DeleteMany(ctx, bson.M{"vehicle_id": vehicleID})
	if err != nil {
		return 0, fmt.Errorf("delete tasks of vehicle %s: %w", vehicleID.Hex(), err)
	}
	return int(result.DeletedCount), nil
}

func (t *mongoTx) InsertLog(ctx context.Context, log models.ServiceLog) error {
	if _, err := t.store.logs.InsertOne(ctx, log); err != nil {
		return fmt.Errorf("insert service log: %w", err)
	}
	return nil
}

func (t *mongoTx) UpdateLog(ctx context.Context, log models.ServiceLog) error {
	return replaceByID(ctx, t.store.logs, log.ID, log)
}

func (t *mongoTx) DeleteLog(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, t.store.logs, id)
}

func (t *mongoTx) DeleteLogsByVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int, error) {
	result, err := t.store.logs.DeleteMany(ctx, bson.M{"vehicle_id": vehicleID})
	if err != nil {
		return 0, fmt.Errorf("delete logs of vehicle %s: %w", vehicleID.Hex(), err)
	}
	return int(result.DeletedCount), nil
}

// changeFilter keeps deletes, whose documents are gone, and changes to
// documents inside the scope.
func changeFilter(scope Scope) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"operationType": "delete"},
			bson.M{
				"fullDocument.owner_type":    scope.OwnerType,
				"fullDocument." + scope.Key(): scope.ID,
			},
		}}}},
	}
}

type mongoSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *mongoSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// watchScoped opens a change stream before the initial read so no change
// between the two is missed, then re-reads the scope after every event.
func watchScoped[T any](ctx context.Context, coll *mongo.Collection, scope Scope, fn func([]T, error)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := coll.Watch(ctx, changeFilter(scope), opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", coll.Name(), err)
	}

	sub := &mongoSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer stream.Close(context.Background())

		emit := func() bool {
			items, err := findAll[T](ctx, coll, scope.Filter())
			if ctx.Err() != nil {
				return false
			}
			fn(items, err)
			return err == nil
		}

		if !emit() {
			return
		}
		for stream.Next(ctx) {
			if !emit() {
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			fn(nil, fmt.Errorf("change stream %s: %w", coll.Name(), err))
		}
	}()
	return sub, nil
}
