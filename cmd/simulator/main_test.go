package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/service"
	"github.com/ukydev/fleet-maintenance/internal/telemetry"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}

func TestRandomVehicle(t *testing.T) {
	for _, vt := range vehicleTypes {
		in := randomVehicle(vt, models.UnitKilometers, true)
		assert.Equal(t, vt, in.Type)
		assert.Contains(t, makes[vt], in.Make)
		assert.Contains(t, modelNames[vt], in.Model)
		assert.GreaterOrEqual(t, in.CurrentOdometer, 5000)
		assert.Equal(t, models.UnitKilometers, in.OdometerUnit)
		assert.True(t, in.Fleet)
	}
}

func TestStep(t *testing.T) {
	km := &VehicleState{Unit: models.UnitKilometers, Distance: 100, SpeedKmh: 60}
	step(km, time.Hour)
	assert.InDelta(t, 160, km.Distance, 0.0001)

	mi := &VehicleState{Unit: models.UnitMiles, Distance: 100, SpeedKmh: 60}
	step(mi, time.Hour)
	assert.InDelta(t, 137.28, mi.Distance, 0.01)

	slow := &VehicleState{Unit: models.UnitKilometers, Distance: 10, SpeedKmh: 36}
	for i := 0; i < 10; i++ {
		step(slow, 10*time.Second)
	}
	assert.InDelta(t, 11, slow.Distance, 0.0001)
}

func TestReadingFromState(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s := &VehicleState{VehicleID: "abc", Unit: models.UnitMiles, Distance: 1234.9}
	r := readingFromState(s, now)
	assert.Equal(t, models.OdometerReading{VehicleID: "abc", Odometer: 1234, Unit: models.UnitMiles, Timestamp: now}, r)
}

func TestSendReading(t *testing.T) {
	pub := &fakePublisher{}
	id := primitive.NewObjectID().Hex()
	reading := models.OdometerReading{VehicleID: id, Odometer: 42, Unit: models.UnitKilometers}

	require.NoError(t, sendReading(pub, "fleet", reading))
	sent := pub.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, telemetry.Topic("fleet", id), sent[0].topic)

	decoded, err := telemetry.Decode(sent[0].payload)
	require.NoError(t, err)
	assert.Equal(t, 42, decoded.Odometer)

	pub.err = errors.New("broker down")
	assert.Error(t, sendReading(pub, "fleet", reading))
}

func TestSimulateVehicle_PublishesIncreasingReadings(t *testing.T) {
	pub := &fakePublisher{}
	s := &VehicleState{VehicleID: primitive.NewObjectID().Hex(), Unit: models.UnitKilometers, Distance: 1000, SpeedKmh: 60}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		simulateVehicle(ctx, pub, "fleet", s, 10*time.Millisecond, 360000)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.messages()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	prev := 1000
	for _, m := range pub.messages() {
		var r models.OdometerReading
		require.NoError(t, json.Unmarshal(m.payload, &r))
		assert.Greater(t, r.Odometer, prev)
		prev = r.Odometer
	}
}

func TestCreateVehicle(t *testing.T) {
	id := primitive.NewObjectID()
	var got service.VehicleInput
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/vehicles", r.URL.Path)
		assert.Equal(t, "Bearer sim-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Vehicle{
			ID:              id,
			Make:            got.Make,
			Model:           got.Model,
			CurrentOdometer: got.CurrentOdometer,
			OdometerUnit:    got.OdometerUnit,
		})
	}))
	defer server.Close()

	authToken = "sim-token"
	defer func() { authToken = "" }()

	in := randomVehicle(models.VehicleTypeEV, models.UnitMiles, false)
	v, err := createVehicle(server.URL+"/api", in)
	require.NoError(t, err)
	assert.Equal(t, id, v.ID)
	assert.Equal(t, in.Make, got.Make)

	s := newState(v)
	assert.Equal(t, id.Hex(), s.VehicleID)
	assert.Equal(t, float64(in.CurrentOdometer), s.Distance)
}

func TestCreateVehicle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"bad body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("{"))
		}},
		{"missing id", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"make":"Ford"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()
			_, err := createVehicle(server.URL, randomVehicle(models.VehicleTypeICE, models.UnitMiles, false))
			assert.Error(t, err)
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("SIM_TEST_VALUE", "7")
	assert.Equal(t, "7", getEnv("SIM_TEST_VALUE", "x"))
	assert.Equal(t, 7, getEnvAsInt("SIM_TEST_VALUE", 1))
	assert.Equal(t, "x", getEnv("SIM_TEST_MISSING", "x"))

	t.Setenv("SIM_TEST_VALUE", "seven")
	assert.Equal(t, 1, getEnvAsInt("SIM_TEST_VALUE", 1))
}
