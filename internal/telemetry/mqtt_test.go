package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordOdometerReading(ctx context.Context, id primitive.ObjectID, reading models.OdometerReading) (bool, error) {
	args := m.Called(ctx, id, reading)
	return args.Bool(0), args.Error(1)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool { return false }
func (m fakeMessage) Qos() byte { return qos }
func (m fakeMessage) Retained() bool { return false }
func (m fakeMessage) Topic() string { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Ack() {}

func TestParseTopic(t *testing.T) {
	id := primitive.NewObjectID()

	got, err := ParseTopic("fleet", Topic("fleet", id.Hex()))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	bad := []string{
		"other/vehicles/" + id.Hex() + "/odometer",
		"fleet/vehicles/" + id.Hex() + "/fuel",
		"fleet/vehicles//odometer",
		"fleet/vehicles/abc/odometer",
		"fleet/vehicles/a/b/odometer",
	}
	for _, topic := range bad {
		_, err := ParseTopic("fleet", topic)
		assert.ErrorIs(t, err, ErrBadTopic, topic)
	}
}

func TestDecode(t *testing.T) {
	r, err := Decode([]byte(`{"odometer":12345,"unit":"km","timestamp":"2026-05-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, 12345, r.Odometer)
	assert.Equal(t, models.UnitKilometers, r.Unit)
	assert.Equal(t, 2026, r.Timestamp.Year())

	_, err = Decode([]byte(`{"odometer":-5}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestHandle(t *testing.T) {
	logger, _ := test.NewNullLogger()
	recorder := new(mockRecorder)
	sub := NewSubscriber(nil, recorder, "fleet", logger)
	id := primitive.NewObjectID()

	recorder.On("RecordOdometerReading", mock.Anything, id, mock.MatchedBy(func(r models.OdometerReading) bool {
		return r.Odometer == 500 && r.Unit == models.UnitMiles && r.VehicleID == id.Hex()
	})).Return(true, nil).Once()

	err := sub.Handle(context.Background(), Topic("fleet", id.Hex()), []byte(`{"vehicle_id":"spoofed","odometer":500,"unit":"mi"}`))
	require.NoError(t, err)
	recorder.AssertExpectations(t)
}

func TestHandle_RecorderError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	recorder := new(mockRecorder)
	sub := NewSubscriber(nil, recorder, "fleet", logger)
	recorder.On("RecordOdometerReading", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("not found"))

	err := sub.Handle(context.Background(), Topic("fleet", primitive.NewObjectID().Hex()), []byte(`{"odometer":1}`))
	assert.ErrorContains(t, err, "not found")
}

func TestOnMessage_ActsAsTelemetryPrincipal(t *testing.T) {
	logger, hook := test.NewNullLogger()
	recorder := new(mockRecorder)
	sub := NewSubscriber(nil, recorder, "fleet", logger)
	sub.ctx = auth.WithPrincipal(context.Background(), auth.SystemPrincipal(PrincipalName))
	id := primitive.NewObjectID()

	recorder.On("RecordOdometerReading", mock.MatchedBy(func(ctx context.Context) bool {
		p, ok := auth.PrincipalFromContext(ctx)
		return ok && p.System && p.UserID == PrincipalName
	}), id, mock.Anything).Return(true, nil).Once()

	sub.onMessage(nil, fakeMessage{topic: Topic("fleet", id.Hex()), payload: []byte(`{"odometer":42}`)})
	recorder.AssertExpectations(t)

	sub.onMessage(nil, fakeMessage{topic: "fleet/vehicles/nope/odometer", payload: []byte(`{}`)})
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "telemetry message dropped", hook.LastEntry().Message)
}
