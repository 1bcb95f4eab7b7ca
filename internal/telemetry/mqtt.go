// Package telemetry ingests odometer readings published by vehicle devices
// over MQTT.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PrincipalName identifies telemetry writes in logs.
const PrincipalName = "telemetry"

const (
	qos            = 1
	connectTimeout = 10 * time.Second
	handleTimeout  = 5 * time.Second
)

var ErrBadTopic = errors.New("unexpected telemetry topic")

// Recorder applies a device reading to a vehicle.
type Recorder interface {
	RecordOdometerReading(ctx context.Context, id primitive.ObjectID, reading models.OdometerReading) (bool, error)
}

// NewClient builds a paho client from configuration. The client
// reconnects on its own after a lost connection.
func NewClient(cfg config.MQTTConfig, log logrus.FieldLogger) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			log.Info("mqtt reconnecting")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return mqtt.NewClient(opts)
}

// Topic is where a device publishes readings for vehicleID.
func Topic(prefix, vehicleID string) string {
	return prefix + "/vehicles/" + vehicleID + "/odometer"
}

// ParseTopic extracts the vehicle id from a reading topic.
func ParseTopic(prefix, topic string) (primitive.ObjectID, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/vehicles/")
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	id, ok := strings.CutSuffix(rest, "/odometer")
	if !ok || id == "" || strings.Contains(id, "/") {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid vehicle id %q", ErrBadTopic, id)
	}
	return oid, nil
}

// Decode parses a reading payload.
func Decode(payload []byte) (models.OdometerReading, error) {
	var r models.OdometerReading
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, fmt.Errorf("decode reading: %w", err)
	}
	if r.Odometer < 0 {
		return r, fmt.Errorf("decode reading: negative odometer %d", r.Odometer)
	}
	return r, nil
}

// Subscriber feeds readings from the broker into a Recorder.
type Subscriber struct {
	client   mqtt.Client
	recorder Recorder
	prefix   string
	log      logrus.FieldLogger
	ctx      context.Context
}

// NewSubscriber creates a subscriber for topics under prefix.
func NewSubscriber(client mqtt.Client, recorder Recorder, prefix string, log logrus.FieldLogger) *Subscriber {
	return &Subscriber{
		client:   client,
		recorder: recorder,
		prefix:   prefix,
		log:      log,
		ctx:      context.Background(),
	}
}

// Start connects and subscribes. Messages are handled with a context derived
// from ctx carrying the telemetry principal.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = auth.WithPrincipal(ctx, auth.SystemPrincipal(PrincipalName))

	if token := s.client.Connect(); !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt connect timed out")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	filter := Topic(s.prefix, "+")
	if token := s.client.Subscribe(filter, qos, s.onMessage); !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt subscribe timed out")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", filter, err)
	}

	s.log.WithField("topic", filter).Info("telemetry subscriber started")
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Unsubscribe(Topic(s.prefix, "+")).WaitTimeout(connectTimeout)
	}
	s.client.Disconnect(250)
	s.log.Info("telemetry subscriber stopped")
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(s.ctx, handleTimeout)
	defer cancel()
	if err := s.Handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.log.WithError(err).WithField("topic", msg.Topic()).Warn("telemetry message dropped")
	}
}

// Handle applies one message.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) error {
	id, err := ParseTopic(s.prefix, topic)
	if err != nil {
		return err
	}
	reading, err := Decode(payload)
	if err != nil {
		return err
	}
	reading.VehicleID = id.Hex()

	advanced, err := s.recorder.RecordOdometerReading(ctx, id, reading)
	if err != nil {
		return fmt.Errorf("record reading for %s: %w", id.Hex(), err)
	}
	s.log.WithFields(logrus.Fields{
		"vehicle_id": id.Hex(),
		"odometer":   reading.Odometer,
		"unit":       reading.Unit,
		"advanced":   advanced,
	}).Debug("odometer reading received")
	return nil
}
