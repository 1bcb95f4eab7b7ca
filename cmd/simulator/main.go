package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/service"
	"github.com/ukydev/fleet-maintenance/internal/telemetry"
)

const publishTimeout = 5 * time.Second

// Publisher sends a payload to a broker topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p *mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timed out")
	}
	return token.Error()
}

var authToken string

func authorizedPost(url string, contentType string, body *bytes.Buffer) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

var (
	makes = map[models.VehicleType][]string{
		models.VehicleTypeICE:    {"Ford", "Chevrolet", "Toyota", "Honda", "BMW"},
		models.VehicleTypeEV:     {"Tesla", "Nissan", "Chevrolet", "Ford", "Audi"},
		models.VehicleTypeHybrid: {"Toyota", "Honda", "Hyundai", "Kia"},
	}
	modelNames = map[models.VehicleType][]string{
		models.VehicleTypeICE:    {"F-150", "Silverado", "Camry", "Civic", "X5"},
		models.VehicleTypeEV:     {"Model 3", "Leaf", "Bolt", "Mach-E", "e-tron"},
		models.VehicleTypeHybrid: {"Prius", "Accord Hybrid", "Ioniq", "Niro"},
	}
	vehicleTypes = []models.VehicleType{models.VehicleTypeICE, models.VehicleTypeEV, models.VehicleTypeHybrid}
)

func randomVehicle(vtype models.VehicleType, unit models.Unit, fleet bool) service.VehicleInput {
	return service.VehicleInput{
		Type:            vtype,
		Make:            makes[vtype][rand.Intn(len(makes[vtype]))],
		Model:           modelNames[vtype][rand.Intn(len(modelNames[vtype]))],
		Year:            2018 + rand.Intn(7),
		CurrentOdometer: 5000 + rand.Intn(60000),
		OdometerUnit:    unit,
		Fleet:           fleet,
	}
}

func createVehicle(apiURL string, in service.VehicleInput) (*models.Vehicle, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vehicle: %w", err)
	}

	resp, err := authorizedPost(apiURL+"/vehicles", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("vehicle creation failed with status: %d", resp.StatusCode)
	}

	var vehicle models.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&vehicle); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if vehicle.ID.IsZero() {
		return nil, errors.New("invalid vehicle ID in response")
	}

	log.WithFields(log.Fields{
		"vehicle_id": vehicle.ID.Hex(),
		"type":       vehicle.Type,
		"make":       vehicle.Make,
		"model":      vehicle.Model,
	}).Info("Created vehicle")

	return &vehicle, nil
}

// VehicleState tracks the simulated odometer between ticks. Distance keeps
// the fractional part so slow ticks still accumulate.
type VehicleState struct {
	VehicleID string
	Unit      models.Unit
	Distance  float64
	SpeedKmh  float64
}

func newState(v *models.Vehicle) *VehicleState {
	return &VehicleState{
		VehicleID: v.ID.Hex(),
		Unit:      v.OdometerUnit,
		Distance:  float64(v.CurrentOdometer),
		SpeedKmh:  30 + rand.Float64()*60,
	}
}

// step advances the odometer by the distance covered in tick, in the
// vehicle's unit.
func step(s *VehicleState, tick time.Duration) {
	km := s.SpeedKmh * tick.Hours()
	if s.Unit == models.UnitMiles {
		km /= 1.609344
	}
	s.Distance += km
}

func readingFromState(s *VehicleState, now time.Time) models.OdometerReading {
	return models.OdometerReading{
		VehicleID: s.VehicleID,
		Odometer:  int(math.Floor(s.Distance)),
		Unit:      s.Unit,
		Timestamp: now,
	}
}

func sendReading(pub Publisher, prefix string, reading models.OdometerReading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	return pub.Publish(telemetry.Topic(prefix, reading.VehicleID), data)
}

// simulateVehicle publishes a reading every interval until ctx ends. Each
// tick covers scale times the wall-clock interval of driving.
func simulateVehicle(ctx context.Context, pub Publisher, prefix string, s *VehicleState, interval time.Duration, scale float64) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			s.SpeedKmh += (rand.Float64()*2 - 1) * 5
			if s.SpeedKmh < 15 {
				s.SpeedKmh = 15
			}
			if s.SpeedKmh > 120 {
				s.SpeedKmh = 120
			}
			step(s, time.Duration(float64(interval)*scale))

			reading := readingFromState(s, now)
			if err := sendReading(pub, prefix, reading); err != nil {
				log.WithError(err).WithField("vehicle_id", s.VehicleID).Error("Failed to publish reading")
				continue
			}
			log.WithFields(log.Fields{
				"vehicle_id": s.VehicleID,
				"odometer":   reading.Odometer,
				"unit":       reading.Unit,
			}).Debug("Published reading")
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	authToken = os.Getenv("SIM_AUTH_TOKEN")

	fleetSize := getEnvAsInt("FLEET_SIZE", 10)
	apiURL := getEnv("API_BASE_URL", "http://localhost:8080/api")
	interval := time.Duration(getEnvAsInt("SIM_TICK_SECONDS", 2)) * time.Second
	if interval < time.Second {
		interval = time.Second
	}
	// SIM_SPEEDUP makes each tick cover more road so thresholds are crossed
	// within a demo.
	scale := float64(getEnvAsInt("SIM_SPEEDUP", 600))
	fleet := os.Getenv("SIM_FLEET") == "true"
	mqttCfg := config.MQTTConfig{
		BrokerURL:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		ClientID:    getEnv("MQTT_CLIENT_ID", "fleet-simulator"),
		Username:    os.Getenv("MQTT_USERNAME"),
		Password:    os.Getenv("MQTT_PASSWORD"),
		TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "fleet"),
	}

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"broker":     mqttCfg.BrokerURL,
		"interval":   interval,
	}).Info("Starting odometer simulation")

	client := telemetry.NewClient(mqttCfg, log.StandardLogger())
	if token := client.Connect(); !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		log.WithError(token.Error()).Fatal("Failed to connect to MQTT broker")
	}
	defer client.Disconnect(250)

	states := make([]*VehicleState, 0, fleetSize)
	for i := 0; i < fleetSize; i++ {
		vtype := vehicleTypes[rand.Intn(len(vehicleTypes))]
		unit := []models.Unit{models.UnitMiles, models.UnitKilometers}[rand.Intn(2)]
		vehicle, err := createVehicle(apiURL, randomVehicle(vtype, unit, fleet))
		if err != nil {
			log.WithError(err).Error("Failed to create vehicle")
			continue
		}
		states = append(states, newState(vehicle))
	}

	log.WithField("created_vehicles", len(states)).Info("Vehicle creation completed")
	if len(states) == 0 {
		log.Error("No vehicles created. Ensure SIM_AUTH_TOKEN is valid and API is reachable. Exiting.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub := &mqttPublisher{client: client}
	var wg sync.WaitGroup
	for _, s := range states {
		wg.Add(1)
		go func(s *VehicleState) {
			defer wg.Done()
			simulateVehicle(ctx, pub, mqttCfg.TopicPrefix, s, interval, scale)
		}(s)
	}

	log.Info("Odometer simulation started")
	wg.Wait()
	log.Info("Odometer simulation stopped")
}
