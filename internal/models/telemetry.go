package models

import (
	"time"
)

// OdometerReading is a reading reported by a vehicle device.
type OdometerReading struct {
	VehicleID string    `bson:"vehicle_id" json:"vehicle_id"`
	Odometer  int       `bson:"odometer" json:"odometer"`
	Unit      Unit      `bson:"unit,omitempty" json:"unit,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
