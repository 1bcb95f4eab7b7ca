package models

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Unit is the distance unit a vehicle's odometer is recorded in.
type Unit string

const (
	UnitMiles      Unit = "mi"
	UnitKilometers Unit = "km"
)

// IsValidUnit checks if a unit is supported
func IsValidUnit(u Unit) bool {
	return u == UnitMiles || u == UnitKilometers
}

// OwnerType routes a record into the personal or the shared fleet result set.
type OwnerType string

const (
	OwnerPersonal OwnerType = "personal"
	OwnerFleet    OwnerType = "fleet"
)

// VehicleType selects which default maintenance templates apply.
type VehicleType string

const (
	VehicleTypeICE    VehicleType = "ice"
	VehicleTypeEV     VehicleType = "ev"
	VehicleTypeHybrid VehicleType = "hybrid"
)

// IsValidVehicleType checks if a vehicle type is supported
func IsValidVehicleType(vt VehicleType) bool {
	switch vt {
	case VehicleTypeICE, VehicleTypeEV, VehicleTypeHybrid:
		return true
	default:
		return false
	}
}

// Ownership is embedded by every owned record.
type Ownership struct {
	OwnerType OwnerType `bson:"owner_type" json:"owner_type"`
	OwnerID   string    `bson:"owner_id" json:"owner_id"`
	FleetID   *string   `bson:"fleet_id,omitempty" json:"fleet_id,omitempty"`
}

// Vehicle represents a tracked vehicle.
type Vehicle struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Nickname           string             `bson:"nickname" json:"nickname"`
	Type               VehicleType        `bson:"type" json:"type"`
	Make               string             `bson:"make" json:"make"`
	Model              string             `bson:"model" json:"model"`
	Year               int                `bson:"year" json:"year"`
	Trim               string             `bson:"trim,omitempty" json:"trim,omitempty"`
	CurrentOdometer    int                `bson:"current_odometer" json:"current_odometer"`
	OdometerUnit       Unit               `bson:"odometer_unit" json:"odometer_unit"`
	Ownership          `bson:",inline"`
	LastOdometerUpdate time.Time `bson:"last_odometer_update" json:"last_odometer_update"`
	CreatedAt          time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}

// DisplayName is the nickname, falling back to year/make/model.
func (v Vehicle) DisplayName() string {
	if v.Nickname != "" {
		return v.Nickname
	}
	name := v.Make
	if v.Model != "" {
		name += " " + v.Model
	}
	if v.Year > 0 {
		name = strconv.Itoa(v.Year) + " " + name
	}
	return name
}
