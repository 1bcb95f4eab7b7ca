package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// BaselineType records whether a task's thresholds come from a real service.
type BaselineType string

const (
	// BaselineEstimated thresholds were computed from vehicle creation defaults.
	BaselineEstimated BaselineType = "estimated"
	// BaselineConfirmed thresholds were computed from a logged service.
	BaselineConfirmed BaselineType = "confirmed"
)

// DefaultCategory labels logs and tasks without a category.
const DefaultCategory = "Other"

// MaintenanceTask represents a recurring maintenance item on a vehicle.
type MaintenanceTask struct {
	ID                  primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID           primitive.ObjectID `json:"vehicle_id" bson:"vehicle_id"`
	Name                string             `json:"name" bson:"name"`
	Category            string             `json:"category" bson:"category"`
	MilesInterval       int                `json:"miles_interval" bson:"miles_interval"`   // in the vehicle's odometer unit, 0 disables
	MonthsInterval      int                `json:"months_interval" bson:"months_interval"` // 30-day months, 0 disables
	LastServiceOdometer *int               `json:"last_service_odometer" bson:"last_service_odometer"`
	LastServiceDate     *time.Time         `json:"last_service_date" bson:"last_service_date"`
	NextDueOdometer     *int               `json:"next_due_odometer" bson:"next_due_odometer"`
	NextDueDate         *time.Time         `json:"next_due_date" bson:"next_due_date"`
	BaselineType        BaselineType       `json:"baseline_type" bson:"baseline_type"`
	Ownership           `bson:",inline"`
	CreatedAt           time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" bson:"updated_at"`
}

// ServiceLog is an immutable record of a performed service.
type ServiceLog struct {
	ID         primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	VehicleID  primitive.ObjectID  `json:"vehicle_id" bson:"vehicle_id"`
	TaskID     *primitive.ObjectID `json:"task_id,omitempty" bson:"task_id,omitempty"`
	TaskName   string              `json:"task_name" bson:"task_name"`
	Category   string              `json:"category" bson:"category"`
	Odometer   int                 `json:"odometer" bson:"odometer"`
	Date       time.Time           `json:"date" bson:"date"`
	Cost       *float64            `json:"cost,omitempty" bson:"cost,omitempty"` // in the user's currency
	Notes      string              `json:"notes,omitempty" bson:"notes,omitempty"`
	ReceiptURL string              `json:"receipt_url,omitempty" bson:"receipt_url,omitempty"`
	Ownership  `bson:",inline"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// CategoryOrDefault returns the log category, "Other" when blank.
func (l ServiceLog) CategoryOrDefault() string {
	if l.Category == "" {
		return DefaultCategory
	}
	return l.Category
}

// MaintenanceTemplate is a default task created alongside a new vehicle.
type MaintenanceTemplate struct {
	Name           string        `yaml:"name" json:"name"`
	Category       string        `yaml:"category" json:"category"`
	MilesInterval  int           `yaml:"miles_interval" json:"miles_interval"`
	MonthsInterval int           `yaml:"months_interval" json:"months_interval"`
	AppliesTo      []VehicleType `yaml:"applies_to,omitempty" json:"applies_to,omitempty"` // empty means every type
}

// Applies reports whether the template is used for a vehicle type.
func (t MaintenanceTemplate) Applies(vt VehicleType) bool {
	if len(t.AppliesTo) == 0 {
		return true
	}
	for _, a := range t.AppliesTo {
		if a == vt {
			return true
		}
	}
	return false
}
