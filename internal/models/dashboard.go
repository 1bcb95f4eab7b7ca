package models

// Status is the derived urgency of a maintenance task.
type Status string

const (
	StatusOverdue  Status = "overdue"
	StatusDueSoon  Status = "dueSoon"
	StatusUpcoming Status = "upcoming"
)

// Rank orders statuses from most to least urgent.
func (s Status) Rank() int {
	switch s {
	case StatusOverdue:
		return 0
	case StatusDueSoon:
		return 1
	default:
		return 2
	}
}

// DashboardTask is a task plus its derived status. It is never persisted.
type DashboardTask struct {
	MaintenanceTask
	Status         Status `json:"status"`
	MilesRemaining *int   `json:"miles_remaining"`
	DaysRemaining  *int   `json:"days_remaining"`
	VehicleName    string `json:"vehicle_name"`
}
