package models

// Role represents a member's role inside a fleet
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Actions checked against a fleet role.
const (
	ActionViewVehicles   = "view_vehicles"
	ActionManageVehicles = "manage_vehicles"
	ActionDeleteVehicles = "delete_vehicles"
	ActionUpdateOdometer = "update_odometer"
	ActionLogService     = "log_service"
	ActionDeleteLogs     = "delete_logs"
	ActionViewCosts      = "view_costs"
)

// Principal is the resolved identity behind a request.
type Principal struct {
	UserID  string `json:"user_id"`
	FleetID string `json:"fleet_id,omitempty"`
	Role    Role   `json:"role,omitempty"`
	// System principals act on behalf of devices and bypass ownership checks.
	System bool `json:"-"`
	Exp    int64 `json:"exp,omitempty"`
}

// HasFleet reports whether the principal belongs to an organization.
func (p *Principal) HasFleet() bool {
	return p != nil && p.FleetID != ""
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if the role allows an action on fleet records
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ActionDeleteVehicles
	case RoleOperator:
		return action == ActionViewVehicles || action == ActionUpdateOdometer ||
			action == ActionLogService
	case RoleViewer:
		return action == ActionViewVehicles || action == ActionViewCosts
	default:
		return false
	}
}

// CanAccess checks whether the principal may perform action on a record.
// Personal records are only visible to their owner; fleet records are gated
// by the principal's fleet role.
func (p *Principal) CanAccess(o Ownership, action string) bool {
	if p == nil {
		return false
	}
	if p.System {
		return true
	}
	switch o.OwnerType {
	case OwnerFleet:
		return o.FleetID != nil && *o.FleetID == p.FleetID && p.Role.HasPermission(action)
	default:
		return o.OwnerID == p.UserID
	}
}
