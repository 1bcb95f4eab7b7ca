package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

type meResponse struct {
	UserID      string      `json:"user_id"`
	FleetID     string      `json:"fleet_id,omitempty"`
	Role        models.Role `json:"role,omitempty"`
	Permissions []string    `json:"permissions"`
	ExpiresAt   int64       `json:"expires_at,omitempty"`
}

var fleetActions = []string{
	models.ActionViewVehicles,
	models.ActionManageVehicles,
	models.ActionDeleteVehicles,
	models.ActionUpdateOdometer,
	models.ActionLogService,
	models.ActionDeleteLogs,
	models.ActionViewCosts,
}

// Me returns the caller's identity and the fleet actions its role allows.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
		return
	}

	resp := meResponse{
		UserID:      p.UserID,
		FleetID:     p.FleetID,
		Role:        p.Role,
		Permissions: []string{},
		ExpiresAt:   p.Exp,
	}
	if p.HasFleet() {
		for _, action := range fleetActions {
			if p.Role.HasPermission(action) {
				resp.Permissions = append(resp.Permissions, action)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
