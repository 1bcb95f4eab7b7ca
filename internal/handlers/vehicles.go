package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/service"
)

// ListVehicles returns the caller's personal and fleet vehicles.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.svc.Vehicles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// CreateVehicle stores a vehicle with its default maintenance tasks.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var in service.VehicleInput
	if !decodeJSON(w, r, &in) {
		return
	}
	vehicle, err := h.svc.CreateVehicleWithDefaultTasks(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vehicle)
}

// UpdateVehicle replaces a vehicle's descriptive fields.
func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in service.VehicleUpdate
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.svc.UpdateVehicle(r.Context(), id, in); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteVehicle removes a vehicle with its tasks and logs.
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveVehicle(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type odometerRequest struct {
	Odometer *int `json:"odometer"`
}

// UpdateOdometer sets the current odometer reading.
func (h *Handler) UpdateOdometer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req odometerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Odometer == nil {
		h.writeServiceError(w, r, service.ValidationError("odometer", "required", "is required"))
		return
	}
	if err := h.svc.UpdateOdometer(r.Context(), id, *req.Odometer); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unitRequest struct {
	Unit models.Unit `json:"unit"`
}

// ConvertUnit switches a vehicle to another distance unit.
func (h *Handler) ConvertUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req unitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ConvertVehicleUnit(r.Context(), id, req.Unit); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
