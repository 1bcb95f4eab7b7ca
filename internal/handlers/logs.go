package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-maintenance/internal/service"
)

// ListLogs returns service logs, optionally for one vehicle (?vehicle_id=).
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := queryID(w, r, "vehicle_id")
	if !ok {
		return
	}
	logs, err := h.svc.Logs(r.Context(), vehicleID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// CreateLog records a performed service and re-baselines its task.
func (h *Handler) CreateLog(w http.ResponseWriter, r *http.Request) {
	var in service.LogInput
	if !decodeJSON(w, r, &in) {
		return
	}
	entry, err := h.svc.LogService(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// DeleteLog removes one service log.
func (h *Handler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveServiceLog(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
