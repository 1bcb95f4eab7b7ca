package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
)

type dashboardResponse struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Summary     schedule.Summary       `json:"summary"`
	Tasks       []models.DashboardTask `json:"tasks"`
}

// Dashboard returns every visible task with its status, most urgent first.
// ?vehicle_id= narrows it to one vehicle.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := queryID(w, r, "vehicle_id")
	if !ok {
		return
	}
	now := h.now()
	tasks, err := h.svc.DashboardTasks(r.Context(), now)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !vehicleID.IsZero() {
		tasks = schedule.ForVehicle(tasks, vehicleID)
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		GeneratedAt: now,
		Summary:     schedule.Summarize(tasks),
		Tasks:       tasks,
	})
}

// CostReport returns spend totals. ?top= overrides the number of categories.
func (h *Handler) CostReport(w http.ResponseWriter, r *http.Request) {
	topN := h.costTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "top must be a non-negative integer")
			return
		}
		topN = n
	}
	report, err := h.svc.CostReport(r.Context(), h.now(), topN)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Templates lists the default maintenance templates, optionally for one
// vehicle type (?type=).
func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	vt := models.VehicleType(r.URL.Query().Get("type"))
	if vt == "" {
		writeJSON(w, http.StatusOK, h.templates.All())
		return
	}
	if !models.IsValidVehicleType(vt) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "type must be ice, ev or hybrid")
		return
	}
	writeJSON(w, http.StatusOK, h.templates.ForType(vt))
}

// Stream upgrades to a websocket pushing the live dashboard.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Live dashboard is disabled")
		return
	}

	// The feed outlives this handler; it is bound to the connection instead.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	feed, release, err := h.svc.OpenFeed(ctx)
	if err != nil {
		cancel()
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.stream.Serve(w, r, feed, func() { release(); cancel() }); err != nil {
		h.log.WithError(err).Warn("dashboard stream not opened")
	}
}
