package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
)

// RouterConfig carries the middleware used by NewRouter.
type RouterConfig struct {
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.IPRateLimiter
	CORSOrigins []string
	Log         logrus.FieldLogger
}

// NewRouter wires every endpoint behind the middleware chain.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Log))
	r.Use(middleware.ErrorRecovery(cfg.Log))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.RateLimit)
	}
	api.Use(cfg.Auth.Authenticate)

	api.HandleFunc("/me", h.Me).Methods(http.MethodGet)

	api.HandleFunc("/vehicles", h.ListVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles", h.CreateVehicle).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{id}", h.UpdateVehicle).Methods(http.MethodPut)
	api.HandleFunc("/vehicles/{id}", h.DeleteVehicle).Methods(http.MethodDelete)
	api.HandleFunc("/vehicles/{id}/odometer", h.UpdateOdometer).Methods(http.MethodPatch)
	api.HandleFunc("/vehicles/{id}/unit", h.ConvertUnit).Methods(http.MethodPost)

	api.HandleFunc("/logs", h.ListLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs", h.CreateLog).Methods(http.MethodPost)
	api.HandleFunc("/logs/{id}", h.DeleteLog).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/stream", h.Stream).Methods(http.MethodGet)
	api.HandleFunc("/reports/costs", h.CostReport).Methods(http.MethodGet)
	api.HandleFunc("/templates", h.Templates).Methods(http.MethodGet)
	api.HandleFunc("/receipts", h.UploadReceipt).Methods(http.MethodPost)

	// CORS wraps the router so preflight requests that match no route are
	// still answered.
	if cfg.CORSOrigins != nil {
		return middleware.CORS(cfg.CORSOrigins)(r)
	}
	return r
}

type healthResponse struct {
	Status        string    `json:"status"`
	Time          time.Time `json:"time"`
	StreamClients int       `json:"stream_clients"`
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Time: h.now()}
	if h.stream != nil {
		resp.StreamClients = h.stream.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
