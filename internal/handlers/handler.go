// Package handlers exposes the maintenance service over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/aggregate"
	"github.com/ukydev/fleet-maintenance/internal/costs"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/receipts"
	"github.com/ukydev/fleet-maintenance/internal/service"
	"github.com/ukydev/fleet-maintenance/internal/validation"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxBodyBytes = 1 << 20

// Maintenance is the subset of the service used by the handlers.
type Maintenance interface {
	CreateVehicleWithDefaultTasks(ctx context.Context, in service.VehicleInput) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, id primitive.ObjectID, in service.VehicleUpdate) error
	UpdateOdometer(ctx context.Context, id primitive.ObjectID, value int) error
	RemoveVehicle(ctx context.Context, id primitive.ObjectID) error
	LogService(ctx context.Context, in service.LogInput) (*models.ServiceLog, error)
	RemoveServiceLog(ctx context.Context, id primitive.ObjectID) error
	ConvertVehicleUnit(ctx context.Context, id primitive.ObjectID, unit models.Unit) error
	Vehicles(ctx context.Context) ([]models.Vehicle, error)
	Logs(ctx context.Context, vehicleID primitive.ObjectID) ([]models.ServiceLog, error)
	DashboardTasks(ctx context.Context, now time.Time) ([]models.DashboardTask, error)
	CostReport(ctx context.Context, now time.Time, topN int) (*costs.Report, error)
	OpenFeed(ctx context.Context) (*aggregate.Feed, func(), error)
}

// TemplateLister lists the default maintenance templates.
type TemplateLister interface {
	All() []models.MaintenanceTemplate
	ForType(vt models.VehicleType) []models.MaintenanceTemplate
}

// ReceiptUploader stores receipt files.
type ReceiptUploader interface {
	Upload(ctx context.Context, userID, contentType string, size int64, r io.Reader) (*receipts.UploadResponse, error)
}

// Streamer serves live dashboards over a websocket.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, feed *aggregate.Feed, release func()) error
	ClientCount() int
}

// Handler holds the dependencies of every endpoint.
type Handler struct {
	svc       Maintenance
	templates TemplateLister
	receipts  ReceiptUploader
	stream    Streamer
	log       logrus.FieldLogger
	now       func() time.Time

	costTopN        int
	maxReceiptBytes int64
}

// Options configures optional endpoints. A nil Receipts or Stream disables
// the matching endpoint with 503.
type Options struct {
	Receipts        ReceiptUploader
	Stream          Streamer
	CostTopN        int
	MaxReceiptBytes int64
	Now             func() time.Time
}

// New creates the handler set.
func New(svc Maintenance, templates TemplateLister, log logrus.FieldLogger, opts Options) *Handler {
	h := &Handler{
		svc:             svc,
		templates:       templates,
		receipts:        opts.Receipts,
		stream:          opts.Stream,
		log:             log,
		now:             opts.Now,
		costTopN:        opts.CostTopN,
		maxReceiptBytes: opts.MaxReceiptBytes,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.maxReceiptBytes <= 0 {
		h.maxReceiptBytes = 10 << 20
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid ID format")
		return primitive.NilObjectID, false
	}
	return id, true
}

// queryID parses an optional id query parameter. A missing value yields
// NilObjectID.
func queryID(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return primitive.NilObjectID, true
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

// writeServiceError maps service errors onto HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fields validation.Errors
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
	case errors.Is(err, service.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Resource not found")
	case errors.Is(err, service.ErrForbidden):
		middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden, "Insufficient permissions")
	case errors.Is(err, service.ErrValidation) && errors.As(err, &fields):
		middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation, "Validation failed", fields)
	case errors.Is(err, service.ErrValidation):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	default:
		h.log.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetRequestID(r.Context()),
		}).Error("request failed")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "An unexpected error occurred")
	}
}
