package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/handlers"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/realtime"
	"github.com/ukydev/fleet-maintenance/internal/receipts"
	"github.com/ukydev/fleet-maintenance/internal/service"
	"github.com/ukydev/fleet-maintenance/internal/telemetry"
	"github.com/ukydev/fleet-maintenance/internal/templates"
	"golang.org/x/time/rate"
)

// app holds everything started by newApp that must be stopped on exit.
type app struct {
	log        logrus.FieldLogger
	store      db.Store
	hub        *realtime.Hub
	subscriber *telemetry.Subscriber
	router     http.Handler
}

func openStore(ctx context.Context, cfg config.MongoConfig, log logrus.FieldLogger) (db.Store, error) {
	if cfg.Memory {
		log.Warn("using in-memory store, data is lost on exit")
		return db.NewMemoryStore(), nil
	}

	client, err := db.ConnectMongo(ctx, cfg.URI, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	store := db.NewMongoStore(client, cfg.Database)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	log.WithField("database", cfg.Database).Info("connected to MongoDB")
	return store, nil
}

func newApp(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	catalog, err := templates.Load(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	authSvc, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.Mongo, log)
	if err != nil {
		return nil, err
	}

	a := &app{log: log, store: store}
	svc := service.New(store, catalog, log)

	a.hub = realtime.NewHub(log, time.Now)
	if err := a.hub.Start(cfg.Schedule.DashboardRefresh); err != nil {
		a.shutdown(ctx)
		return nil, err
	}

	opts := handlers.Options{
		Stream:          a.hub,
		CostTopN:        cfg.Schedule.CostTopN,
		MaxReceiptBytes: cfg.Receipts.MaxBytes,
	}
	if cfg.Receipts.Enabled {
		storage, err := receipts.NewS3Storage(ctx, cfg.Receipts.Region, cfg.Receipts.Bucket, cfg.Receipts.Endpoint, cfg.Receipts.PublicURL)
		if err != nil {
			a.shutdown(ctx)
			return nil, fmt.Errorf("receipt storage: %w", err)
		}
		opts.Receipts = receipts.NewService(storage, cfg.Receipts.MaxBytes, log)
	}

	if cfg.MQTT.Enabled {
		client := telemetry.NewClient(cfg.MQTT, log)
		a.subscriber = telemetry.NewSubscriber(client, svc, cfg.MQTT.TopicPrefix, log)
		if err := a.subscriber.Start(ctx); err != nil {
			a.subscriber = nil
			a.shutdown(ctx)
			return nil, fmt.Errorf("telemetry: %w", err)
		}
	}

	h := handlers.New(svc, catalog, log, opts)
	a.router = handlers.NewRouter(h, handlers.RouterConfig{
		Auth:        middleware.NewAuthMiddleware(authSvc),
		RateLimiter: middleware.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst),
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Log:         log,
	})
	return a, nil
}

// shutdown stops the background workers and closes the store.
func (a *app) shutdown(ctx context.Context) {
	if a.subscriber != nil {
		a.subscriber.Stop()
	}
	if a.hub != nil {
		a.hub.Stop()
	}
	if err := a.store.Close(ctx); err != nil {
		a.log.WithError(err).Error("failed to close store")
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	log := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	a.shutdown(shutdownCtx)
}
