// README: Entry point; loads config, wires services, starts the HTTP gateway.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediroute/internal/backend"
	"mediroute/internal/config"
	httptransport "mediroute/internal/http"
	"mediroute/internal/infra"
	"mediroute/internal/maps"
	"mediroute/internal/metrics"
	"mediroute/internal/modules/custody"
	"mediroute/internal/modules/location"
	"mediroute/internal/modules/order"
	"mediroute/internal/modules/tracking"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		logger.Error("MEDIROUTE_FIREBASE_PROJECT_ID is required")
		os.Exit(1)
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		logger.Error("firebase init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := backend.NewClient(cfg.Backend.BaseURL, logger)
	if err != nil {
		logger.Error("backend client init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The audit journal and location cache are optional: without a DSN or
	// Redis address the stores run as no-op sinks.
	var orderStore *order.Store
	var scanStore *custody.Store
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Error("db init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer dbPool.Close()
		orderStore = order.NewStore(dbPool)
		scanStore = custody.NewStore(dbPool)
	}

	var locationStore *location.Store
	if cfg.Redis.Addr != "" {
		locationStore = location.NewStore(infra.NewRedis(cfg.Redis.Addr))
	}

	var routes tracking.RouteEstimator
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Error("maps init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		routes = routeSvc
	}

	metrics.Register()

	orderSvc := order.NewService(client, orderStore, logger)
	tracker := tracking.NewService(
		client, orderSvc, scanStore, locationStore, routes,
		cfg.Tracking, cfg.Geo, logger,
	)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Order:    orderSvc,
		Tracker:  tracker,
		Tokens:   client,
		Verifier: verifier,
		Logger:   logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	tracker.Close()
}
