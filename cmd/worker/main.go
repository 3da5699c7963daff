// Package main provides the entrypoint for the VoyaAI cost repair worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/database"
	"github.com/voyaai/voyaai/internal/plan"
	"github.com/voyaai/voyaai/internal/provider/resilience"
	"github.com/voyaai/voyaai/internal/routing"
	"github.com/voyaai/voyaai/internal/routing/openrouteservice"
	"github.com/voyaai/voyaai/internal/telemetry"
	"github.com/voyaai/voyaai/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "voyaai-worker"

	envErr := godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Bool("dotenv", envErr == nil).
		Msg("starting VoyaAI worker")

	// Worker also exposes health endpoint for Cloud Run
	port := getEnvOrDefault("APP_PORT", "8080")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	repo := plan.NewPostgresRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	log.Info().Str("database", dbConfig.Redacted()).Msg("database connected")

	registry := resilience.NewRegistry()
	routingCfg := routing.ServiceConfig{Meter: tp.Meter, Logger: log}
	if key := os.Getenv("ORS_API_KEY"); key != "" {
		ors := openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   key,
			BaseURL:  os.Getenv("ORS_BASE_URL"),
			Registry: registry,
			Logger:   log,
		})
		routingCfg.Provider = ors
		routingCfg.Geocoder = routing.NewCachedGeocoder(ors, routing.CachedGeocoderConfig{Logger: log})
	} else {
		log.Warn().Msg("ORS_API_KEY not set - road legs cannot be repaired")
	}

	repairCfg := worker.DefaultRepairConfig()
	if n, err := strconv.Atoi(os.Getenv("REPAIR_CONCURRENCY")); err == nil && n > 0 {
		repairCfg.Concurrency = n
	}
	job := worker.NewRepairJob(worker.RepairJobConfig{
		Config:     repairCfg,
		Repository: repo,
		Provider:   routing.NewService(routingCfg),
		Logger:     log,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"repair":  job.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Pub/Sub drives the worker in production; a plain interval is enough
	// locally.
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "voyaai-cost-repair"),
			RepairJob:        job,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() { _ = handler.Close() }()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
				cancel()
			}
		}()
	} else {
		interval := getEnvDuration("REPAIR_INTERVAL", 15*time.Minute)
		log.Info().Dur("interval", interval).Msg("pubsub not configured, repairing on a timer")
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := job.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error().Err(err).Msg("repair run failed")
					}
				}
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
