// Package main provides the entrypoint for the VoyaAI API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/api"
	"github.com/voyaai/voyaai/internal/api/handler"
	"github.com/voyaai/voyaai/internal/api/middleware"
	"github.com/voyaai/voyaai/internal/auth"
	"github.com/voyaai/voyaai/internal/database"
	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/plan"
	"github.com/voyaai/voyaai/internal/provider/resilience"
	"github.com/voyaai/voyaai/internal/routing"
	"github.com/voyaai/voyaai/internal/routing/openrouteservice"
	"github.com/voyaai/voyaai/internal/session"
	"github.com/voyaai/voyaai/internal/telemetry"
	"github.com/voyaai/voyaai/internal/ticket"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "voyaai-api"

	// A missing .env is normal outside local development.
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
		Msg("starting VoyaAI API")

	port := getEnvOrDefault("APP_PORT", "8080")

	ctx := context.Background()
	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Float64("sample_ratio", telemetryCfg.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Plan store: Postgres unless explicitly run in memory.
	var (
		repo plan.Repository
		db   handler.Pinger
	)
	if getEnvOrDefault("PLAN_STORE", "postgres") == "memory" {
		repo = plan.NewInMemoryRepository()
		log.Warn().Msg("using in-memory plan store - plans are lost on restart")
	} else {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		pg := plan.NewPostgresRepository(pool)
		if err := pg.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize schema")
		}
		repo, db = pg, pool
		log.Info().Str("database", dbConfig.Redacted()).Msg("database connected")
	}

	registry := resilience.NewRegistry()

	// Cost lookups: without an ORS key only train and flight estimates work
	// and road legs stay as retryable placeholders.
	var provider itinerary.CostProvider
	if key := os.Getenv("ORS_API_KEY"); key != "" {
		ors := openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   key,
			BaseURL:  os.Getenv("ORS_BASE_URL"),
			Registry: registry,
			Logger:   log,
		})
		provider = routing.NewService(routing.ServiceConfig{
			Provider: ors,
			Geocoder: routing.NewCachedGeocoder(ors, routing.CachedGeocoderConfig{Logger: log}),
			Meter:    tp.Meter,
			Logger:   log,
		})
		log.Info().Msg("routing service initialized")
	} else {
		provider = routing.NewService(routing.ServiceConfig{Meter: tp.Meter, Logger: log})
		log.Warn().Msg("ORS_API_KEY not set - road legs will not be costed")
	}

	var resolver ticket.Resolver
	if endpoint := os.Getenv("TICKET_RECOGNIZER_URL"); endpoint != "" {
		resolver = ticket.NewHTTPResolver(ticket.HTTPResolverConfig{
			Endpoint: endpoint,
			APIKey:   os.Getenv("TICKET_RECOGNIZER_API_KEY"),
			Registry: registry,
			Logger:   log,
		})
		log.Info().Msg("ticket recognizer initialized")
	} else {
		log.Warn().Msg("ticket recognizer not configured - only structured tickets accepted")
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     getEnvOrDefault("JWT_ISSUER", "https://api.voyaai.app"),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", "voyaai-api"),
	})

	sessions := session.NewManager(session.Config{
		Repository: repo,
		Provider:   provider,
		LeaseTTL:   getEnvDuration("LEASE_TTL", session.DefaultLeaseTTL),
		SaveDelay:  getEnvDuration("AUTOSAVE_DELAY", plan.DefaultSaveDelay),
		Logger:     log,
	})
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.Run(sweepCtx, time.Minute)

	loc := time.UTC
	if name := os.Getenv("CALENDAR_TIMEZONE"); name != "" {
		if loc, err = time.LoadLocation(name); err != nil {
			log.Fatal().Err(err).Str("timezone", name).Msg("invalid calendar timezone")
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Version:          Version,
		BuildTime:        BuildTime,
		Logger:           log,
		ServiceName:      serviceName,
		Metrics:          metrics,
		Tokens:           jwtService,
		RequireTLS:       os.Getenv("REQUIRE_TLS") == "true",
		Sessions:         sessions,
		Repository:       repo,
		Resolver:         resolver,
		CalendarLocation: loc,
		Database:         db,
		Registry:         registry,
	})

	// Ticket recognition can take most of a minute.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Live plans are saved after the last request is served.
	stopSweep()
	if err := sessions.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to save live plans")
	}

	log.Info().Msg("server stopped")
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
