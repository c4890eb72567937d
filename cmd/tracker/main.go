package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/OYD-Protocol/shoptrack/internal/config"
	"github.com/OYD-Protocol/shoptrack/internal/enricher"
	"github.com/OYD-Protocol/shoptrack/internal/handler"
	"github.com/OYD-Protocol/shoptrack/internal/identity"
	"github.com/OYD-Protocol/shoptrack/internal/producer"
	"github.com/OYD-Protocol/shoptrack/internal/ratelimit"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/tracker.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().Msg("Starting tracker...")

	kafkaProducer := producer.NewKafkaProducer(cfg.Kafka)
	defer kafkaProducer.Close()
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka producer initialized")

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	directory, err := identity.NewPostgresDirectory(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer directory.Close()
	log.Info().Msg("Caller directory initialized")

	resolver := identity.NewResolver([]byte(cfg.Auth.JWTSecret), directory, rdb)
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.RequestsPerSecond)

	eventEnricher := enricher.New(cfg.GeoIP.DatabasePath)
	defer eventEnricher.Close()

	trackHandler := handler.NewTrackHandler(kafkaProducer, resolver, limiter, eventEnricher)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(handler.CORSMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Post("/v1/track", trackHandler.HandleTrack)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	httpServer.Shutdown(context.Background())
	log.Info().Msg("Shutdown complete")
}
