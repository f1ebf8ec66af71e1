package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/presensi/internal/api"
	"github.com/your-org/presensi/internal/api/handlers"
	"github.com/your-org/presensi/internal/api/ws"
	"github.com/your-org/presensi/internal/config"
	"github.com/your-org/presensi/internal/observability"
	"github.com/your-org/presensi/internal/queue"
	"github.com/your-org/presensi/internal/storage"
	"github.com/your-org/presensi/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting presensi API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Face models load in the background; check-ins wait for them.
	oracle := vision.NewOracle(cfg.Vision)
	defer vision.DestroyRuntime()
	defer oracle.Close()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database, cfg.Vision.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBuckets(ctx); err != nil {
		slog.Warn("ensure minio buckets", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Dashboard hub, fed by every check-in on the stream (kiosks included)
	hub := ws.NewHub()
	go hub.Run(ctx)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create check-in consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.ConsumeCheckIns(ctx, "api-dashboard", hub.BroadcastCheckIn); err != nil {
		slog.Warn("start check-in consumer", "error", err)
	}

	checkInH := ws.NewCheckInHandler(ws.CheckInDeps{
		Config:   cfg.CheckIn,
		Oracle:   oracle,
		Roster:   db,
		Geofence: db,
		Photos:   minioStore,
		Records:  db,
		Events:   producer,
	})

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		Location:   cfg.CheckIn.Location(),
		Users:      db,
		Avatars:    minioStore,
		Faces:      oracle,
		Geofence:   db,
		Attendance: db,
		Photos:     minioStore,
		Checks: []handlers.Check{
			{Name: "postgres", Fn: db.Ping},
			{Name: "minio", Fn: minioStore.Ping},
			{Name: "nats", Fn: func(context.Context) error { return producer.Ping() }},
			{Name: "vision", Fn: func(context.Context) error {
				if !oracle.Ready() {
					return errors.New("face models not loaded")
				}
				return nil
			}},
		},
		Hub:     hub,
		CheckIn: checkInH,
	})

	// Start HTTP server. WriteTimeout stays zero: check-in sockets are long-lived.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	checkInH.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
