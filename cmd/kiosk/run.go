package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/your-org/presensi/internal/checkin"
	"github.com/your-org/presensi/internal/device"
	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/queue"
	"github.com/your-org/presensi/internal/storage"
	"github.com/your-org/presensi/internal/vision"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run check-in sessions back to back",
	Long: `Run opens the local camera and starts a check-in session. Each session ends
when a record is written or after --session-timeout, then the next one starts.

Examples:
  kiosk run
  kiosk run --label pagi --session-timeout 1m`,
	Args: cobra.NoArgs,
	RunE: runKiosk,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("label", "", "session label (pagi or malam); empty picks it from the clock")
	runCmd.Flags().Duration("session-timeout", 2*time.Minute, "end a session that has not submitted after this long")
	runCmd.Flags().Duration("cooldown", 3*time.Second, "pause between sessions")
}

func runKiosk(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	label, _ := cmd.Flags().GetString("label")
	sessionTimeout, _ := cmd.Flags().GetDuration("session-timeout")
	cooldown, _ := cmd.Flags().GetDuration("cooldown")

	station := models.GeoPoint{Lat: cfg.Kiosk.Latitude, Lon: cfg.Kiosk.Longitude}
	if err := station.Validate(); err != nil {
		return fmt.Errorf("kiosk coordinate: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	oracle := vision.NewOracle(cfg.Vision)
	defer vision.DestroyRuntime()
	defer oracle.Close()

	db, err := storage.NewPostgresStore(cfg.Database, cfg.Vision.EmbeddingDim)
	if err != nil {
		return err
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return err
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer producer.Close()
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	if cfg.Kiosk.MetricsPort > 0 {
		go serveMetrics(ctx, cfg.Kiosk.MetricsPort)
	}

	events := make(chan checkin.Event, 64)
	ctrl := checkin.NewController(cfg.CheckIn, checkin.Deps{
		Camera:   device.NewFFmpegCamera(cfg.Camera, cfg.CheckIn.FrameStaleAfter),
		Locator:  device.StaticLocator{Point: station},
		Oracle:   oracle,
		Roster:   db,
		Geofence: db,
		Photos:   minioStore,
		Records:  db,
		Events:   producer,
	}, func(ev checkin.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer ctrl.End()

	slog.Info("kiosk started", "device", cfg.Camera.Device, "lat", station.Lat, "lon", station.Lon)

	for ctx.Err() == nil {
		err := ctrl.Begin(ctx, checkin.BeginOptions{Label: label, AutoSubmit: true})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("begin session", "error", err, "code", checkin.Code(err))
			if errors.Is(err, checkin.ErrOracleLoadFailed) {
				return err
			}
			sleep(ctx, 5*time.Second)
			continue
		}

		if rec := awaitSession(ctx, events, sessionTimeout); rec != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-6s %s\n", rec.CreatedAt.Format("15:04:05"), rec.Label, rec.Name)
		}
		ctrl.End()
		drain(events)
		sleep(ctx, cooldown)
	}

	slog.Info("kiosk stopped")
	return nil
}

// awaitSession logs session events until the session ends, its auto submit
// fails, it times out or ctx is done. It returns the written record, if any.
func awaitSession(ctx context.Context, events <-chan checkin.Event, timeout time.Duration) *models.CheckInRecord {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var rec *models.CheckInRecord
	for {
		select {
		case <-ctx.Done():
			return rec
		case <-timer.C:
			slog.Info("session timed out", "after", timeout)
			return rec
		case ev := <-events:
			switch ev.Type {
			case checkin.EventState:
				if ev.Match != nil {
					slog.Debug("match", "state", ev.State, "name", ev.Match.Name, "distance", ev.Match.Distance)
				} else {
					slog.Debug("state", "state", ev.State)
				}
			case checkin.EventGeofence:
				if ev.Geofence != nil && !ev.Geofence.Inside {
					slog.Warn("station is outside the geofence",
						"distance_m", ev.Geofence.DistanceMeters, "radius_m", ev.Geofence.RadiusMeters)
				}
			case checkin.EventReady:
				slog.Info("face verified", "name", ev.Match.Name)
			case checkin.EventError:
				slog.Warn("session error", "code", ev.Code, "error", ev.Error)
				if endsSession(ev.Code) {
					return rec
				}
			case checkin.EventSubmitted:
				rec = ev.Record
			case checkin.EventEnded:
				return rec
			}
		}
	}
}

// endsSession reports whether a failed auto submit should end the session.
// The next session retries an upload or write failure from a fresh match.
func endsSession(code string) bool {
	switch code {
	case "already_checked_in", "upload_failed", "record_write_failed":
		return true
	}
	return false
}

func drain(events <-chan checkin.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server error", "error", err)
	}
}
