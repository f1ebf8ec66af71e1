package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/presensi/internal/geo"
	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/storage"
)

var geofenceCmd = &cobra.Command{
	Use:   "geofence",
	Short: "Check whether the station coordinate is inside the configured geofence",
	Long: `Evaluate the station coordinate (or --lat/--lon) against the geofence stored
in the database and print the distance to its center.

Examples:
  kiosk geofence
  kiosk geofence --lat -7.7956 --lon 110.3695`,
	Args: cobra.NoArgs,
	RunE: runGeofence,
}

func init() {
	rootCmd.AddCommand(geofenceCmd)
	geofenceCmd.Flags().Float64("lat", 0, "latitude to check (default: kiosk.latitude)")
	geofenceCmd.Flags().Float64("lon", 0, "longitude to check (default: kiosk.longitude)")
}

func runGeofence(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	point := models.GeoPoint{Lat: cfg.Kiosk.Latitude, Lon: cfg.Kiosk.Longitude}
	if cmd.Flags().Changed("lat") {
		point.Lat, _ = cmd.Flags().GetFloat64("lat")
	}
	if cmd.Flags().Changed("lon") {
		point.Lon, _ = cmd.Flags().GetFloat64("lon")
	}
	if err := point.Validate(); err != nil {
		return err
	}

	db, err := storage.NewPostgresStore(cfg.Database, cfg.Vision.EmbeddingDim)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	fence, err := db.GetGeofence(ctx)
	if err != nil {
		return fmt.Errorf("load geofence: %w", err)
	}

	res := geo.Evaluate(point, fence)
	verdict := "OUTSIDE"
	if res.Inside {
		verdict = "INSIDE"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %.1f m from center (radius %.1f m)\n",
		verdict, res.DistanceMeters, fence.RadiusMeters)
	return nil
}
