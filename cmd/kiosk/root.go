package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/your-org/presensi/internal/config"
	"github.com/your-org/presensi/internal/observability"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Fixed check-in station for KKN attendance",
	Long: `kiosk runs face-verified check-ins at a fixed station. Frames come from a
local camera through ffmpeg, the position is the station's configured
coordinate, and a record is written as soon as a face is verified inside
the geofence.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
}

// loadConfig reads the config and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
