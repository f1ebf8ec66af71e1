package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	CheckIn  CheckInConfig  `yaml:"checkin"`
	Camera   CameraConfig   `yaml:"camera"`
	Kiosk    KioskConfig    `yaml:"kiosk"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	AvatarBucket string `yaml:"avatar_bucket"`
	UseSSL       bool   `yaml:"use_ssl"`
	// PublicURL is the externally reachable base used to build photo addresses.
	PublicURL string `yaml:"public_url"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectorModel      string  `yaml:"detector_model"`
	EmbedderModel      string  `yaml:"embedder_model"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
	// RuntimeLib is the onnxruntime shared library; empty picks the platform default.
	RuntimeLib string `yaml:"runtime_lib"`
	// Mirror flips frames horizontally before inference (front cameras).
	Mirror bool `yaml:"mirror"`
}

type CheckInConfig struct {
	MatchThreshold    float64       `yaml:"match_threshold"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	CameraOpenTimeout time.Duration `yaml:"camera_open_timeout"`
	LocationTimeout   time.Duration `yaml:"location_timeout"`
	FrameStaleAfter   time.Duration `yaml:"frame_stale_after"`
	EveningStartHour  int           `yaml:"evening_start_hour"`
	Timezone          string        `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC.
func (c CheckInConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CameraConfig struct {
	Device      string `yaml:"device"`
	InputFormat string `yaml:"input_format"`
	FPS         int    `yaml:"fps"`
	Width       int    `yaml:"width"`
}

type KioskConfig struct {
	Latitude    float64 `yaml:"latitude"`
	Longitude   float64 `yaml:"longitude"`
	MetricsPort int     `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the check-in core cannot run with.
func (c *Config) Validate() error {
	if c.CheckIn.MatchThreshold <= 0 {
		return fmt.Errorf("checkin.match_threshold must be > 0")
	}
	if c.CheckIn.TickInterval <= 0 {
		return fmt.Errorf("checkin.tick_interval must be > 0")
	}
	if c.CheckIn.EveningStartHour < 0 || c.CheckIn.EveningStartHour > 23 {
		return fmt.Errorf("checkin.evening_start_hour must be within 0..23")
	}
	if c.Vision.EmbeddingDim <= 0 {
		return fmt.Errorf("vision.embedding_dim must be > 0")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "logbook-photos"
	}
	if cfg.MinIO.AvatarBucket == "" {
		cfg.MinIO.AvatarBucket = "avatars"
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "w600k_r50.onnx"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.CheckIn.MatchThreshold == 0 {
		cfg.CheckIn.MatchThreshold = 0.45
	}
	if cfg.CheckIn.TickInterval == 0 {
		cfg.CheckIn.TickInterval = 800 * time.Millisecond
	}
	if cfg.CheckIn.SettleDelay == 0 {
		cfg.CheckIn.SettleDelay = 800 * time.Millisecond
	}
	if cfg.CheckIn.CameraOpenTimeout == 0 {
		cfg.CheckIn.CameraOpenTimeout = 10 * time.Second
	}
	if cfg.CheckIn.LocationTimeout == 0 {
		cfg.CheckIn.LocationTimeout = 15 * time.Second
	}
	if cfg.CheckIn.FrameStaleAfter == 0 {
		cfg.CheckIn.FrameStaleAfter = 3 * time.Second
	}
	if cfg.CheckIn.EveningStartHour == 0 {
		cfg.CheckIn.EveningStartHour = 15
	}
	if cfg.CheckIn.Timezone == "" {
		cfg.CheckIn.Timezone = "Asia/Jakarta"
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.InputFormat == "" {
		cfg.Camera.InputFormat = "v4l2"
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 2
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Kiosk.MetricsPort == 0 {
		cfg.Kiosk.MetricsPort = 8082
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KKN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KKN_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("KKN_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("KKN_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("KKN_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("KKN_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("KKN_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("KKN_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("KKN_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("KKN_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("KKN_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("KKN_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("KKN_MINIO_PUBLIC_URL"); v != "" {
		cfg.MinIO.PublicURL = v
	}
	if v := os.Getenv("KKN_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("KKN_ONNXRUNTIME_LIB"); v != "" {
		cfg.Vision.RuntimeLib = v
	}
	if v := os.Getenv("KKN_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CheckIn.MatchThreshold = f
		}
	}
	if v := os.Getenv("KKN_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CheckIn.TickInterval = d
		}
	}
	if v := os.Getenv("KKN_TIMEZONE"); v != "" {
		cfg.CheckIn.Timezone = v
	}
	if v := os.Getenv("KKN_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("KKN_KIOSK_LATITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Kiosk.Latitude = f
		}
	}
	if v := os.Getenv("KKN_KIOSK_LONGITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Kiosk.Longitude = f
		}
	}
	if v := os.Getenv("KKN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
