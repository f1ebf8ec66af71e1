package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/presensi/internal/api/handlers"
	"github.com/your-org/presensi/internal/api/ws"
	"github.com/your-org/presensi/internal/auth"
)

type RouterConfig struct {
	APIKey string
	// Location is the zone attendance dates are taken in.
	Location *time.Location

	Users      handlers.UserStore
	Avatars    handlers.AvatarStore
	Faces      handlers.FaceDescriber
	Geofence   handlers.GeofenceStore
	Attendance handlers.AttendanceStore
	Photos     handlers.PhotoSource
	Checks     []handlers.Check

	Hub     *ws.Hub
	CheckIn *ws.CheckInHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSockets
	v1.GET("/ws", cfg.Hub.HandleWS)
	v1.GET("/checkin/ws", cfg.CheckIn.HandleWS)

	// Users & enrollment
	userH := handlers.NewUserHandler(cfg.Users, cfg.Avatars, cfg.Faces)
	v1.POST("/users", userH.Create)
	v1.GET("/users", userH.List)
	v1.GET("/users/:id", userH.Get)
	v1.PUT("/users/:id/face", userH.UpdateFace)
	v1.DELETE("/users/:id", userH.Delete)
	v1.POST("/auth/login", userH.Login)

	// Geofence
	geoH := handlers.NewGeofenceHandler(cfg.Geofence)
	v1.GET("/geofence", geoH.Get)
	v1.PUT("/geofence", geoH.Put)

	// Attendance
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	attH := handlers.NewAttendanceHandler(cfg.Attendance, cfg.Photos, loc)
	v1.GET("/attendance", attH.List)
	v1.GET("/attendance/today/:userId", attH.Today)
	v1.GET("/attendance/:id/photo", attH.Photo)

	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AddAllowHeaders("X-API-Key")
	return cfg
}
