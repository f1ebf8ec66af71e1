// Package geo decides whether a position lies inside the configured check-in area.
package geo

import (
	"math"

	"github.com/your-org/presensi/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Result is the outcome of one geofence evaluation.
type Result struct {
	Inside         bool    `json:"inside"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b models.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	h = math.Min(1, h)

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Evaluate reports whether current lies within cfg. The boundary is inclusive.
func Evaluate(current models.GeoPoint, cfg models.GeofenceConfig) Result {
	d := Distance(current, cfg.Center)
	return Result{Inside: d <= cfg.RadiusMeters, DistanceMeters: d}
}
