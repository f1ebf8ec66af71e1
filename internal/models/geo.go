package models

import (
	"math"
	"time"
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate checks the coordinate ranges.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return invalid("geo point", "latitude", "is out of range")
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return invalid("geo point", "longitude", "is out of range")
	}
	return nil
}

// GeofenceConfig is the circular area a check-in must be made from.
type GeofenceConfig struct {
	ID           int64     `json:"id,omitempty"`
	Center       GeoPoint  `json:"center"`
	RadiusMeters float64   `json:"radius_meters"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Validate enforces a valid center and radius > 0.
func (g GeofenceConfig) Validate() error {
	if err := g.Center.Validate(); err != nil {
		return err
	}
	if math.IsNaN(g.RadiusMeters) || g.RadiusMeters <= 0 {
		return invalid("geofence", "radius_meters", "must be > 0")
	}
	return nil
}

// NewGeofenceConfig validates a radius_settings row.
func NewGeofenceConfig(lat, lon, radius float64) (GeofenceConfig, error) {
	g := GeofenceConfig{Center: GeoPoint{Lat: lat, Lon: lon}, RadiusMeters: radius}
	if err := g.Validate(); err != nil {
		return GeofenceConfig{}, err
	}
	return g, nil
}
