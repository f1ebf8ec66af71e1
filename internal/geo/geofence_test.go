package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presensi/internal/models"
)

var center = models.GeoPoint{Lat: -7.0000, Lon: 110.0000}

// northOf returns the point meters due north of p.
func northOf(p models.GeoPoint, meters float64) models.GeoPoint {
	return models.GeoPoint{Lat: p.Lat + meters/EarthRadiusMeters*180/math.Pi, Lon: p.Lon}
}

func TestDistanceIdenticalPoints(t *testing.T) {
	assert.Equal(t, 0.0, Distance(center, center))
}

func TestDistanceSymmetry(t *testing.T) {
	points := []models.GeoPoint{
		center,
		{Lat: -6.2, Lon: 106.816666},
		{Lat: 51.5007, Lon: -0.1246},
		{Lat: 40.6892, Lon: -74.0445},
		{Lat: 0, Lon: 179.9},
		{Lat: 0, Lon: -179.9},
	}
	for _, a := range points {
		for _, b := range points {
			assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9, "%v <-> %v", a, b)
		}
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// Big Ben to Statue of Liberty, roughly 5574.8 km.
	d := Distance(models.GeoPoint{Lat: 51.5007, Lon: -0.1246}, models.GeoPoint{Lat: 40.6892, Lon: -74.0445})
	assert.InDelta(t, 5574.8e3, d, 5e3)
}

func TestEvaluateAtCenter(t *testing.T) {
	for _, radius := range []float64{0.001, 1, 50, 10000} {
		res := Evaluate(center, models.GeofenceConfig{Center: center, RadiusMeters: radius})
		assert.True(t, res.Inside, "radius %v", radius)
		assert.InDelta(t, 0, res.DistanceMeters, 1e-9)
	}
}

func TestEvaluateBoundaryIsInclusive(t *testing.T) {
	p := northOf(center, 50)
	d := Distance(p, center)

	res := Evaluate(p, models.GeofenceConfig{Center: center, RadiusMeters: d})
	assert.True(t, res.Inside)
	assert.Equal(t, d, res.DistanceMeters)

	res = Evaluate(p, models.GeofenceConfig{Center: center, RadiusMeters: math.Nextafter(d, 0)})
	assert.False(t, res.Inside)
}

func TestEvaluateOutside(t *testing.T) {
	p := northOf(center, 200)

	res := Evaluate(p, models.GeofenceConfig{Center: center, RadiusMeters: 50})
	require.False(t, res.Inside)
	assert.InDelta(t, 200, res.DistanceMeters, 10)
}
