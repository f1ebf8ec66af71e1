package checkin

import (
	"context"

	"github.com/your-org/presensi/internal/models"
)

// Stream is an open camera. Close must be safe to call more than once.
type Stream interface {
	// Frame returns the most recent encoded frame.
	Frame() ([]byte, bool)
	// Playing reports whether frames are currently arriving.
	Playing() bool
	Close() error
}

// Camera acquires a Stream. Open should honour ctx's deadline.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Locator performs one position fix.
type Locator interface {
	Locate(ctx context.Context) (models.GeoPoint, error)
}

// Oracle extracts face descriptors from frames.
type Oracle interface {
	WaitReady(ctx context.Context) error
	Extract(ctx context.Context, frame []byte) (models.LiveSample, error)
}

// RosterSource loads enrolled identities. An empty personID means everyone;
// an unknown personID is models.ErrNotFound.
type RosterSource interface {
	LoadRoster(ctx context.Context, personID string) ([]models.RosterEntry, error)
}

type GeofenceSource interface {
	GetGeofence(ctx context.Context) (models.GeofenceConfig, error)
}

// PhotoStore stores a captured frame and returns its durable address.
type PhotoStore interface {
	UploadPhoto(ctx context.Context, key string, data []byte) (string, error)
}

type RecordStore interface {
	CreateCheckIn(ctx context.Context, rec *models.CheckInRecord) error
}

// EventSink is told about every written record. Failures are logged only.
type EventSink interface {
	PublishCheckIn(ctx context.Context, rec models.CheckInRecord) error
}
