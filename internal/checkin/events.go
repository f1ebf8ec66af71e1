package checkin

import "github.com/your-org/presensi/internal/models"

type EventType string

const (
	EventState     EventType = "state"
	EventGeofence  EventType = "geofence"
	EventReady     EventType = "ready"
	EventError     EventType = "error"
	EventSubmitted EventType = "submitted"
	EventEnded     EventType = "ended"
)

// Event is a session notification for the client driving the check-in.
type Event struct {
	Type     EventType             `json:"type"`
	State    State                 `json:"state,omitempty"`
	Match    *MatchInfo            `json:"match,omitempty"`
	Geofence *GeofenceStatus       `json:"geofence,omitempty"`
	Code     string                `json:"code,omitempty"`
	Error    string                `json:"error,omitempty"`
	Record   *models.CheckInRecord `json:"record,omitempty"`
}

// MatchInfo is the part of a match result shown to the client.
type MatchInfo struct {
	PersonID  string  `json:"person_id"`
	Name      string  `json:"name"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Distance  float64 `json:"distance"`
}

func matchInfo(res models.MatchResult) *MatchInfo {
	if !res.Found() {
		return nil
	}
	return &MatchInfo{
		PersonID:  res.Entry.ID,
		Name:      res.Entry.Name,
		AvatarURL: res.Entry.AvatarURL,
		Distance:  res.Distance,
	}
}

// GeofenceStatus is the session's cached geofence evaluation. Known is false
// until a position fix has been evaluated.
type GeofenceStatus struct {
	Known          bool             `json:"known"`
	Inside         bool             `json:"inside"`
	DistanceMeters float64          `json:"distance_meters"`
	RadiusMeters   float64          `json:"radius_meters"`
	Position       *models.GeoPoint `json:"position,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// ErrorEvent reports err to the client with its error code.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Code: Code(err), Error: err.Error()}
}
