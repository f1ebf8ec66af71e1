package dto

// Client messages on the check-in WebSocket. Binary messages carry camera
// frames and are not described here.
const (
	MsgBegin           = "begin"
	MsgLocation        = "location"
	MsgLocationError   = "location_error"
	MsgCameraError     = "camera_error"
	MsgRefreshLocation = "refresh_location"
	MsgSubmit          = "submit"
	MsgCancel          = "cancel"
)

// CheckInClientMessage is a text message sent by the check-in client.
type CheckInClientMessage struct {
	Type      string   `json:"type"`
	Label     string   `json:"label,omitempty"`
	PersonID  string   `json:"user_id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}
