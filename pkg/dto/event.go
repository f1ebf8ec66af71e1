package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presensi/internal/models"
)

// CheckInResponse is one attendance record as returned by the API and
// carried on the event stream.
type CheckInResponse struct {
	ID        uuid.UUID `json:"id"`
	PersonID  string    `json:"person_id"`
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	Label     string    `json:"label"`
	PhotoURL  string    `json:"photo_url"`
	Location  string    `json:"location"`
	CreatedAt string    `json:"created_at"`
}

func NewCheckInResponse(rec models.CheckInRecord) CheckInResponse {
	return CheckInResponse{
		ID:        rec.ID,
		PersonID:  rec.PersonID,
		Name:      rec.Name,
		Date:      rec.Date,
		Label:     string(rec.Label),
		PhotoURL:  rec.PhotoURL,
		Location:  rec.Location,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}

type CheckInListResponse struct {
	CheckIns []CheckInResponse `json:"checkins"`
	Total    int               `json:"total"`
}

type CheckInQuery struct {
	Date     string `form:"date"`
	PersonID string `form:"user_id"`
	Label    string `form:"label"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// DayStatusResponse tells whether each session of a day is recorded.
type DayStatusResponse struct {
	PersonID string             `json:"user_id"`
	Date     string             `json:"date"`
	Sessions map[string]*string `json:"sessions"`
	Complete bool               `json:"complete"`
}

func NewDayStatusResponse(s models.DayStatus) DayStatusResponse {
	resp := DayStatusResponse{
		PersonID: s.PersonID,
		Date:     s.Date,
		Sessions: make(map[string]*string, len(models.Labels)),
		Complete: true,
	}
	for _, l := range models.Labels {
		if !s.Has(l) {
			resp.Sessions[string(l)] = nil
			resp.Complete = false
			continue
		}
		ts := s.Recorded[l].Format(time.RFC3339)
		resp.Sessions[string(l)] = &ts
	}
	return resp
}

// WSEvent is a dashboard WebSocket message.
type WSEvent struct {
	Type string          `json:"type"` // checkin
	Data CheckInResponse `json:"data"`
}
