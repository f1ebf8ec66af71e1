package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionLabel names the attendance slot of a check-in.
type SessionLabel string

const (
	SessionMorning SessionLabel = "pagi"
	SessionEvening SessionLabel = "malam"
)

// Labels lists every session label in display order.
var Labels = []SessionLabel{SessionMorning, SessionEvening}

// ParseSessionLabel accepts a label in any case.
func ParseSessionLabel(s string) (SessionLabel, error) {
	switch SessionLabel(strings.ToLower(strings.TrimSpace(s))) {
	case SessionMorning:
		return SessionMorning, nil
	case SessionEvening:
		return SessionEvening, nil
	default:
		return "", invalid("check-in", "label", "must be pagi or malam")
	}
}

// LabelAt returns the session open at t: morning before eveningHour, evening from it.
func LabelAt(t time.Time, eveningHour int) SessionLabel {
	if t.Hour() < eveningHour {
		return SessionMorning
	}
	return SessionEvening
}

const (
	DateLayout = "2006-01-02"

	LocationInside = "Dalam Radius"
)

// ParseCheckInDate parses a calendar date column.
func ParseCheckInDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalid("check-in", "date", "is not YYYY-MM-DD")
	}
	return t, nil
}

// CheckInRecord is one persisted attendance entry.
type CheckInRecord struct {
	ID        uuid.UUID    `json:"id"`
	PersonID  string       `json:"person_id"`
	Name      string       `json:"name"`
	Date      string       `json:"date"`
	Label     SessionLabel `json:"label"`
	PhotoURL  string       `json:"photo_url"`
	PhotoKey  string       `json:"photo_key"`
	Location  string       `json:"location"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate checks the required fields of a record read back from storage.
func (r CheckInRecord) Validate() error {
	if r.PersonID == "" {
		return invalid("check-in", "person_id", "is empty")
	}
	if _, err := ParseSessionLabel(string(r.Label)); err != nil {
		return err
	}
	if _, err := ParseCheckInDate(r.Date); err != nil {
		return err
	}
	return nil
}

// DayStatus summarises one person's attendance for a date.
type DayStatus struct {
	PersonID string                      `json:"person_id"`
	Date     string                      `json:"date"`
	Recorded map[SessionLabel]*time.Time `json:"recorded"`
}

// Has reports whether the label was recorded.
func (d DayStatus) Has(label SessionLabel) bool {
	return d.Recorded[label] != nil
}
