package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRosterEntry(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		full       string
		descriptor []float32
		wantErr    bool
		wantField  string
	}{
		{name: "valid", id: "u1", full: "Ani", descriptor: []float32{0.1, 0.2, 0.3}},
		{name: "no descriptor is kept", id: "u1", full: "Ani", descriptor: nil},
		{name: "missing id", id: "", full: "Ani", wantErr: true, wantField: "id"},
		{name: "missing name", id: "u1", full: "", wantErr: true, wantField: "name"},
		{name: "wrong length", id: "u1", full: "Ani", descriptor: []float32{1, 2}, wantErr: true, wantField: "descriptor"},
		{name: "nan value", id: "u1", full: "Ani", descriptor: []float32{1, float32(math.NaN()), 3}, wantErr: true, wantField: "descriptor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := NewRosterEntry(tt.id, tt.full, tt.descriptor, "", 3)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.id, entry.ID)
				assert.Equal(t, tt.descriptor != nil, entry.HasDescriptor())
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRow))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestGeofenceConfigValidate(t *testing.T) {
	_, err := NewGeofenceConfig(-7, 110, 50)
	require.NoError(t, err)

	_, err = NewGeofenceConfig(-7, 110, 0)
	assert.ErrorIs(t, err, ErrInvalidRow)

	_, err = NewGeofenceConfig(-7, 110, -5)
	assert.ErrorIs(t, err, ErrInvalidRow)

	_, err = NewGeofenceConfig(91, 110, 50)
	assert.ErrorIs(t, err, ErrInvalidRow)

	_, err = NewGeofenceConfig(-7, 181, 50)
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestParseSessionLabel(t *testing.T) {
	l, err := ParseSessionLabel("PAGI")
	require.NoError(t, err)
	assert.Equal(t, SessionMorning, l)

	l, err = ParseSessionLabel(" malam ")
	require.NoError(t, err)
	assert.Equal(t, SessionEvening, l)

	_, err = ParseSessionLabel("siang")
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestLabelAt(t *testing.T) {
	day := time.Date(2024, 8, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, SessionMorning, LabelAt(day, 15))
	assert.Equal(t, SessionMorning, LabelAt(day.Add(14*time.Hour+59*time.Minute), 15))
	assert.Equal(t, SessionEvening, LabelAt(day.Add(15*time.Hour), 15))
	assert.Equal(t, SessionEvening, LabelAt(day.Add(23*time.Hour), 15))
}

func TestCheckInRecordValidate(t *testing.T) {
	rec := CheckInRecord{PersonID: "u1", Label: SessionMorning, Date: "2024-08-17"}
	require.NoError(t, rec.Validate())

	bad := rec
	bad.Date = "17/08/2024"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRow)

	bad = rec
	bad.Label = "sore"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRow)

	bad = rec
	bad.PersonID = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRow)
}

func TestDayStatusHas(t *testing.T) {
	at := time.Now()
	d := DayStatus{Recorded: map[SessionLabel]*time.Time{SessionMorning: &at}}
	assert.True(t, d.Has(SessionMorning))
	assert.False(t, d.Has(SessionEvening))
}
