package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presensi/internal/models"
)

func TestNewDayStatusResponse(t *testing.T) {
	at := time.Date(2024, 8, 17, 7, 5, 0, 0, time.UTC)
	resp := NewDayStatusResponse(models.DayStatus{
		PersonID: "u1",
		Date:     "2024-08-17",
		Recorded: map[models.SessionLabel]*time.Time{models.SessionMorning: &at},
	})

	assert.False(t, resp.Complete)
	require.NotNil(t, resp.Sessions["pagi"])
	assert.Equal(t, "2024-08-17T07:05:00Z", *resp.Sessions["pagi"])
	assert.Contains(t, resp.Sessions, "malam")
	assert.Nil(t, resp.Sessions["malam"])
}

func TestNewUserResponseHidesDescriptor(t *testing.T) {
	resp := NewUserResponse(models.User{FullName: "Ani", Descriptor: []float32{0.1}})
	assert.True(t, resp.HasFace)

	resp = NewUserResponse(models.User{FullName: "Budi"})
	assert.False(t, resp.HasFace)
}
