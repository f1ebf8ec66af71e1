package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/pkg/dto"
)

type fakeMsg struct {
	data                []byte
	acked, naked, termd bool
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return "checkins.pagi" }
func (m *fakeMsg) Ack() error      { m.acked = true; return nil }
func (m *fakeMsg) Nak() error      { m.naked = true; return nil }
func (m *fakeMsg) Term() error     { m.termd = true; return nil }

func payload(t *testing.T) []byte {
	t.Helper()
	rec := models.CheckInRecord{
		ID:        uuid.New(),
		PersonID:  "u1",
		Name:      "Ani",
		Date:      "2024-08-17",
		Label:     models.SessionMorning,
		Location:  models.LocationInside,
		CreatedAt: time.Date(2024, 8, 17, 7, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(dto.NewCheckInResponse(rec))
	require.NoError(t, err)
	return data
}

func TestCheckInSubject(t *testing.T) {
	assert.Equal(t, "checkins.pagi", CheckInSubject(models.SessionMorning))
	assert.Equal(t, "checkins.malam", CheckInSubject(models.SessionEvening))
}

func TestCheckInStreamConfig(t *testing.T) {
	cfg := checkInStreamConfig()
	assert.Equal(t, CheckInsStreamName, cfg.Name)
	assert.Equal(t, []string{"checkins.>"}, cfg.Subjects)
	assert.Equal(t, jetstream.InterestPolicy, cfg.Retention)
	assert.NotZero(t, cfg.Duplicates)
}

func TestDecodeCheckIn(t *testing.T) {
	ev, err := decodeCheckIn(payload(t))
	require.NoError(t, err)
	assert.Equal(t, "u1", ev.PersonID)
	assert.Equal(t, "pagi", ev.Label)
	assert.Equal(t, "2024-08-17T07:00:00Z", ev.CreatedAt)

	_, err = decodeCheckIn([]byte("{"))
	assert.Error(t, err)

	_, err = decodeCheckIn([]byte(`{"name":"x"}`))
	assert.Error(t, err)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("ack on success", func(t *testing.T) {
		msg := &fakeMsg{data: payload(t)}
		var got dto.CheckInResponse
		dispatch(ctx, msg, func(_ context.Context, ev dto.CheckInResponse) error {
			got = ev
			return nil
		})
		assert.True(t, msg.acked)
		assert.Equal(t, "Ani", got.Name)
	})

	t.Run("nak on handler error", func(t *testing.T) {
		msg := &fakeMsg{data: payload(t)}
		dispatch(ctx, msg, func(context.Context, dto.CheckInResponse) error {
			return errors.New("boom")
		})
		assert.True(t, msg.naked)
		assert.False(t, msg.acked)
	})

	t.Run("term on malformed payload", func(t *testing.T) {
		msg := &fakeMsg{data: []byte("not json")}
		called := false
		dispatch(ctx, msg, func(context.Context, dto.CheckInResponse) error {
			called = true
			return nil
		})
		assert.True(t, msg.termd)
		assert.False(t, called)
	})
}
