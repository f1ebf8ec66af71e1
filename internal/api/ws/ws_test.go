package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presensi/internal/checkin"
	"github.com/your-org/presensi/internal/config"
	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/pkg/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOracle struct {
	descriptor []float32
}

func (o stubOracle) WaitReady(context.Context) error { return nil }

func (o stubOracle) Extract(_ context.Context, _ []byte) (models.LiveSample, error) {
	return models.LiveSample{Descriptor: o.descriptor, Timestamp: time.Now()}, nil
}

type stubStore struct {
	mu      sync.Mutex
	roster  []models.RosterEntry
	fence   models.GeofenceConfig
	photos  []string
	records []models.CheckInRecord
}

func (s *stubStore) LoadRoster(context.Context, string) ([]models.RosterEntry, error) {
	return s.roster, nil
}

func (s *stubStore) GetGeofence(context.Context) (models.GeofenceConfig, error) {
	return s.fence, nil
}

func (s *stubStore) UploadPhoto(_ context.Context, key string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = append(s.photos, key)
	return "http://photos/" + key, nil
}

func (s *stubStore) CreateCheckIn(_ context.Context, rec *models.CheckInRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func testCheckInConfig() config.CheckInConfig {
	return config.CheckInConfig{
		MatchThreshold:    0.45,
		TickInterval:      10 * time.Millisecond,
		SettleDelay:       20 * time.Millisecond,
		CameraOpenTimeout: 2 * time.Second,
		LocationTimeout:   2 * time.Second,
		FrameStaleAfter:   time.Second,
		EveningStartHour:  15,
		Timezone:          "UTC",
	}
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	mu   sync.Mutex
}

func dial(t *testing.T, srv *httptest.Server, path string) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) write(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(kind, data)
}

func (c *testClient) sendJSON(v any) {
	data, err := json.Marshal(v)
	require.NoError(c.t, err)
	require.NoError(c.t, c.write(websocket.TextMessage, data))
}

// until reads events until one of type want arrives.
func (c *testClient) until(want checkin.EventType) checkin.Event {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", want)
		var ev checkin.Event
		require.NoError(c.t, json.Unmarshal(data, &ev))
		if ev.Type == want {
			return ev
		}
	}
}

func (c *testClient) streamFrames(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.write(websocket.BinaryMessage, []byte{0xFF, 0xD8, 0xFF, 0xD9}); err != nil {
					return
				}
			}
		}
	}()
}

func checkInServer(store *stubStore, oracle checkin.Oracle) *httptest.Server {
	srv, _ := checkInServerWithHandler(store, oracle)
	return srv
}

func checkInServerWithHandler(store *stubStore, oracle checkin.Oracle) (*httptest.Server, *CheckInHandler) {
	h := NewCheckInHandler(CheckInDeps{
		Config:   testCheckInConfig(),
		Oracle:   oracle,
		Roster:   store,
		Geofence: store,
		Photos:   store,
		Records:  store,
	})
	r := gin.New()
	r.GET("/v1/checkin/ws", h.HandleWS)
	return httptest.NewServer(r), h
}

// serverConn returns the server side of the only open check-in connection.
func serverConn(t *testing.T, h *CheckInHandler) *checkInConn {
	t.Helper()
	var s *checkInConn
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		for c := range h.conns {
			s = c
		}
		return s != nil
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

func openConns(h *CheckInHandler) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func newStore() *stubStore {
	return &stubStore{
		roster: []models.RosterEntry{
			{ID: uuid.NewString(), Name: "Ani", Descriptor: []float32{0, 0, 0}},
		},
		fence: models.GeofenceConfig{Center: models.GeoPoint{Lat: -7.0, Lon: 110.0}, RadiusMeters: 100},
	}
}

func ptr(v float64) *float64 { return &v }

func TestCheckInSessionSubmits(t *testing.T) {
	store := newStore()
	srv := checkInServer(store, stubOracle{descriptor: []float32{0.1, 0, 0}})
	defer srv.Close()

	c := dial(t, srv, "/v1/checkin/ws")
	stop := make(chan struct{})
	defer close(stop)
	c.streamFrames(stop)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgBegin, Label: "pagi"})
	ev := c.until(checkin.EventState)
	assert.Equal(t, checkin.StateScanning, ev.State)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgLocation, Latitude: ptr(-7.0), Longitude: ptr(110.0)})
	ev = c.until(checkin.EventGeofence)
	require.NotNil(t, ev.Geofence)
	assert.True(t, ev.Geofence.Inside)

	ev = c.until(checkin.EventReady)
	require.NotNil(t, ev.Match)
	assert.Equal(t, "Ani", ev.Match.Name)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgSubmit})
	ev = c.until(checkin.EventSubmitted)
	require.NotNil(t, ev.Record)
	assert.Equal(t, models.SessionMorning, ev.Record.Label)
	assert.Equal(t, models.LocationInside, ev.Record.Location)
	c.until(checkin.EventEnded)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.records, 1)
	assert.True(t, strings.HasPrefix(store.photos[0], "abs_"+store.roster[0].ID+"_"))
}

func TestCheckInSubmitRefusedOutside(t *testing.T) {
	store := newStore()
	srv := checkInServer(store, stubOracle{descriptor: []float32{0.1, 0, 0}})
	defer srv.Close()

	c := dial(t, srv, "/v1/checkin/ws")
	stop := make(chan struct{})
	defer close(stop)
	c.streamFrames(stop)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgBegin, Label: "malam"})
	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgLocation, Latitude: ptr(-7.01), Longitude: ptr(110.0)})
	ev := c.until(checkin.EventGeofence)
	assert.False(t, ev.Geofence.Inside)
	c.until(checkin.EventReady)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgSubmit})
	ev = c.until(checkin.EventError)
	assert.Equal(t, "submit_not_allowed", ev.Code)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.records)
	assert.Empty(t, store.photos)
}

func TestCheckInDisconnectEndsSession(t *testing.T) {
	store := newStore()
	srv, h := checkInServerWithHandler(store, stubOracle{descriptor: []float32{0.1, 0, 0}})
	defer srv.Close()

	c := dial(t, srv, "/v1/checkin/ws")
	stop := make(chan struct{})
	c.streamFrames(stop)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgBegin, Label: "pagi"})
	c.until(checkin.EventState)

	s := serverConn(t, h)
	require.True(t, s.ctrl.Status().Active)
	require.True(t, s.camera.Streaming())

	close(stop)
	require.NoError(t, c.conn.Close())

	require.Eventually(t, func() bool {
		return !s.ctrl.Status().Active && !s.camera.Streaming() && openConns(h) == 0
	}, 2*time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.records)
}

func TestCheckInCancelRightAfterBegin(t *testing.T) {
	srv, h := checkInServerWithHandler(newStore(), stubOracle{descriptor: []float32{0.1, 0, 0}})
	defer srv.Close()

	c := dial(t, srv, "/v1/checkin/ws")
	stop := make(chan struct{})
	defer close(stop)
	c.streamFrames(stop)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgBegin, Label: "pagi"})
	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgCancel})

	s := serverConn(t, h)
	require.Eventually(t, func() bool {
		return len(s.cmds) == 0 && !s.ctrl.Status().Active
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, s.ctrl.Status().Active)
	assert.False(t, s.camera.Streaming())
}

func TestCheckInShutdownClosesConnections(t *testing.T) {
	srv, h := checkInServerWithHandler(newStore(), stubOracle{descriptor: []float32{0.1, 0, 0}})
	defer srv.Close()

	c := dial(t, srv, "/v1/checkin/ws")
	stop := make(chan struct{})
	defer close(stop)
	c.streamFrames(stop)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgBegin, Label: "pagi"})
	c.until(checkin.EventState)
	s := serverConn(t, h)

	h.Shutdown()

	require.Eventually(t, func() bool {
		return !s.ctrl.Status().Active && openConns(h) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCheckInCameraDenied(t *testing.T) {
	srv := checkInServer(newStore(), stubOracle{})
	defer srv.Close()

	c := dial(t, srv, "/v1/checkin/ws")
	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgBegin})
	// Let Begin reach the camera before failing it.
	time.Sleep(50 * time.Millisecond)
	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgCameraError, Reason: "NotAllowedError"})

	ev := c.until(checkin.EventError)
	assert.Equal(t, "device_unavailable", ev.Code)
}

func TestCheckInBadMessages(t *testing.T) {
	srv := checkInServer(newStore(), stubOracle{})
	defer srv.Close()

	c := dial(t, srv, "/v1/checkin/ws")

	require.NoError(t, c.write(websocket.TextMessage, []byte("{")))
	assert.Equal(t, codeBadRequest, c.until(checkin.EventError).Code)

	c.sendJSON(dto.CheckInClientMessage{Type: "dance"})
	assert.Equal(t, codeBadRequest, c.until(checkin.EventError).Code)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgLocation, Latitude: ptr(120), Longitude: ptr(0)})
	assert.Equal(t, codeBadRequest, c.until(checkin.EventError).Code)

	c.sendJSON(dto.CheckInClientMessage{Type: dto.MsgRefreshLocation})
	assert.Equal(t, "no_active_session", c.until(checkin.EventError).Code)
}

func TestHubBroadcastFiltersByLabel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/v1/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := dial(t, srv, "/v1/ws?label=pagi")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.BroadcastCheckIn(ctx, dto.CheckInResponse{Name: "Budi", Label: "malam"}))
	require.NoError(t, hub.BroadcastCheckIn(ctx, dto.CheckInResponse{Name: "Ani", Label: "pagi"}))

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(t, err)

	var ev dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "checkin", ev.Type)
	assert.Equal(t, "Ani", ev.Data.Name)

	c.conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
