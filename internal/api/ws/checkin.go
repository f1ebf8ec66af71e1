package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/presensi/internal/checkin"
	"github.com/your-org/presensi/internal/config"
	"github.com/your-org/presensi/internal/device"
	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/observability"
	"github.com/your-org/presensi/pkg/dto"
)

const (
	maxFrameBytes   = 4 << 20
	writeWait       = 10 * time.Second
	pendingCommands = 8

	codeBadRequest = "bad_request"
)

// CheckInDeps are the shared services every check-in connection uses.
// Events may be nil.
type CheckInDeps struct {
	Config   config.CheckInConfig
	Oracle   checkin.Oracle
	Roster   checkin.RosterSource
	Geofence checkin.GeofenceSource
	Photos   checkin.PhotoStore
	Records  checkin.RecordStore
	Events   checkin.EventSink
}

// CheckInHandler serves the check-in session protocol. Each connection
// gets its own controller fed by the frames and position fixes the client
// pushes.
type CheckInHandler struct {
	deps CheckInDeps

	mu    sync.Mutex
	conns map[*checkInConn]struct{}
}

func NewCheckInHandler(deps CheckInDeps) *CheckInHandler {
	return &CheckInHandler{deps: deps, conns: make(map[*checkInConn]struct{})}
}

// Shutdown closes every check-in connection, which ends its session and
// releases its camera. http.Server.Shutdown does not close hijacked
// connections.
func (h *CheckInHandler) Shutdown() {
	h.mu.Lock()
	conns := make([]*checkInConn, 0, len(h.conns))
	streaming := 0
	for s := range h.conns {
		conns = append(conns, s)
		if s.camera.Streaming() {
			streaming++
		}
	}
	h.mu.Unlock()

	slog.Info("closing check-in connections", "connections", len(conns), "streaming", streaming)
	for _, s := range conns {
		s.conn.Close()
	}
}

func (h *CheckInHandler) track(s *checkInConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[s] = struct{}{}
}

func (h *CheckInHandler) untrack(s *checkInConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, s)
}

// checkInConn is one client connection and the session it drives.
// Session commands run one at a time, in the order they were received, on
// the connection's command worker.
type checkInConn struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	cmds    chan func()
	camera  *device.PushCamera
	locator *device.PushLocator
	ctrl    *checkin.Controller

	// cancels a Begin still waiting for the oracle or the camera
	beginMu     sync.Mutex
	beginCancel context.CancelFunc
}

// HandleWS upgrades the request and runs the session protocol until the
// client disconnects. The session is ended on every exit path.
func (h *CheckInHandler) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	observability.WSConnections.Inc()
	defer observability.WSConnections.Dec()

	s := h.newConn(conn)
	h.track(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		close(s.done)
		s.ctrl.End()
		conn.Close()
		h.untrack(s)
	}()

	go s.writePump()
	go s.runCommands()
	s.readPump(ctx)
}

func (h *CheckInHandler) newConn(conn *websocket.Conn) *checkInConn {
	s := &checkInConn{
		conn:    conn,
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
		cmds:    make(chan func(), pendingCommands),
		camera:  device.NewPushCamera(h.deps.Config.FrameStaleAfter),
		locator: device.NewPushLocator(),
	}
	s.ctrl = checkin.NewController(h.deps.Config, checkin.Deps{
		Camera:   s.camera,
		Locator:  s.locator,
		Oracle:   h.deps.Oracle,
		Roster:   h.deps.Roster,
		Geofence: h.deps.Geofence,
		Photos:   h.deps.Photos,
		Records:  h.deps.Records,
		Events:   h.deps.Events,
	}, s.emit)
	return s
}

// emit queues ev for the client. It never blocks: the controller may call
// it with locks held.
func (s *checkInConn) emit(ev checkin.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal check-in event", "error", err)
		return
	}
	select {
	case <-s.done:
	case s.send <- data:
	default:
		slog.Warn("check-in client too slow, event dropped", "type", ev.Type)
	}
}

func (s *checkInConn) emitError(code string, msg string) {
	s.emit(checkin.Event{Type: checkin.EventError, Code: code, Error: msg})
}

func (s *checkInConn) writePump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// runCommands executes queued session commands until the connection closes.
func (s *checkInConn) runCommands() {
	for {
		select {
		case <-s.done:
			return
		case cmd := <-s.cmds:
			select {
			case <-s.done:
				return
			default:
			}
			cmd()
		}
	}
}

// enqueue queues cmd behind the commands already received. It never blocks
// the read loop, which must keep delivering frames to a pending Begin.
func (s *checkInConn) enqueue(cmd func()) {
	select {
	case s.cmds <- cmd:
	default:
		s.emitError(codeBadRequest, "too many pending commands")
	}
}

func (s *checkInConn) setBeginCancel(cancel context.CancelFunc) {
	s.beginMu.Lock()
	defer s.beginMu.Unlock()
	s.beginCancel = cancel
}

func (s *checkInConn) abortBegin() {
	s.beginMu.Lock()
	defer s.beginMu.Unlock()
	if s.beginCancel != nil {
		s.beginCancel()
		s.beginCancel = nil
	}
}

func (s *checkInConn) readPump(ctx context.Context) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("check-in client gone", "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			s.camera.Push(data)
		case websocket.TextMessage:
			s.handleText(ctx, data)
		}
	}
}

func (s *checkInConn) handleText(ctx context.Context, data []byte) {
	var msg dto.CheckInClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.emitError(codeBadRequest, "malformed message")
		return
	}

	switch msg.Type {
	case dto.MsgBegin:
		opts := checkin.BeginOptions{Label: msg.Label, PersonID: msg.PersonID}
		beginCtx, cancel := context.WithCancel(ctx)
		s.enqueue(func() {
			defer cancel()
			s.setBeginCancel(cancel)
			defer s.setBeginCancel(nil)
			if err := s.ctrl.Begin(beginCtx, opts); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				slog.Warn("begin check-in failed", "error", err)
				s.emit(checkin.ErrorEvent(err))
			}
		})

	case dto.MsgLocation:
		if msg.Latitude == nil || msg.Longitude == nil {
			s.emitError(codeBadRequest, "latitude and longitude are required")
			return
		}
		p := models.GeoPoint{Lat: *msg.Latitude, Lon: *msg.Longitude}
		if err := p.Validate(); err != nil {
			s.emitError(codeBadRequest, err.Error())
			return
		}
		s.locator.Provide(p)

	case dto.MsgLocationError:
		s.locator.Fail(reasonOr(msg.Reason, "location denied"))

	case dto.MsgCameraError:
		s.camera.Fail(reasonOr(msg.Reason, "camera denied"))

	case dto.MsgRefreshLocation:
		s.enqueue(func() {
			s.locator.Reset()
			if err := s.ctrl.RefreshLocation(); err != nil {
				s.emit(checkin.ErrorEvent(err))
			}
		})

	case dto.MsgSubmit:
		s.enqueue(func() {
			if _, err := s.ctrl.Submit(ctx); err != nil {
				slog.Warn("submit check-in failed", "error", err)
				s.emit(checkin.ErrorEvent(err))
			}
		})

	case dto.MsgCancel:
		s.abortBegin()
		s.enqueue(s.ctrl.End)

	default:
		s.emitError(codeBadRequest, "unknown message type")
	}
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
