package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presensi/internal/config"
	"github.com/your-org/presensi/internal/geo"
	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/observability"
)

// Deps are the collaborators a Controller drives. Events may be nil.
type Deps struct {
	Camera   Camera
	Locator  Locator
	Oracle   Oracle
	Roster   RosterSource
	Geofence GeofenceSource
	Photos   PhotoStore
	Records  RecordStore
	Events   EventSink
}

// BeginOptions select what a session checks in.
type BeginOptions struct {
	// Label is the attendance slot. Empty picks it from the clock.
	Label string
	// PersonID restricts the roster to one enrolled user. Empty matches
	// against everyone.
	PersonID string
	// AutoSubmit submits as soon as the match has settled and the device is
	// inside the geofence.
	AutoSubmit bool
}

// Status is a point-in-time view of the controller.
type Status struct {
	Active   bool                `json:"active"`
	Label    models.SessionLabel `json:"label,omitempty"`
	State    State               `json:"state,omitempty"`
	Match    *MatchInfo          `json:"match,omitempty"`
	Geofence GeofenceStatus      `json:"geofence"`
	Roster   int                 `json:"roster"`
}

type session struct {
	gen        uint64
	label      models.SessionLabel
	personID   string
	autoSubmit bool
	roster     *RosterCache
	fence      models.GeofenceConfig
	stream     Stream
	geo        GeofenceStatus
	committed  bool
	locCancel  context.CancelFunc
	startedAt  time.Time
}

// Controller runs one check-in session at a time: it owns the camera stream,
// the roster and the verification loop, and gates Submit on both a verified
// face and a position inside the geofence.
type Controller struct {
	cfg     config.CheckInConfig
	deps    Deps
	loop    *Loop
	onEvent func(Event)
	now     func() time.Time

	// serialises Begin, Submit and End
	opMu sync.Mutex

	mu   sync.Mutex
	gen  uint64
	sess *session
}

// NewController builds a controller. onEvent receives session notifications;
// it is called from internal goroutines, sometimes with locks held, and must
// not block or call back into the Controller.
func NewController(cfg config.CheckInConfig, deps Deps, onEvent func(Event)) *Controller {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		loop: NewLoop(deps.Oracle, LoopConfig{
			Interval:    cfg.TickInterval,
			SettleDelay: cfg.SettleDelay,
			Threshold:   cfg.MatchThreshold,
		}),
		onEvent: onEvent,
		now:     time.Now,
	}
}

// Begin starts a session, ending any active one first. On error no session
// is left running and the camera is released.
func (c *Controller) Begin(ctx context.Context, opts BeginOptions) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.endLocked()
	if err := ctx.Err(); err != nil {
		return err
	}

	label, err := c.resolveLabel(opts.Label)
	if err != nil {
		return err
	}

	if err := c.deps.Oracle.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observability.SessionFailures.WithLabelValues("oracle").Inc()
		return fmt.Errorf("%w: %w", ErrOracleLoadFailed, err)
	}

	roster := &RosterCache{}
	if err := roster.Load(ctx, c.deps.Roster, opts.PersonID); err != nil {
		if opts.PersonID != "" && unknownPerson(err) {
			observability.SessionFailures.WithLabelValues("not_enrolled").Inc()
			return fmt.Errorf("%w: %q: %w", ErrPersonNotEnrolled, opts.PersonID, err)
		}
		return err
	}
	if opts.PersonID != "" && roster.Matchable() == 0 {
		observability.SessionFailures.WithLabelValues("not_enrolled").Inc()
		return fmt.Errorf("%w: %q", ErrPersonNotEnrolled, opts.PersonID)
	}

	fence, err := c.deps.Geofence.GetGeofence(ctx)
	if err != nil {
		return fmt.Errorf("load geofence: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, c.cfg.CameraOpenTimeout)
	stream, err := c.deps.Camera.Open(openCtx)
	cancel()
	if err != nil {
		observability.SessionFailures.WithLabelValues("device").Inc()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	locCtx, locCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.gen++
	sess := &session{
		gen:        c.gen,
		label:      label,
		personID:   opts.PersonID,
		autoSubmit: opts.AutoSubmit,
		roster:     roster,
		fence:      fence,
		stream:     stream,
		geo:        GeofenceStatus{RadiusMeters: fence.RadiusMeters},
		locCancel:  locCancel,
		startedAt:  c.now(),
	}
	c.sess = sess
	c.mu.Unlock()

	observability.ActiveSessions.Inc()
	slog.Info("check-in session started",
		"label", label, "person_id", opts.PersonID, "roster", roster.Matchable(),
		"radius_m", fence.RadiusMeters)

	c.onEvent(Event{Type: EventState, State: StateScanning})
	go c.locate(locCtx, sess.gen)

	c.loop.Start(stream, roster.Entries(), LoopHooks{
		OnState: func(s State, res models.MatchResult) {
			c.onEvent(Event{Type: EventState, State: s, Match: matchInfo(res)})
		},
		OnCommit: func(res models.MatchResult) {
			c.onEvent(Event{Type: EventReady, State: StateFound, Match: matchInfo(res)})
			go c.committed(sess.gen)
		},
	})
	return nil
}

// unknownPerson reports whether a scoped roster load failed because the
// person id is malformed or not enrolled.
func unknownPerson(err error) bool {
	var verr *models.ValidationError
	if errors.As(err, &verr) && verr.Field == "person_id" {
		return true
	}
	return errors.Is(err, models.ErrNotFound)
}

func (c *Controller) resolveLabel(raw string) (models.SessionLabel, error) {
	if raw == "" {
		return models.LabelAt(c.now().In(c.cfg.Location()), c.cfg.EveningStartHour), nil
	}
	label, err := models.ParseSessionLabel(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, raw)
	}
	return label, nil
}

// locate performs one position fix and caches its evaluation for session gen.
func (c *Controller) locate(ctx context.Context, gen uint64) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LocationTimeout)
	defer cancel()

	point, err := c.deps.Locator.Locate(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sess
	if sess == nil || sess.gen != gen {
		return
	}
	if err == nil {
		err = point.Validate()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		err = fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
		observability.SessionFailures.WithLabelValues("location").Inc()
		slog.Warn("location unavailable", "error", err)
		sess.geo = GeofenceStatus{RadiusMeters: sess.fence.RadiusMeters, Error: err.Error()}
		c.onEvent(ErrorEvent(err))
		return
	}

	res := geo.Evaluate(point, sess.fence)
	p := point
	sess.geo = GeofenceStatus{
		Known:          true,
		Inside:         res.Inside,
		DistanceMeters: res.DistanceMeters,
		RadiusMeters:   sess.fence.RadiusMeters,
		Position:       &p,
	}
	status := sess.geo
	c.onEvent(Event{Type: EventGeofence, Geofence: &status})
	slog.Debug("geofence evaluated", "inside", res.Inside, "distance_m", res.DistanceMeters)

	if sess.committed && sess.autoSubmit && res.Inside {
		go c.autoSubmit(gen)
	}
}

// RefreshLocation re-runs the position fix for the active session. The
// previous evaluation stays in effect until the new one arrives.
func (c *Controller) RefreshLocation() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sess
	if sess == nil {
		return ErrNoActiveSession
	}
	sess.locCancel()
	ctx, cancel := context.WithCancel(context.Background())
	sess.locCancel = cancel
	go c.locate(ctx, sess.gen)
	return nil
}

func (c *Controller) committed(gen uint64) {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.gen != gen {
		c.mu.Unlock()
		return
	}
	sess.committed = true
	auto := sess.autoSubmit && sess.geo.Known && sess.geo.Inside
	c.mu.Unlock()

	if auto {
		c.autoSubmit(gen)
	}
}

func (c *Controller) autoSubmit(gen uint64) {
	c.mu.Lock()
	same := c.sess != nil && c.sess.gen == gen
	c.mu.Unlock()
	if !same {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.submit(ctx, gen); err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return
		}
		slog.Warn("auto submit failed", "error", err, "code", Code(err))
		c.onEvent(ErrorEvent(err))
	}
}

// Submit captures the current frame, uploads it and writes the check-in
// record, then ends the session. It is refused unless the face is verified
// and the position is inside the geofence. A failed submit leaves the
// session as it was so it can be retried.
func (c *Controller) Submit(ctx context.Context) (*models.CheckInRecord, error) {
	return c.submit(ctx, 0)
}

// submit runs Submit for session gen, or for whichever session is active
// when gen is 0.
func (c *Controller) submit(ctx context.Context, gen uint64) (*models.CheckInRecord, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	sess := c.sess
	if sess == nil || (gen != 0 && sess.gen != gen) {
		c.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	fix := sess.geo
	c.mu.Unlock()

	state, match := c.loop.Snapshot()
	if state != StateFound || !match.Found() || !fix.Known || !fix.Inside {
		observability.SubmitFailures.WithLabelValues("not_allowed").Inc()
		return nil, ErrSubmitNotAllowed
	}

	frame, ok := sess.stream.Frame()
	if !ok {
		observability.SubmitFailures.WithLabelValues("no_frame").Inc()
		return nil, fmt.Errorf("%w: no frame to capture", ErrDeviceUnavailable)
	}

	now := c.now().In(c.cfg.Location())
	key := fmt.Sprintf("abs_%s_%d.jpg", match.Entry.ID, now.UnixMilli())

	url, err := c.deps.Photos.UploadPhoto(ctx, key, frame)
	if err != nil {
		observability.SubmitFailures.WithLabelValues("upload").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	rec := &models.CheckInRecord{
		ID:        uuid.New(),
		PersonID:  match.Entry.ID,
		Name:      match.Entry.Name,
		Date:      now.Format(models.DateLayout),
		Label:     sess.label,
		PhotoURL:  url,
		PhotoKey:  key,
		Location:  models.LocationInside,
		CreatedAt: now,
	}
	if err := c.deps.Records.CreateCheckIn(ctx, rec); err != nil {
		observability.SubmitFailures.WithLabelValues("record").Inc()
		slog.Warn("photo stored without a check-in record", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRecordWriteFailed, err)
	}

	observability.CheckIns.WithLabelValues(string(rec.Label)).Inc()
	slog.Info("check-in recorded",
		"id", rec.ID, "person_id", rec.PersonID, "label", rec.Label, "date", rec.Date,
		"distance", match.Distance, "distance_m", fix.DistanceMeters)

	if c.deps.Events != nil {
		if err := c.deps.Events.PublishCheckIn(ctx, *rec); err != nil {
			slog.Warn("publish check-in event", "error", err, "id", rec.ID)
		}
	}

	c.onEvent(Event{Type: EventSubmitted, Record: rec})
	c.endLocked()
	return rec, nil
}

// End tears the active session down: the loop stops, the camera is released,
// location acquisition is cancelled and the roster is discarded. Calling it
// without an active session is a no-op.
func (c *Controller) End() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.endLocked()
}

func (c *Controller) endLocked() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}

	c.loop.Stop()
	sess.locCancel()
	if err := sess.stream.Close(); err != nil {
		slog.Warn("release camera", "error", err)
	}
	sess.roster.Clear()

	observability.ActiveSessions.Dec()
	slog.Info("check-in session ended",
		"label", sess.label, "person_id", sess.personID, "duration", time.Since(sess.startedAt))
	c.onEvent(Event{Type: EventEnded})
}

// Status returns the current session view.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sess
	if sess == nil {
		return Status{}
	}
	state, match := c.loop.Snapshot()
	return Status{
		Active:   true,
		Label:    sess.label,
		State:    state,
		Match:    matchInfo(match),
		Geofence: sess.geo,
		Roster:   sess.roster.Matchable(),
	}
}
