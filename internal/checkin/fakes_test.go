package checkin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/presensi/internal/models"
)

var (
	descA   = []float32{0.10, 0.20, 0.30, 0.40}
	descFar = []float32{0.90, -0.80, 0.70, -0.60}
	center  = models.GeoPoint{Lat: -7.0, Lon: 110.0}
	// about 200 m north of center
	farAway = models.GeoPoint{Lat: -6.9982, Lon: 110.0}
)

type fakeStream struct {
	mu      sync.Mutex
	frame   []byte
	playing bool
	closes  int
}

func newFakeStream() *fakeStream {
	return &fakeStream{frame: []byte("jpeg"), playing: true}
}

func (s *fakeStream) Frame() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.frame != nil
}

func (s *fakeStream) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && s.closes == 0
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeStream) setPlaying(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = v
}

func (s *fakeStream) closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeCamera struct {
	mu     sync.Mutex
	stream *fakeStream
	err    error
	opens  int
}

func (c *fakeCamera) Open(ctx context.Context) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.err != nil {
		return nil, c.err
	}
	c.stream = newFakeStream()
	return c.stream, nil
}

func (c *fakeCamera) current() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

type fakeOracle struct {
	mu      sync.Mutex
	waitErr error
	extract func(ctx context.Context, frame []byte) (models.LiveSample, error)
	n       atomic.Int32
}

// returning makes the oracle answer every frame with descriptor d.
func returning(d []float32) *fakeOracle {
	o := &fakeOracle{}
	o.set(func(context.Context, []byte) (models.LiveSample, error) {
		return models.LiveSample{Descriptor: d, Timestamp: time.Now()}, nil
	})
	return o
}

func (o *fakeOracle) set(fn func(ctx context.Context, frame []byte) (models.LiveSample, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extract = fn
}

func (o *fakeOracle) WaitReady(ctx context.Context) error {
	return o.waitErr
}

func (o *fakeOracle) Extract(ctx context.Context, frame []byte) (models.LiveSample, error) {
	o.n.Add(1)
	o.mu.Lock()
	fn := o.extract
	o.mu.Unlock()
	return fn(ctx, frame)
}

func (o *fakeOracle) calls() int {
	return int(o.n.Load())
}

type fakeLocator struct {
	mu    sync.Mutex
	point models.GeoPoint
	err   error
}

func (l *fakeLocator) Locate(ctx context.Context) (models.GeoPoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.point, l.err
}

func (l *fakeLocator) set(p models.GeoPoint, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.point, l.err = p, err
}

type fakeRoster struct {
	entries   []models.RosterEntry
	err       error
	requested []string
}

func (r *fakeRoster) LoadRoster(ctx context.Context, personID string) ([]models.RosterEntry, error) {
	r.requested = append(r.requested, personID)
	if r.err != nil {
		return nil, r.err
	}
	if personID == "" {
		return r.entries, nil
	}
	var out []models.RosterEntry
	for _, e := range r.entries {
		if e.ID == personID {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, models.ErrNotFound
	}
	return out, nil
}

type fakeGeofence struct {
	cfg models.GeofenceConfig
	err error
}

func (g *fakeGeofence) GetGeofence(ctx context.Context) (models.GeofenceConfig, error) {
	return g.cfg, g.err
}

type fakePhotos struct {
	mu   sync.Mutex
	err  error
	keys []string
}

func (p *fakePhotos) UploadPhoto(ctx context.Context, key string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.keys = append(p.keys, key)
	return "http://photos.test/logbook-photos/" + key, nil
}

func (p *fakePhotos) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakePhotos) uploads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

type fakeRecords struct {
	mu      sync.Mutex
	err     error
	records []models.CheckInRecord
}

func (r *fakeRecords) CreateCheckIn(ctx context.Context, rec *models.CheckInRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *fakeRecords) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeRecords) written() []models.CheckInRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CheckInRecord(nil), r.records...)
}

type fakeSink struct {
	mu  sync.Mutex
	ids []string
}

func (s *fakeSink) PublishCheckIn(ctx context.Context, rec models.CheckInRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, rec.ID.String())
	return nil
}

func (s *fakeSink) published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) has(t EventType, code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == t && (code == "" || e.Code == code) {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")

// waitFor polls cond until it holds or two seconds pass.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
