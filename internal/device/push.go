package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/your-org/presensi/internal/checkin"
	"github.com/your-org/presensi/internal/models"
)

// PushCamera is a camera whose frames are delivered by a remote client, one
// encoded image per Push.
type PushCamera struct {
	staleAfter time.Duration

	mu      sync.Mutex
	current *pushStream
}

func NewPushCamera(staleAfter time.Duration) *PushCamera {
	return &PushCamera{staleAfter: staleAfter}
}

// Open starts a new stream and waits for its first frame.
func (c *PushCamera) Open(ctx context.Context) (checkin.Stream, error) {
	s := &pushStream{FrameBuffer: NewFrameBuffer(c.staleAfter), owner: c}

	c.mu.Lock()
	if c.current != nil {
		_ = c.current.FrameBuffer.Close()
	}
	c.current = s
	c.mu.Unlock()

	if err := s.WaitFirst(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Push delivers a frame to the open stream. It is dropped when none is open.
func (c *PushCamera) Push(frame []byte) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.Push(frame)
	}
}

// Streaming reports whether a stream is open.
func (c *PushCamera) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Fail reports that the client could not acquire its camera.
func (c *PushCamera) Fail(reason string) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.Fail(errors.New(reason))
	}
}

type pushStream struct {
	*FrameBuffer
	owner *PushCamera
}

func (s *pushStream) Close() error {
	s.owner.mu.Lock()
	if s.owner.current == s {
		s.owner.current = nil
	}
	s.owner.mu.Unlock()
	return s.FrameBuffer.Close()
}

type fix struct {
	point models.GeoPoint
	err   error
}

// PushLocator answers Locate with positions delivered by a remote client.
// The latest delivered position is kept until it is consumed.
type PushLocator struct {
	fixes chan fix
}

func NewPushLocator() *PushLocator {
	return &PushLocator{fixes: make(chan fix, 1)}
}

// Provide delivers a position, replacing one not yet consumed.
func (l *PushLocator) Provide(p models.GeoPoint) {
	l.offer(fix{point: p})
}

// Fail delivers a failed position request.
func (l *PushLocator) Fail(reason string) {
	l.offer(fix{err: errors.New(reason)})
}

// Reset drops a position not yet consumed.
func (l *PushLocator) Reset() {
	select {
	case <-l.fixes:
	default:
	}
}

func (l *PushLocator) offer(f fix) {
	for {
		select {
		case l.fixes <- f:
			return
		default:
		}
		select {
		case <-l.fixes:
		default:
		}
	}
}

// Locate waits for the next position.
func (l *PushLocator) Locate(ctx context.Context) (models.GeoPoint, error) {
	select {
	case <-ctx.Done():
		return models.GeoPoint{}, ctx.Err()
	case f := <-l.fixes:
		return f.point, f.err
	}
}

// StaticLocator always reports the same position, for fixed kiosks.
type StaticLocator struct {
	Point models.GeoPoint
}

func (l StaticLocator) Locate(ctx context.Context) (models.GeoPoint, error) {
	if err := ctx.Err(); err != nil {
		return models.GeoPoint{}, err
	}
	return l.Point, nil
}
