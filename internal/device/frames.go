// Package device provides the camera and location sources a check-in session
// runs against: frames pushed by a browser client, a local camera read
// through ffmpeg, and pushed or fixed positions.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNoFrames is returned when a camera produced no frame before the
	// open deadline.
	ErrNoFrames = errors.New("no frames from camera")
	// ErrStreamClosed is returned when a stream is closed while opening.
	ErrStreamClosed = errors.New("camera stream closed")
)

// FrameBuffer keeps the latest frame of a live camera. It is playing while
// frames keep arriving within the staleness window.
type FrameBuffer struct {
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.Mutex
	frame  []byte
	at     time.Time
	err    error
	closed bool

	// closed on the first frame, on Fail and on Close
	settled     chan struct{}
	settledOnce sync.Once
}

func NewFrameBuffer(staleAfter time.Duration) *FrameBuffer {
	return &FrameBuffer{
		staleAfter: staleAfter,
		now:        time.Now,
		settled:    make(chan struct{}),
	}
}

// Push stores frame as the current one. Frames pushed after Close are dropped.
func (b *FrameBuffer) Push(frame []byte) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.frame = frame
	b.at = b.now()
	b.mu.Unlock()

	b.settle()
}

// Fail marks the camera as unusable. A pending WaitFirst returns err.
func (b *FrameBuffer) Fail(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()

	b.settle()
}

func (b *FrameBuffer) settle() {
	b.settledOnce.Do(func() { close(b.settled) })
}

// WaitFirst blocks until the first frame arrives, the camera fails or ctx
// ends.
func (b *FrameBuffer) WaitFirst(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNoFrames, ctx.Err())
	case <-b.settled:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.err != nil:
		return b.err
	case b.closed:
		return ErrStreamClosed
	case b.frame == nil:
		return ErrNoFrames
	}
	return nil
}

// Frame returns the latest frame.
func (b *FrameBuffer) Frame() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.frame == nil {
		return nil, false
	}
	return b.frame, true
}

// Playing reports whether a fresh frame is available.
func (b *FrameBuffer) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.err != nil || b.frame == nil {
		return false
	}
	return b.staleAfter <= 0 || b.now().Sub(b.at) <= b.staleAfter
}

// Close drops the buffered frame. Safe to call more than once.
func (b *FrameBuffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.frame = nil
	b.mu.Unlock()

	b.settle()
	return nil
}
