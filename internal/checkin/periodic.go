package checkin

import (
	"context"
	"sync"
	"time"
)

// periodic calls fn every interval until cancelled. fn runs on the task's own
// goroutine and receives the task context, which is done once the task is
// cancelled.
type periodic struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func startPeriodic(interval time.Duration, fn func(ctx context.Context)) *periodic {
	ctx, cancel := context.WithCancel(context.Background())
	p := &periodic{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
	return p
}

// Cancel stops future ticks without waiting. Safe to call from fn.
func (p *periodic) Cancel() {
	p.once.Do(p.cancel)
}

// Stop cancels the task and waits for a running fn to return. Must not be
// called from fn.
func (p *periodic) Stop() {
	p.Cancel()
	<-p.done
}
