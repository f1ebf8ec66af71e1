package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/observability"
	"github.com/your-org/presensi/internal/vision"
)

// State is the verification state shown to the user.
type State string

const (
	StateScanning State = "scanning"
	StateUnknown  State = "unknown"
	StateFound    State = "found"
)

type LoopConfig struct {
	Interval    time.Duration
	SettleDelay time.Duration
	Threshold   float64
}

// LoopHooks are called with the loop's lock held: they must return quickly
// and must not call back into the Loop.
type LoopHooks struct {
	// OnState fires on every state change.
	OnState func(State, models.MatchResult)
	// OnCommit fires once, SettleDelay after the state became found.
	OnCommit func(models.MatchResult)
}

// Loop samples frames from a stream on a fixed interval, matches them
// against a roster and stops once a face is recognised.
//
// Each Start begins a new generation. Extractions run concurrently with the
// ticker; their results are applied only if the generation that requested
// them is still the active one, so nothing a stopped loop started can change
// state or reach a hook after Stop returns.
type Loop struct {
	oracle Oracle
	cfg    LoopConfig

	mu       sync.Mutex
	gen      uint64
	active   bool
	inflight bool
	state    State
	match    models.MatchResult
	stream   Stream
	roster   []models.RosterEntry
	hooks    LoopHooks
	task     *periodic
	settle   *time.Timer
}

func NewLoop(oracle Oracle, cfg LoopConfig) *Loop {
	if cfg.Threshold <= 0 {
		cfg.Threshold = vision.DefaultMatchThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 800 * time.Millisecond
	}
	return &Loop{oracle: oracle, cfg: cfg, state: StateScanning}
}

// Start resets the loop to scanning and begins ticking. A running loop is
// stopped first.
func (l *Loop) Start(stream Stream, roster []models.RosterEntry, hooks LoopHooks) {
	l.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	gen := l.gen
	l.active = true
	l.inflight = false
	l.state = StateScanning
	l.match = models.MatchResult{}
	l.stream = stream
	l.roster = roster
	l.hooks = hooks
	l.task = startPeriodic(l.cfg.Interval, func(ctx context.Context) { l.tick(ctx, gen) })
}

// Stop halts ticking and discards any pending extraction or commit. It is
// idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.active = false
	l.gen++
	task := l.task
	l.task = nil
	if l.settle != nil {
		l.settle.Stop()
		l.settle = nil
	}
	l.stream = nil
	l.roster = nil
	l.hooks = LoopHooks{}
	l.mu.Unlock()

	if task != nil {
		task.Stop()
	}
}

// Snapshot returns the current state and the last match.
func (l *Loop) Snapshot() (State, models.MatchResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.match
}

func (l *Loop) current(gen uint64) bool {
	return l.active && l.gen == gen
}

func (l *Loop) tick(ctx context.Context, gen uint64) {
	l.mu.Lock()
	if !l.current(gen) {
		l.mu.Unlock()
		return
	}
	skip := ""
	switch {
	case l.state == StateFound:
		skip = "skipped_found"
	case l.inflight:
		skip = "skipped_busy"
	case !l.stream.Playing():
		skip = "skipped_not_playing"
	case countMatchable(l.roster) == 0:
		skip = "skipped_empty_roster"
	}
	var frame []byte
	if skip == "" {
		var ok bool
		if frame, ok = l.stream.Frame(); !ok {
			skip = "skipped_no_frame"
		}
	}
	if skip != "" {
		l.mu.Unlock()
		observability.VerificationTicks.WithLabelValues(skip).Inc()
		return
	}
	l.inflight = true
	roster := l.roster
	l.mu.Unlock()

	go l.extract(ctx, gen, frame, roster)
}

func (l *Loop) extract(ctx context.Context, gen uint64, frame []byte, roster []models.RosterEntry) {
	if ctx.Err() != nil {
		l.mu.Lock()
		if l.current(gen) {
			l.inflight = false
		}
		l.mu.Unlock()
		observability.VerificationTicks.WithLabelValues("discarded").Inc()
		return
	}
	sample, err := l.oracle.Extract(ctx, frame)

	var res models.MatchResult
	if err == nil && sample.HasFace() {
		res = vision.Match(sample.Descriptor, roster, l.cfg.Threshold)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.current(gen) {
		observability.VerificationTicks.WithLabelValues("discarded").Inc()
		return
	}
	l.inflight = false

	switch {
	case err != nil:
		observability.VerificationTicks.WithLabelValues("error").Inc()
		slog.Warn("verification tick failed", "error", fmt.Errorf("%w: %w", ErrExtractionFailed, err))
	case !sample.HasFace():
		observability.VerificationTicks.WithLabelValues("no_face").Inc()
	case res.Found():
		observability.VerificationTicks.WithLabelValues("found").Inc()
		l.setState(StateFound, res)
		l.task.Cancel()
		l.settle = time.AfterFunc(l.cfg.SettleDelay, func() { l.commit(gen) })
		slog.Info("face verified", "person_id", res.Entry.ID, "distance", res.Distance)
	default:
		observability.VerificationTicks.WithLabelValues("unknown").Inc()
		l.setState(StateUnknown, res)
	}
}

func (l *Loop) setState(s State, res models.MatchResult) {
	changed := s != l.state
	l.state = s
	l.match = res
	if changed && l.hooks.OnState != nil {
		l.hooks.OnState(s, res)
	}
}

func (l *Loop) commit(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.current(gen) || l.state != StateFound {
		return
	}
	l.settle = nil
	if l.hooks.OnCommit != nil {
		l.hooks.OnCommit(l.match)
	}
}
