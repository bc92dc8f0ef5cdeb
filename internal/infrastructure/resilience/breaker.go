package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen is returned without calling out while the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open trial slot is taken
	ErrTooManyRequests = errors.New("too many requests")
)

// State of a breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Settings tunes a Breaker. Zero fields take defaults in New.
type Settings struct {
	// MaxRequests bounds concurrent trials while half-open and is the number
	// of trial successes needed to close again
	MaxRequests uint32
	// Interval clears closed-state counts periodically
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// ReadyToTrip decides after each closed-state failure whether to open
	ReadyToTrip func(counts Counts) bool
	// IsFailure classifies errors; context cancellation is neutral by default
	IsFailure func(err error) bool
	// OnStateChange observes transitions
	OnStateChange func(name string, from State, to State)
}

func (s Settings) withDefaults() Settings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.Timeout <= 0 {
		s.Timeout = time.Minute
	}
	if s.ReadyToTrip == nil {
		s.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool { return err != nil && !errors.Is(err, context.Canceled) }
	}
	return s
}

// Counts are the outcomes recorded in the current window
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker guards calls to a remote dependency
type Breaker struct {
	name string
	cfg  Settings

	mu     sync.Mutex
	state  State
	counts Counts
	// window is bumped on every reset so late outcomes from an earlier
	// window are ignored
	window   uint64
	deadline time.Time
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	b := &Breaker{name: name, cfg: settings.withDefaults()}
	b.reset(time.Now())
	return b
}

// ForUpdateFeed returns settings for a remote update feed: trip after three
// consecutive failures and try again once timeout has passed.
func ForUpdateFeed(timeout time.Duration, logger *zap.Logger) Settings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Settings{
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current(time.Now())
}

// Counts returns the current window's counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn through b and returns its typed result. A panic in fn is
// recorded as a failure and re-raised.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (result T, err error) {
	if err = ctx.Err(); err != nil {
		return result, err
	}
	done, err := b.allow()
	if err != nil {
		return result, err
	}

	defer func() {
		if p := recover(); p != nil {
			done(errPanic)
			panic(p)
		}
	}()
	result, err = fn(ctx)
	done(err)
	return result, err
}

var errPanic = errors.New("panic")

// allow admits one call and returns the callback that records its outcome
func (b *Breaker) allow() (func(error), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current(time.Now()) {
	case StateOpen:
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if b.counts.Requests >= b.cfg.MaxRequests {
			return nil, ErrTooManyRequests
		}
	}
	b.counts.Requests++

	window := b.window
	return func(err error) { b.settle(window, err) }, nil
}

func (b *Breaker) settle(window uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.current(now)
	if window != b.window {
		return
	}

	switch {
	case err == nil:
		b.counts.success()
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.MaxRequests {
			b.moveTo(StateClosed, now)
		}
	case b.cfg.IsFailure(err):
		b.counts.failure()
		if state == StateHalfOpen || b.cfg.ReadyToTrip(b.counts) {
			b.moveTo(StateOpen, now)
		}
	}
}

// current applies deadline-driven changes and reports the state
func (b *Breaker) current(now time.Time) State {
	if b.state != StateHalfOpen && now.After(b.deadline) {
		if b.state == StateOpen {
			b.moveTo(StateHalfOpen, now)
		} else {
			b.reset(now)
		}
	}
	return b.state
}

func (b *Breaker) moveTo(next State, now time.Time) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.reset(now)

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, prev, next)
	}
}

// reset starts a new window for the current state
func (b *Breaker) reset(now time.Time) {
	b.window++
	b.counts = Counts{}
	// half-open has no deadline; trials decide
	b.deadline = now.Add(b.cfg.Interval)
	if b.state == StateOpen {
		b.deadline = now.Add(b.cfg.Timeout)
	}
}
