// Package timectrl drives simulation time in fixed ticks.
package timectrl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrInvalidTick is returned when the controller is run with a
// non-positive tick.
var ErrInvalidTick = errors.New("timectrl: tick must be positive")

// SimClock gives read access to simulation time so components can depend
// on a clock abstraction rather than the controller.
type SimClock interface {
	// Now is StartTime plus the simulated time elapsed.
	Now() time.Time
	// Elapsed is the simulated time since the last reset.
	Elapsed() time.Duration
	// After returns a channel that receives the simulation time once d
	// more simulated time has passed.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController paces ticks.
type Mode int

const (
	// RealTime waits one wall-clock tick between steps.
	RealTime Mode = iota
	// Accelerated steps as fast as the listeners allow.
	Accelerated
)

func (m Mode) String() string {
	if m == RealTime {
		return "realtime"
	}
	return "accelerated"
}

// ParseMode accepts "realtime" or "accelerated".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "real-time", "real_time":
		return RealTime, nil
	case "accelerated", "":
		return Accelerated, nil
	default:
		return Accelerated, fmt.Errorf("timectrl: unknown mode %q", s)
	}
}

// Listener is invoked once per tick with the tick index (starting at 1)
// and the tick length. Returning an error stops Run.
type Listener func(ctx context.Context, tick uint64, dt time.Duration) error

type timer struct {
	at time.Duration
	ch chan time.Time
}

// TimeController advances simulation time by Tick and notifies listeners.
// It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	elapsed time.Duration
	ticks   uint64

	listeners []Listener
	timers    []timer
}

var _ SimClock = (*TimeController)(nil)

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime: start,
		Tick:      tick,
		Mode:      mode,
	}
}

// Now implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.StartTime.Add(tc.elapsed)
}

// Elapsed implements SimClock.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.elapsed
}

// Ticks is the number of ticks completed since the last reset.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// SetTime moves the clock so that Now returns t. Pending timers that are
// now due fire immediately.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.elapsed = t.Sub(tc.StartTime)
	due := tc.dueLocked()
	tc.mu.Unlock()
	fire(due)
}

// After implements SimClock. Timers fire as ticks advance simulation time;
// a non-positive d fires on the next tick.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	tc.timers = append(tc.timers, timer{at: tc.elapsed + max(d, 0), ch: ch})
	tc.mu.Unlock()
	return ch
}

// AddListener registers a callback invoked on every tick, in registration
// order.
func (tc *TimeController) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Reset rewinds the clock to StartTime and drops pending timers.
// Listeners stay registered.
func (tc *TimeController) Reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.elapsed = 0
	tc.ticks = 0
	tc.timers = nil
}

// Run ticks until duration of simulated time has passed, maxTicks ticks
// have run, ctx is done, or a listener fails. Zero duration or maxTicks
// means no limit on that axis; with both zero Run continues until ctx is
// done. It returns the number of ticks it ran.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration, maxTicks uint64) (uint64, error) {
	if tc.Tick <= 0 {
		return 0, ErrInvalidTick
	}

	var ticker *time.Ticker
	if tc.Mode == RealTime {
		ticker = time.NewTicker(tc.Tick)
		defer ticker.Stop()
	}

	var ran uint64
	var simulated time.Duration
	for {
		if duration > 0 && simulated >= duration {
			return ran, nil
		}
		if maxTicks > 0 && ran >= maxTicks {
			return ran, nil
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ran, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return ran, err
		}

		tick, err := tc.step(ctx)
		if err != nil {
			return ran, fmt.Errorf("tick %d: %w", tick, err)
		}
		ran++
		simulated += tc.Tick
	}
}

// Start runs the controller in a separate goroutine and returns a channel
// that is closed when it finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tc.Run(ctx, duration, 0)
	}()
	return done
}

// step notifies listeners of the next tick and then advances the clock, so
// listeners observe the time at the start of the tick they integrate.
func (tc *TimeController) step(ctx context.Context) (uint64, error) {
	tc.mu.RLock()
	tick := tc.ticks + 1
	listeners := tc.listeners
	tc.mu.RUnlock()

	for _, fn := range listeners {
		if err := fn(ctx, tick, tc.Tick); err != nil {
			return tick, err
		}
	}

	tc.mu.Lock()
	tc.ticks = tick
	tc.elapsed += tc.Tick
	due := tc.dueLocked()
	tc.mu.Unlock()
	fire(due)
	return tick, nil
}

func (tc *TimeController) dueLocked() []timedFire {
	if len(tc.timers) == 0 {
		return nil
	}
	now := tc.StartTime.Add(tc.elapsed)
	var due []timedFire
	pending := tc.timers[:0]
	for _, t := range tc.timers {
		if t.at <= tc.elapsed {
			due = append(due, timedFire{ch: t.ch, at: now})
			continue
		}
		pending = append(pending, t)
	}
	tc.timers = pending
	return due
}

type timedFire struct {
	ch chan time.Time
	at time.Time
}

// fire delivers outside the lock. Each channel is buffered and receives
// exactly once.
func fire(due []timedFire) {
	for _, d := range due {
		d.ch <- d.at
	}
}
