package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/timectrl"
)

// RunConfig bounds one orchestration run. The engine does not own it.
type RunConfig struct {
	Name string
	// TimeStep is the fixed tick length in seconds.
	TimeStep float64
	// TotalDuration is the simulated time to cover, in seconds.
	TotalDuration float64
	// MaxIterations caps the tick count independently of the duration.
	// Zero means no cap.
	MaxIterations int
}

// RunConfigFromDocument converts and validates a run section.
func RunConfigFromDocument(d config.RunDocument) (RunConfig, error) {
	rc := RunConfig{
		Name:          d.Name,
		TimeStep:      d.TimeStep,
		TotalDuration: d.Duration,
		MaxIterations: d.MaxIterations,
	}
	return rc, rc.Validate()
}

// Validate checks the numeric bounds.
func (rc RunConfig) Validate() error {
	switch {
	case !(rc.TimeStep > 0) || math.IsInf(rc.TimeStep, 0):
		return fmt.Errorf("%w: run %q: time_step must be > 0", model.ErrInvalidArgument, rc.Name)
	case !(rc.TotalDuration >= 0) || math.IsInf(rc.TotalDuration, 0):
		return fmt.Errorf("%w: run %q: duration must be finite and >= 0", model.ErrInvalidArgument, rc.Name)
	case rc.MaxIterations < 0:
		return fmt.Errorf("%w: run %q: max_iterations must be >= 0", model.ErrInvalidArgument, rc.Name)
	}
	return nil
}

// Iterations is the number of ticks the run will take: the ticks needed to
// cover TotalDuration, capped by MaxIterations when that is set.
func (rc RunConfig) Iterations() int {
	if !(rc.TimeStep > 0) || !(rc.TotalDuration > 0) {
		return 0
	}
	// The epsilon keeps 1.1/0.1 from rounding up to 12 ticks.
	n := int(math.Ceil(rc.TotalDuration/rc.TimeStep - 1e-9))
	if rc.MaxIterations > 0 && rc.MaxIterations < n {
		n = rc.MaxIterations
	}
	return n
}

// Tick is the time step as a duration.
func (rc RunConfig) Tick() time.Duration {
	return time.Duration(rc.TimeStep * float64(time.Second))
}

// RunStats summarises a finished run.
type RunStats struct {
	Iterations       int
	SimulatedSeconds float64
	// Skipped counts ticks where the engine had no active scene.
	Skipped int
	Wall    time.Duration
}

// TickHook is called after every tick the engine actually stepped.
type TickHook func(ctx context.Context, tick int, simulated float64) error

// Runner drives an Engine for a RunConfig on a timectrl.TimeController.
type Runner struct {
	engine Engine
	cfg    RunConfig
	mode   timectrl.Mode
	log    logging.Logger
	hooks  []TickHook
	clock  *timectrl.TimeController
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMode selects real-time or accelerated pacing (default accelerated).
func WithMode(m timectrl.Mode) RunnerOption {
	return func(r *Runner) { r.mode = m }
}

// WithRunLogger injects a logger; nil keeps the noop logger.
func WithRunLogger(l logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = logging.Subsystem(l, "runner")
		}
	}
}

// WithTickHook adds a callback run after every stepped tick. A hook error
// stops the run.
func WithTickHook(h TickHook) RunnerOption {
	return func(r *Runner) {
		if h != nil {
			r.hooks = append(r.hooks, h)
		}
	}
}

// NewRunner validates cfg and prepares a runner.
func NewRunner(e Engine, cfg RunConfig, opts ...RunnerOption) (*Runner, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil engine", model.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		engine: e,
		cfg:    cfg,
		mode:   timectrl.Accelerated,
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Clock exposes the run's simulation clock. It is nil before Run.
func (r *Runner) Clock() timectrl.SimClock {
	if r.clock == nil {
		return nil
	}
	return r.clock
}

// Run steps the engine until the run's duration or iteration cap is
// reached, or ctx is done. Ticks without an active scene are counted as
// skipped and do not stop the run. Cancellation returns the stats so far
// together with ctx.Err().
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	ctx, _ = logging.EnsureRunID(ctx)
	log := r.log.With(logging.String("run", r.cfg.Name))

	var stats RunStats
	r.clock = timectrl.NewTimeController(time.Time{}, r.cfg.Tick(), r.mode)
	r.clock.AddListener(func(ctx context.Context, tick uint64, _ time.Duration) error {
		err := r.engine.StepSimulation(ctx, r.cfg.TimeStep)
		if errors.Is(err, ErrNoActiveScene) {
			stats.Iterations++
			stats.Skipped++
			return nil
		}
		if err != nil {
			return err
		}
		stats.Iterations++
		stats.SimulatedSeconds += r.cfg.TimeStep
		for _, h := range r.hooks {
			if err := h(ctx, int(tick), stats.SimulatedSeconds); err != nil {
				return err
			}
		}
		return nil
	})

	log.Info(ctx, "run started",
		logging.Float64("time_step", r.cfg.TimeStep),
		logging.Float64("duration", r.cfg.TotalDuration),
		logging.Int("iterations", r.cfg.Iterations()),
		logging.String("mode", r.mode.String()),
	)
	start := time.Now()
	var err error
	if n := r.cfg.Iterations(); n > 0 {
		_, err = r.clock.Run(ctx, 0, uint64(n))
	}
	stats.Wall = time.Since(start)

	fields := []logging.Field{
		logging.Int("iterations", stats.Iterations),
		logging.Int("skipped", stats.Skipped),
		logging.Float64("simulated_s", stats.SimulatedSeconds),
		logging.Duration("wall", stats.Wall),
	}
	if err != nil {
		log.Warn(ctx, "run stopped", append(fields, logging.Err(err))...)
		return stats, err
	}
	log.Info(ctx, "run finished", fields...)
	return stats, nil
}
