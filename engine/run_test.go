package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/scene"
)

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  RunConfig
		ok   bool
	}{
		{"valid", RunConfig{TimeStep: 0.1, TotalDuration: 1}, true},
		{"zero duration", RunConfig{TimeStep: 0.1}, true},
		{"zero step", RunConfig{TotalDuration: 1}, false},
		{"negative step", RunConfig{TimeStep: -1, TotalDuration: 1}, false},
		{"nan step", RunConfig{TimeStep: math.NaN(), TotalDuration: 1}, false},
		{"negative duration", RunConfig{TimeStep: 1, TotalDuration: -1}, false},
		{"infinite duration", RunConfig{TimeStep: 1, TotalDuration: math.Inf(1)}, false},
		{"negative cap", RunConfig{TimeStep: 1, TotalDuration: 1, MaxIterations: -1}, false},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if tt.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, model.ErrInvalidArgument) {
			t.Fatalf("%s: err = %v, want ErrInvalidArgument", tt.name, err)
		}
	}
}

func TestRunConfigIterations(t *testing.T) {
	tests := []struct {
		cfg  RunConfig
		want int
	}{
		{RunConfig{TimeStep: 0.1, TotalDuration: 1}, 10},
		{RunConfig{TimeStep: 0.1, TotalDuration: 1.1}, 11},
		{RunConfig{TimeStep: 0.3, TotalDuration: 1}, 4},
		{RunConfig{TimeStep: 0.1, TotalDuration: 100, MaxIterations: 5}, 5},
		{RunConfig{TimeStep: 1, TotalDuration: 3, MaxIterations: 10}, 3},
		{RunConfig{TimeStep: 1, MaxIterations: 10}, 0},
		{RunConfig{TotalDuration: 1}, 0},
	}
	for _, tt := range tests {
		if got := tt.cfg.Iterations(); got != tt.want {
			t.Fatalf("%+v.Iterations() = %d, want %d", tt.cfg, got, tt.want)
		}
	}
}

func TestRunnerStopsAtMaxIterations(t *testing.T) {
	e := loadedEngine(t)
	var hooked []int
	r, err := NewRunner(e, RunConfig{Name: "capped", TimeStep: 0.5, TotalDuration: 60, MaxIterations: 3},
		WithTickHook(func(_ context.Context, tick int, simulated float64) error {
			hooked = append(hooked, tick)
			return nil
		}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Iterations != 3 || stats.Skipped != 0 || stats.SimulatedSeconds != 1.5 {
		t.Fatalf("stats = %+v", stats)
	}
	if e.Ticks() != 3 || e.SimulationTime() != 1.5 {
		t.Fatalf("engine ticks=%d time=%g", e.Ticks(), e.SimulationTime())
	}
	if len(hooked) != 3 || hooked[2] != 3 {
		t.Fatalf("hook ticks = %v", hooked)
	}
	if clock := r.Clock(); clock == nil || clock.Elapsed().Seconds() != 1.5 {
		t.Fatalf("clock elapsed = %v", clock)
	}
}

func TestRunnerCountsSkippedTicks(t *testing.T) {
	e := New()
	if err := e.RegisterScene(scene.New("idle")); err != nil {
		t.Fatalf("RegisterScene: %v", err)
	}
	r, err := NewRunner(e, RunConfig{TimeStep: 1, TotalDuration: 4})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Iterations != 4 || stats.Skipped != 4 || stats.SimulatedSeconds != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRunnerHonoursCancellation(t *testing.T) {
	e := loadedEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	r, err := NewRunner(e, RunConfig{TimeStep: 0.1, TotalDuration: 1000},
		WithTickHook(func(_ context.Context, tick int, _ float64) error {
			if tick == 7 {
				cancel()
			}
			return nil
		}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	stats, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if stats.Iterations != 7 || e.Ticks() != 7 {
		t.Fatalf("iterations=%d engine ticks=%d, want 7", stats.Iterations, e.Ticks())
	}
}

func TestRunnerStopsOnHookError(t *testing.T) {
	e := loadedEngine(t)
	stop := errors.New("report sink closed")
	r, err := NewRunner(e, RunConfig{TimeStep: 1, TotalDuration: 10},
		WithTickHook(func(context.Context, int, float64) error { return stop }))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, stop) {
		t.Fatalf("err = %v, want hook error", err)
	}
}

func TestNewRunnerRejectsInvalidInput(t *testing.T) {
	if _, err := NewRunner(nil, RunConfig{TimeStep: 1}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("nil engine err = %v", err)
	}
	if _, err := NewRunner(New(), RunConfig{}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("zero step err = %v", err)
	}
}

func TestRunnerWithZeroDurationDoesNothing(t *testing.T) {
	e := loadedEngine(t)
	r, err := NewRunner(e, RunConfig{TimeStep: 1, MaxIterations: 5})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	stats, err := r.Run(context.Background())
	if err != nil || stats.Iterations != 0 || e.Ticks() != 0 {
		t.Fatalf("stats=%+v err=%v ticks=%d", stats, err, e.Ticks())
	}
}
