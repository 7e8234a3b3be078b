// Package engine owns the scene registry, selects the active scene and
// advances simulation time through it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/core"
	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/scene"
	"github.com/signalsfoundry/rf-propagation-sim/systems"
)

const tracerName = "github.com/signalsfoundry/rf-propagation-sim/engine"

// ErrNoActiveScene is returned by StepSimulation when no scene is active.
// Nothing is mutated when it is returned.
var ErrNoActiveScene = errors.New("no active scene")

// Engine is the top-level orchestrator.
type Engine interface {
	// LoadConfiguration applies an engine document. It is all-or-nothing
	// and idempotent.
	LoadConfiguration(ctx context.Context, sourceID string) error
	// RegisterScene adds s to the registry without activating it.
	RegisterScene(s scene.Scene) error
	// SetActiveScene selects a registered scene.
	SetActiveScene(s scene.Scene) error
	// ActiveScene returns nil when no scene is active.
	ActiveScene() scene.Scene
	// RegisteredScenes returns the registry in registration order.
	RegisteredScenes() []scene.Scene
	// StepSimulation advances the active scene by dt seconds.
	StepSimulation(ctx context.Context, dt float64) error
	// Reset clears transient state of every registered scene. The
	// registry and the active selection are kept.
	Reset()
}

// MetricsRecorder receives engine-level measurements.
type MetricsRecorder interface {
	ObserveStep(scene string, wall time.Duration, simulationSeconds float64)
	IncSkippedSteps()
	SetSceneObjects(scene string, objects int)
	ObserveConfigurationLoad(err error)
}

// RFEngine is the default Engine. Its methods serialise on an internal
// mutex; scenes themselves are only touched while it is held.
type RFEngine struct {
	base    logging.Logger
	log     logging.Logger
	tracer  trace.Tracer
	metrics MetricsRecorder
	loader  config.Loader
	systems *systems.Registry
	links   systems.LinkMetricsRecorder

	mu       sync.RWMutex
	scenes   []scene.Scene
	active   scene.Scene
	channels map[string]*core.RFChannel
	// pending holds channels staged by an in-flight LoadConfiguration so
	// systems built during staging can resolve them.
	pending map[string]*core.RFChannel
	run     RunConfig
	hasRun  bool
	simTime float64
	ticks   uint64
}

// Option configures an RFEngine.
type Option func(*RFEngine)

// WithLogger injects a logger; nil keeps the noop logger.
func WithLogger(l logging.Logger) Option {
	return func(e *RFEngine) {
		if l != nil {
			e.base = l
		}
	}
}

// WithMetrics reports steps and loads to m.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *RFEngine) { e.metrics = m }
}

// WithLinkRecorder is handed to systems built from configuration.
func WithLinkRecorder(r systems.LinkMetricsRecorder) Option {
	return func(e *RFEngine) { e.links = r }
}

// WithLoader sets how source identifiers are resolved.
func WithLoader(l config.Loader) Option {
	return func(e *RFEngine) {
		if l != nil {
			e.loader = l
		}
	}
}

// WithSystemRegistry replaces the registry used to build systems declared
// in scene documents.
func WithSystemRegistry(r *systems.Registry) Option {
	return func(e *RFEngine) {
		if r != nil {
			e.systems = r
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *RFEngine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// New constructs an engine with an empty registry.
func New(opts ...Option) *RFEngine {
	e := &RFEngine{
		base:     logging.Noop(),
		loader:   config.SourceLoader{},
		systems:  systems.NewRegistry(),
		channels: make(map[string]*core.RFChannel),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.Subsystem(e.base, "engine")
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

var _ Engine = (*RFEngine)(nil)

// RegisterScene implements Engine. Nil scenes, a scene already in the
// registry and a second scene with the same name are rejected.
func (e *RFEngine) RegisterScene(s scene.Scene) error {
	if s == nil {
		return fmt.Errorf("%w: nil scene", model.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.scenes {
		if existing == s {
			return fmt.Errorf("%w: scene %q is already registered", model.ErrInvalidArgument, s.Name())
		}
		if existing.Name() == s.Name() {
			return fmt.Errorf("%w: a scene named %q is already registered", model.ErrInvalidArgument, s.Name())
		}
	}
	e.scenes = append(e.scenes, s)
	e.log.Info(context.Background(), "scene registered", logging.String("scene", s.Name()))
	return nil
}

// SetActiveScene implements Engine.
func (e *RFEngine) SetActiveScene(s scene.Scene) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setActiveLocked(s)
}

// SetActiveSceneByName activates the registered scene called name.
func (e *RFEngine) SetActiveSceneByName(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sceneByNameLocked(name)
	if s == nil {
		return fmt.Errorf("%w: no registered scene named %q", model.ErrInvalidArgument, name)
	}
	return e.setActiveLocked(s)
}

func (e *RFEngine) setActiveLocked(s scene.Scene) error {
	if s == nil || !e.registeredLocked(s) {
		name := "<nil>"
		if s != nil {
			name = s.Name()
		}
		return fmt.Errorf("%w: scene %q is not registered", model.ErrInvalidArgument, name)
	}
	if e.active != s {
		e.active = s
		e.log.Info(context.Background(), "active scene changed", logging.String("scene", s.Name()))
	}
	return nil
}

// ActiveScene implements Engine.
func (e *RFEngine) ActiveScene() scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// RegisteredScenes implements Engine.
func (e *RFEngine) RegisteredScenes() []scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]scene.Scene, len(e.scenes))
	copy(out, e.scenes)
	return out
}

// SceneByName looks up a registered scene.
func (e *RFEngine) SceneByName(name string) (scene.Scene, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.sceneByNameLocked(name)
	return s, s != nil
}

// Channel returns a channel declared by configuration.
func (e *RFEngine) Channel(id string) (*core.RFChannel, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.channels[id]
	return ch, ok
}

// SimulationTime is the simulated seconds stepped since the last Reset.
func (e *RFEngine) SimulationTime() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.simTime
}

// Ticks counts successful StepSimulation calls since the last Reset.
func (e *RFEngine) Ticks() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ticks
}

// RunConfig returns the run section of the last loaded document.
func (e *RFEngine) RunConfig() (RunConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.run, e.hasRun
}

// StepSimulation implements Engine. Without an active scene it returns
// ErrNoActiveScene and touches nothing. A negative or non-finite dt is
// rejected; dt == 0 steps systems without moving objects.
func (e *RFEngine) StepSimulation(ctx context.Context, dt float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		if e.metrics != nil {
			e.metrics.IncSkippedSteps()
		}
		e.log.Debug(ctx, "step skipped: no active scene")
		return ErrNoActiveScene
	}
	if !(dt >= 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: time step must be finite and >= 0, got %v", model.ErrInvalidArgument, dt)
	}

	name := e.active.Name()
	_, span := e.tracer.Start(ctx, "engine.StepSimulation", trace.WithAttributes(
		attribute.String("scene", name),
		attribute.Float64("dt", dt),
		attribute.Int64("tick", int64(e.ticks+1)),
	))
	defer span.End()

	start := time.Now()
	e.active.Step(dt)
	elapsed := time.Since(start)

	e.simTime += dt
	e.ticks++
	if e.metrics != nil {
		e.metrics.ObserveStep(name, elapsed, e.simTime)
		e.metrics.SetSceneObjects(name, e.active.Len())
	}
	return nil
}

// Reset implements Engine.
func (e *RFEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.scenes {
		s.Reset()
	}
	e.simTime = 0
	e.ticks = 0
	e.log.Info(context.Background(), "engine reset", logging.Int("scenes", len(e.scenes)))
}

func (e *RFEngine) registeredLocked(s scene.Scene) bool {
	for _, existing := range e.scenes {
		if existing == s {
			return true
		}
	}
	return false
}

func (e *RFEngine) sceneByNameLocked(name string) scene.Scene {
	for _, s := range e.scenes {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// lookupChannel resolves channel references for systems. Staged channels
// shadow committed ones. It is only called while e.mu is held by
// LoadConfiguration.
func (e *RFEngine) lookupChannel(id string) (core.Channel, bool) {
	if ch, ok := e.pending[id]; ok {
		return ch, true
	}
	if ch, ok := e.channels[id]; ok {
		return ch, true
	}
	return nil, false
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
