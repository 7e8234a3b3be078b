// Package scene owns simulation objects and drives one time step across
// them and their attached systems.
package scene

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/model"
)

// Scene is a named, ordered collection of simulation objects plus the
// systems that run over them each tick. Scenes are not safe for
// concurrent mutation.
type Scene interface {
	Name() string
	// LoadConfiguration replaces the scene's objects from a scene document.
	LoadConfiguration(sourceID string) error
	// AddObject takes ownership of obj. Duplicate or empty IDs fail with
	// model.ErrInvalidArgument.
	AddObject(obj model.SimulationObject) error
	// RemoveObject drops the object and reports whether it existed.
	RemoveObject(id string) bool
	// Objects returns the objects in insertion order. The slice is a
	// fresh copy, valid until the next mutation.
	Objects() []model.SimulationObject
	Object(id string) (model.SimulationObject, bool)
	Len() int
	// Clear removes every object. Systems stay attached.
	Clear()
	// Step runs attached systems in attachment order, then steps objects
	// in insertion order.
	Step(dt float64)
	// Reset restores every object to its configured baseline and clears
	// system results.
	Reset()
	AttachSystem(sys System) error
	Systems() []System
	// Revision changes whenever the object set changes.
	Revision() uint64
}

// RFScene is the default Scene implementation.
type RFScene struct {
	name    string
	log     logging.Logger
	loader  config.Loader
	factory model.Factory
	builder SystemBuilder

	order    []string
	objects  map[string]model.SimulationObject
	systems  []System
	revision uint64
}

// Option configures an RFScene.
type Option func(*RFScene)

// WithLogger injects a logger; nil keeps the noop logger.
func WithLogger(l logging.Logger) Option {
	return func(s *RFScene) {
		if l != nil {
			s.log = logging.Subsystem(l, "scene").With(logging.String("scene", s.name))
		}
	}
}

// WithLoader sets the collaborator that resolves source identifiers.
func WithLoader(l config.Loader) Option {
	return func(s *RFScene) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithFactory replaces the object factory used when loading documents.
func WithFactory(f model.Factory) Option {
	return func(s *RFScene) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithSystemBuilder lets scene documents declare systems.
func WithSystemBuilder(b SystemBuilder) Option {
	return func(s *RFScene) { s.builder = b }
}

// New constructs an empty scene. Without WithLoader the scene resolves
// sources with config.SourceLoader.
func New(name string, opts ...Option) *RFScene {
	s := &RFScene{
		name:    name,
		log:     logging.Noop(),
		loader:  config.SourceLoader{},
		factory: model.DefaultFactory(),
		objects: make(map[string]model.SimulationObject),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Scene = (*RFScene)(nil)

func (s *RFScene) Name() string     { return s.name }
func (s *RFScene) Len() int         { return len(s.order) }
func (s *RFScene) Revision() uint64 { return s.revision }

// Touch bumps the revision after an object was reconfigured in place, so
// systems re-read geometry on their next step.
func (s *RFScene) Touch() { s.revision++ }

// AddObject implements Scene.
func (s *RFScene) AddObject(obj model.SimulationObject) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", model.ErrInvalidArgument)
	}
	id := obj.ID()
	if id == "" {
		return fmt.Errorf("%w: object has an empty id", model.ErrInvalidArgument)
	}
	if _, exists := s.objects[id]; exists {
		return fmt.Errorf("%w: scene %q already has an object %q", model.ErrInvalidArgument, s.name, id)
	}
	s.objects[id] = obj
	s.order = append(s.order, id)
	s.revision++
	s.log.Debug(context.Background(), "object added",
		logging.String("id", id),
		logging.String("type", obj.Type()),
	)
	return nil
}

// RemoveObject implements Scene.
func (s *RFScene) RemoveObject(id string) bool {
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.revision++
	s.log.Debug(context.Background(), "object removed", logging.String("id", id))
	return true
}

// Objects implements Scene.
func (s *RFScene) Objects() []model.SimulationObject {
	out := make([]model.SimulationObject, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.objects[id])
	}
	return out
}

// Object looks up one object by ID.
func (s *RFScene) Object(id string) (model.SimulationObject, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

// Clear implements Scene.
func (s *RFScene) Clear() {
	n := len(s.order)
	s.objects = make(map[string]model.SimulationObject)
	s.order = nil
	s.revision++
	s.log.Debug(context.Background(), "scene cleared", logging.Int("removed", n))
}

// Step implements Scene.
func (s *RFScene) Step(dt float64) {
	for _, sys := range s.systems {
		sys.Step(s, dt)
	}
	for _, id := range s.order {
		s.objects[id].Step(dt)
	}
}

// Reset implements Scene.
func (s *RFScene) Reset() {
	for _, id := range s.order {
		s.objects[id].Reset()
	}
	for _, sys := range s.systems {
		if r, ok := sys.(Resetter); ok {
			r.Reset()
		}
	}
}

// AttachSystem initializes sys against the scene and appends it to the
// step order. Nil systems and duplicate names are rejected.
func (s *RFScene) AttachSystem(sys System) error {
	if sys == nil {
		return fmt.Errorf("%w: nil system", model.ErrInvalidArgument)
	}
	if s.hasSystem(sys.Name()) {
		return fmt.Errorf("%w: scene %q already has a system %q", model.ErrInvalidArgument, s.name, sys.Name())
	}
	if err := sys.Initialize(s); err != nil {
		return fmt.Errorf("initialize system %q: %w", sys.Name(), err)
	}
	s.systems = append(s.systems, sys)
	s.log.Info(context.Background(), "system attached", logging.String("system", sys.Name()))
	return nil
}

// Systems returns the attached systems in attachment order.
func (s *RFScene) Systems() []System {
	out := make([]System, len(s.systems))
	copy(out, s.systems)
	return out
}

func (s *RFScene) hasSystem(name string) bool {
	for _, existing := range s.systems {
		if existing.Name() == name {
			return true
		}
	}
	return false
}

// LoadConfiguration resolves sourceID with the scene's loader, parses a
// scene document and replaces the object set. On any error the scene is
// unchanged. Attached systems are notified after a successful load.
func (s *RFScene) LoadConfiguration(sourceID string) error {
	data, err := s.loader.Load(sourceID)
	if err != nil {
		return fmt.Errorf("%w: scene %q: %w", model.ErrConfiguration, s.name, err)
	}
	doc, err := config.ParseScene(data)
	if err != nil {
		return fmt.Errorf("%w: scene %q: %w", model.ErrConfiguration, s.name, err)
	}
	staged, err := s.Prepare(doc)
	if err != nil {
		return err
	}
	if err := staged.Commit(); err != nil {
		return err
	}
	s.NotifyReload(sourceID)
	s.log.Info(context.Background(), "scene configuration loaded",
		logging.String("source", sourceID),
		logging.Int("objects", s.Len()),
	)
	return nil
}

// NotifyReload forwards a configuration reload to every attached system.
func (s *RFScene) NotifyReload(sourceID string) {
	for _, sys := range s.systems {
		sys.OnConfigurationReload(sourceID)
	}
}
