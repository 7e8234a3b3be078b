package systems

import (
	"fmt"
	"sort"
	"strings"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/core"
	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/scene"
)

// Dependencies are the shared collaborators systems may need at build time.
type Dependencies struct {
	// Channel looks up a shared channel by ID.
	Channel func(id string) (core.Channel, bool)
	Logger  logging.Logger
	Links   LinkMetricsRecorder
}

// Constructor builds a system from its configuration section.
type Constructor func(doc config.SystemDocument, deps Dependencies) (scene.System, error)

// Registry maps configuration type tags to system constructors.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns a registry holding the built-in systems.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.ctors[TypePropagation] = buildPropagation
	return r
}

// Register adds a constructor. Tags are case-insensitive and may not be
// registered twice.
func (r *Registry) Register(tag string, ctor Constructor) error {
	key := strings.ToLower(strings.TrimSpace(tag))
	if key == "" || ctor == nil {
		return fmt.Errorf("%w: system tag and constructor are required", model.ErrInvalidArgument)
	}
	if _, exists := r.ctors[key]; exists {
		return fmt.Errorf("%w: system type %q already registered", model.ErrInvalidArgument, key)
	}
	r.ctors[key] = ctor
	return nil
}

// Types lists the registered tags in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs the system doc declares.
func (r *Registry) Build(doc config.SystemDocument, deps Dependencies) (scene.System, error) {
	ctor, ok := r.ctors[strings.ToLower(doc.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown system type %q (known: %s)",
			model.ErrConfiguration, doc.Type, strings.Join(r.Types(), ", "))
	}
	return ctor(doc, deps)
}

// Builder binds deps so scenes can build systems from their documents.
func (r *Registry) Builder(deps Dependencies) scene.SystemBuilder {
	return func(doc config.SystemDocument) (scene.System, error) {
		return r.Build(doc, deps)
	}
}

func buildPropagation(doc config.SystemDocument, deps Dependencies) (scene.System, error) {
	var ch core.Channel
	if doc.Channel != "" {
		if deps.Channel == nil {
			return nil, fmt.Errorf("%w: system %q references channel %q but no channels are available",
				model.ErrConfiguration, doc.Name, doc.Channel)
		}
		found, ok := deps.Channel(doc.Channel)
		if !ok {
			return nil, fmt.Errorf("%w: system %q references unknown channel %q",
				model.ErrConfiguration, doc.Name, doc.Channel)
		}
		ch = found
	}

	opts := []PropagationOption{
		WithName(doc.Name),
		WithLogger(deps.Logger),
		WithLinkRecorder(deps.Links),
	}
	if doc.Workers != nil {
		opts = append(opts, WithWorkers(*doc.Workers))
	}
	if doc.ParallelThreshold != nil {
		opts = append(opts, WithParallelThreshold(*doc.ParallelThreshold))
	}
	return NewPropagationSystem(ch, opts...), nil
}
