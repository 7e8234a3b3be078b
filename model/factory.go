package model

import (
	"fmt"
	"sort"
	"strings"
)

// Constructor builds an unconfigured object with the given id.
type Constructor func(id string) SimulationObject

// Factory maps type tags to constructors. The zero value is empty; use
// DefaultFactory for the built-in entities.
type Factory map[string]Constructor

// DefaultFactory knows transmitters, receivers and walls.
func DefaultFactory() Factory {
	return Factory{
		TypeTransmitter: func(id string) SimulationObject { return NewTransmitter(id) },
		TypeReceiver:    func(id string) SimulationObject { return NewReceiver(id) },
		TypeWall:        func(id string) SimulationObject { return NewWall(id) },
	}
}

// New constructs an object for typeTag. Unknown tags return
// ErrInvalidArgument.
func (f Factory) New(typeTag, id string) (SimulationObject, error) {
	ctor, ok := f[strings.ToLower(typeTag)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown object type %q (known: %s)",
			ErrInvalidArgument, typeTag, strings.Join(f.Types(), ", "))
	}
	return ctor(id), nil
}

// Build constructs and configures an object in one call.
func (f Factory) Build(typeTag, id, serialized string) (SimulationObject, error) {
	obj, err := f.New(typeTag, id)
	if err != nil {
		return nil, err
	}
	if err := obj.ApplyConfiguration(serialized); err != nil {
		return nil, err
	}
	return obj, nil
}

// Types lists the registered type tags in sorted order.
func (f Factory) Types() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewObject constructs an unconfigured built-in object.
func NewObject(typeTag, id string) (SimulationObject, error) {
	return DefaultFactory().New(typeTag, id)
}
