package scene

import "github.com/signalsfoundry/rf-propagation-sim/config"

// System is a pluggable per-tick algorithm attached to a scene.
type System interface {
	// Name is unique among the systems attached to one scene.
	Name() string
	// Initialize is called exactly once, at attach time and before any
	// Step. A failing Initialize leaves the system detached.
	Initialize(s Scene) error
	// Step runs once per tick, before the scene steps its objects.
	Step(s Scene, dt float64)
	// OnConfigurationReload marks cached derived data stale.
	OnConfigurationReload(sourceID string)
}

// Resetter is implemented by systems holding transient per-run results.
// Scene.Reset calls it after resetting objects.
type Resetter interface {
	Reset()
}

// Detacher is implemented by systems that can be attached again after a
// rolled-back attach. Detach undoes Initialize.
type Detacher interface {
	Detach(s Scene)
}

// SystemBuilder constructs a system from its configuration section.
type SystemBuilder func(doc config.SystemDocument) (System, error)
