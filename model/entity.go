// Package model defines the entities placed in an RF scene and the uniform
// SimulationObject contract they implement.
//
// Units: positions in metres, orientation in radians (roll, pitch, yaw),
// power and sensitivity in dBm, carrier frequency in Hz, time in seconds.
package model

import "github.com/signalsfoundry/rf-propagation-sim/rfmath"

// Object type tags returned by SimulationObject.Type.
const (
	TypeTransmitter = "transmitter"
	TypeReceiver    = "receiver"
	TypeWall        = "wall"
)

// Orientation is a roll/pitch/yaw triple in radians.
type Orientation struct {
	Roll, Pitch, Yaw float64
}

// LifecycleState tracks where a SimulationObject is in its lifecycle.
type LifecycleState int

const (
	// Unconfigured objects have been constructed but never configured.
	Unconfigured LifecycleState = iota
	// Configured objects hold an applied configuration baseline.
	Configured
	// Stepping is entered for the duration of a Step call.
	Stepping
)

func (s LifecycleState) String() string {
	switch s {
	case Configured:
		return "configured"
	case Stepping:
		return "stepping"
	default:
		return "unconfigured"
	}
}

// SimulationObject is anything placed in a scene.
type SimulationObject interface {
	// ID is unique within a scene.
	ID() string
	// Type is a classification such as "transmitter" or "wall".
	Type() string
	// ApplyConfiguration parses and fully replaces the object's
	// configuration. On error the object is left unchanged.
	ApplyConfiguration(serialized string) error
	// Step integrates transient state forward by dt seconds.
	Step(dt float64)
	// Reset restores transient state to the configured baseline.
	Reset()
}

// Transmitter emits RF energy into the scene.
type Transmitter interface {
	ID() string
	Position() rfmath.Vec3
	SetPosition(p rfmath.Vec3)
	Orientation() Orientation
	SetOrientation(o Orientation)
	// CarrierFrequency in Hz.
	CarrierFrequency() float64
	SetCarrierFrequency(hz float64)
	// Power is the effective isotropic radiated power in dBm.
	Power() float64
	SetPower(dbm float64)
}

// Receiver captures RF energy.
type Receiver interface {
	ID() string
	Position() rfmath.Vec3
	SetPosition(p rfmath.Vec3)
	Orientation() Orientation
	SetOrientation(o Orientation)
	// Sensitivity is the minimum detectable power in dBm.
	Sensitivity() float64
	SetSensitivity(dbm float64)
}

// Wall is a planar obstruction with material properties.
type Wall interface {
	ID() string
	// Position is the wall centroid.
	Position() rfmath.Vec3
	// Normal is the outward unit normal.
	Normal() rfmath.Vec3
	// Thickness in metres.
	Thickness() float64
	RelativePermittivity() float64
	// Conductivity in S/m.
	Conductivity() float64
	// Extent returns width and height in metres; zero means unbounded
	// along that axis.
	Extent() (width, height float64)
}
