package model

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// placement is the configured baseline shared by transmitters and receivers.
type placement struct {
	position    rfmath.Vec3
	orientation Orientation
	motion      MotionModel
}

// body carries the identity, lifecycle and kinematic state common to
// transmitters and receivers.
type body struct {
	id    string
	state LifecycleState

	baseline placement

	position    rfmath.Vec3
	orientation Orientation
	elapsed     float64
}

func newBody(kind, id string) body {
	if id == "" {
		id = NewObjectID(kind)
	}
	return body{id: id, baseline: placement{motion: StaticMotion{}}}
}

// NewObjectID returns "<kind>-<8 hex>" for objects created without an ID.
func NewObjectID(kind string) string {
	return fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
}

func (b *body) ID() string                      { return b.id }
func (b *body) Position() rfmath.Vec3           { return b.position }
func (b *body) SetPosition(p rfmath.Vec3)       { b.position = p }
func (b *body) Orientation() Orientation        { return b.orientation }
func (b *body) SetOrientation(o Orientation)    { b.orientation = o }
func (b *body) State() LifecycleState           { return b.state }
func (b *body) Elapsed() float64                { return b.elapsed }
func (b *body) ConfiguredPosition() rfmath.Vec3 { return b.baseline.position }

func (b *body) configure(p placement) {
	b.baseline = p
	b.state = Configured
	b.resetKinematics()
}

func (b *body) resetKinematics() {
	b.position = b.baseline.position
	b.orientation = b.baseline.orientation
	b.elapsed = 0
}

// step advances the motion model. Unconfigured objects and non-positive or
// non-finite steps are ignored.
func (b *body) step(dt float64) {
	if b.state == Unconfigured || !(dt > 0) || !finite(dt) {
		return
	}
	b.state = Stepping
	b.elapsed += dt
	b.position = b.baseline.motion.Advance(b.position, b.elapsed, dt)
	b.state = Configured
}
