package model

import (
	"fmt"

	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// WallEntity is a static planar obstruction. Walls have no motion; Step
// only counts elapsed time.
type WallEntity struct {
	id    string
	state LifecycleState

	position     rfmath.Vec3
	normal       rfmath.Vec3
	thickness    float64
	permittivity float64
	conductivity float64
	width        float64
	height       float64

	elapsed float64
}

var (
	_ Wall             = (*WallEntity)(nil)
	_ SimulationObject = (*WallEntity)(nil)
)

// NewWall constructs an unconfigured wall with free-space material.
func NewWall(id string) *WallEntity {
	if id == "" {
		id = NewObjectID(TypeWall)
	}
	return &WallEntity{id: id, permittivity: 1}
}

func (w *WallEntity) ID() string                      { return w.id }
func (w *WallEntity) Type() string                    { return TypeWall }
func (w *WallEntity) Position() rfmath.Vec3           { return w.position }
func (w *WallEntity) Normal() rfmath.Vec3             { return w.normal }
func (w *WallEntity) Thickness() float64              { return w.thickness }
func (w *WallEntity) RelativePermittivity() float64   { return w.permittivity }
func (w *WallEntity) Conductivity() float64           { return w.conductivity }
func (w *WallEntity) Extent() (width, height float64) { return w.width, w.height }
func (w *WallEntity) State() LifecycleState           { return w.state }

// ApplyConfiguration accepts:
//
//	position: [x, y, z]
//	normal: [nx, ny, nz]
//	thickness: 0.2
//	relative_permittivity: 5.31
//	conductivity: 0.0326
//	width: 10    # optional, 0 = unbounded
//	height: 3    # optional, 0 = unbounded
//
// The normal is normalized; a zero normal is rejected.
func (w *WallEntity) ApplyConfiguration(serialized string) error {
	var spec wallSpec
	if err := decodeStrict(TypeWall, serialized, &spec); err != nil {
		return fmt.Errorf("wall %q: %w", w.id, err)
	}
	permittivity := 1.0
	if spec.RelativePermittivity != nil {
		permittivity = *spec.RelativePermittivity
	}

	pos := rfmath.Vec3FromArray(spec.Position)
	normal := rfmath.Vec3FromArray(spec.Normal).Normalized()
	switch {
	case !pos.IsFinite():
		return fmt.Errorf("wall %q: %w: position must be finite", w.id, ErrConfiguration)
	case normal.IsZero():
		return fmt.Errorf("wall %q: %w: normal must be a non-zero vector", w.id, ErrConfiguration)
	case !finite(spec.Thickness, permittivity, spec.Conductivity, spec.Width, spec.Height):
		return fmt.Errorf("wall %q: %w: material values must be finite", w.id, ErrConfiguration)
	case spec.Thickness < 0:
		return fmt.Errorf("wall %q: %w: thickness must be >= 0", w.id, ErrConfiguration)
	case permittivity < 1:
		return fmt.Errorf("wall %q: %w: relative_permittivity must be >= 1", w.id, ErrConfiguration)
	case spec.Conductivity < 0:
		return fmt.Errorf("wall %q: %w: conductivity must be >= 0", w.id, ErrConfiguration)
	case spec.Width < 0 || spec.Height < 0:
		return fmt.Errorf("wall %q: %w: extent must be >= 0", w.id, ErrConfiguration)
	}

	w.position = pos
	w.normal = normal
	w.thickness = spec.Thickness
	w.permittivity = permittivity
	w.conductivity = spec.Conductivity
	w.width = spec.Width
	w.height = spec.Height
	w.state = Configured
	w.elapsed = 0
	return nil
}

func (w *WallEntity) Step(dt float64) {
	if w.state == Unconfigured || !(dt > 0) {
		return
	}
	w.elapsed += dt
}

func (w *WallEntity) Reset() { w.elapsed = 0 }
