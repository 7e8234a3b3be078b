package core

import (
	"math"

	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// Obstacle is the channel's copy of a wall's geometry and material. The
// channel keys obstacles by wall ID and never holds the wall itself, so
// removing a wall from its scene is never blocked by a channel.
type Obstacle struct {
	ID                   string
	Position             rfmath.Vec3
	Normal               rfmath.Vec3 // unit length, or zero for a degenerate wall
	Thickness            float64
	RelativePermittivity float64
	Conductivity         float64
	Width                float64 // 0 = unbounded
	Height               float64 // 0 = unbounded
}

// SnapshotWall copies the current state of w.
func SnapshotWall(w model.Wall) Obstacle {
	width, height := w.Extent()
	return Obstacle{
		ID:                   w.ID(),
		Position:             w.Position(),
		Normal:               w.Normal().Normalized(),
		Thickness:            math.Max(w.Thickness(), 0),
		RelativePermittivity: math.Max(w.RelativePermittivity(), 1),
		Conductivity:         math.Max(w.Conductivity(), 0),
		Width:                math.Max(width, 0),
		Height:               math.Max(height, 0),
	}
}

// Degenerate reports whether the obstacle cannot intersect anything.
func (o Obstacle) Degenerate() bool {
	return o.Normal.IsZero() || !o.Normal.IsFinite() || !o.Position.IsFinite()
}

// signedDistance is the distance of p from the wall mid-plane along the
// normal.
func (o Obstacle) signedDistance(p rfmath.Vec3) float64 {
	return p.Sub(o.Position).Dot(o.Normal)
}

// planeAxes returns the in-plane width (u) and height (v) directions. For
// upright walls u is horizontal and v points up.
func (o Obstacle) planeAxes() (u, v rfmath.Vec3) {
	up := rfmath.V3(0, 0, 1)
	u = up.Cross(o.Normal).Normalized()
	if u.IsZero() {
		u = rfmath.V3(0, 1, 0).Cross(o.Normal).Normalized()
	}
	return u, o.Normal.Cross(u)
}

// contains reports whether p, assumed to lie on the mid-plane, is inside
// the wall's extent.
func (o Obstacle) contains(p rfmath.Vec3) bool {
	if o.Width == 0 && o.Height == 0 {
		return true
	}
	u, v := o.planeAxes()
	local := p.Sub(o.Position)
	if o.Width > 0 && math.Abs(local.Dot(u)) > o.Width/2 {
		return false
	}
	if o.Height > 0 && math.Abs(local.Dot(v)) > o.Height/2 {
		return false
	}
	return true
}

// crossing tests the segment a→b against the mid-plane. The endpoints must
// lie strictly on opposite sides; touching the plane is not a crossing.
// cosIncidence is |cos| of the angle between the segment and the normal.
func (o Obstacle) crossing(a, b rfmath.Vec3) (cosIncidence float64, ok bool) {
	if o.Degenerate() {
		return 0, false
	}
	sa := o.signedDistance(a)
	sb := o.signedDistance(b)
	if !(sa > 0 && sb < 0) && !(sa < 0 && sb > 0) {
		return 0, false
	}
	t := sa / (sa - sb)
	if !o.contains(a.Lerp(b, t)) {
		return 0, false
	}
	dir := b.Sub(a).Normalized()
	return math.Abs(dir.Dot(o.Normal)), true
}

// reflection finds the specular point on the wall for a path tx→wall→rx
// with the image method. Both endpoints must be strictly on the same side.
func (o Obstacle) reflection(tx, rx rfmath.Vec3) (point rfmath.Vec3, pathLength, cosIncidence float64, ok bool) {
	if o.Degenerate() {
		return rfmath.Vec3{}, 0, 0, false
	}
	st := o.signedDistance(tx)
	sr := o.signedDistance(rx)
	if !(st > 0 && sr > 0) && !(st < 0 && sr < 0) {
		return rfmath.Vec3{}, 0, 0, false
	}
	image := tx.Sub(o.Normal.Scale(2 * st))
	pathLength = image.DistanceTo(rx)
	if pathLength <= rfmath.Epsilon {
		return rfmath.Vec3{}, 0, 0, false
	}
	// The image sits at -st, so the segment image→rx meets the plane at
	// parameter st/(st+sr) measured from the image.
	point = image.Lerp(rx, st/(st+sr))
	if !o.contains(point) {
		return rfmath.Vec3{}, 0, 0, false
	}
	cosIncidence = math.Abs(st+sr) / pathLength
	return point, pathLength, cosIncidence, true
}
