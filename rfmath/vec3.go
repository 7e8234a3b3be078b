// Package rfmath holds the value types shared by every other package:
// vectors, complex helpers and decibel conversions.
//
// All operations are pure. Degenerate inputs (zero-length vectors, zero
// divisors) saturate to the zero value instead of producing NaN, because
// coincident positions are routine in scene geometry.
package rfmath

import (
	"fmt"
	"math"
)

// Epsilon is the threshold below which squared lengths and denominators
// are treated as zero.
const Epsilon = 2.220446049250313e-16

// Vec3 is a position or direction in metres.
type Vec3 struct {
	X, Y, Z float64
}

// V3 is shorthand for Vec3{x, y, z}.
func V3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Vec3FromArray converts a [3]float64 into a Vec3.
func Vec3FromArray(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

// Array returns the components as [x, y, z].
func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

// Div returns v / s, or the zero vector when |s| is below Epsilon.
func (v Vec3) Div(s float64) Vec3 {
	if math.Abs(s) <= Epsilon {
		return Vec3{}
	}
	return Vec3{X: v.X / s, Y: v.Y / s, Z: v.Z / s}
}

// Neg returns -v.
func (v Vec3) Neg() Vec3 { return Vec3{X: -v.X, Y: -v.Y, Z: -v.Z} }

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// LengthSquared returns |v|².
func (v Vec3) LengthSquared() float64 { return v.Dot(v) }

// Length returns the Euclidean norm of the vector.
func (v Vec3) Length() float64 { return math.Sqrt(v.LengthSquared()) }

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(o Vec3) float64 { return v.Sub(o).Length() }

// Normalized returns the unit vector in the direction of v. A vector whose
// squared length is at or below Epsilon normalizes to the zero vector.
func (v Vec3) Normalized() Vec3 {
	lenSq := v.LengthSquared()
	if lenSq <= Epsilon {
		return Vec3{}
	}
	inv := 1 / math.Sqrt(lenSq)
	return Vec3{X: v.X * inv, Y: v.Y * inv, Z: v.Z * inv}
}

// Lerp interpolates linearly between v (t=0) and o (t=1).
func (v Vec3) Lerp(o Vec3, t float64) Vec3 { return v.Add(o.Sub(v).Scale(t)) }

// IsZero reports whether every component is exactly zero.
func (v Vec3) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func (v Vec3) String() string { return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z) }

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// IsFinite reports whether f is neither NaN nor ±Inf.
func IsFinite(f float64) bool { return isFinite(f) }
