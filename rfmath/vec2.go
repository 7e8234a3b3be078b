package rfmath

import (
	"fmt"
	"math"
)

// Vec2 is a planar vector, used for floor-plan projections of scene
// geometry.
type Vec2 struct {
	X, Y float64
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v * s.
func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

// Neg returns -v.
func (v Vec2) Neg() Vec2 { return Vec2{X: -v.X, Y: -v.Y} }

// Dot returns the dot product of two vectors.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// LengthSquared returns |v|².
func (v Vec2) LengthSquared() float64 { return v.Dot(v) }

// Length returns the Euclidean norm of the vector.
func (v Vec2) Length() float64 { return math.Sqrt(v.LengthSquared()) }

// Perp returns v rotated by +90°.
func (v Vec2) Perp() Vec2 { return Vec2{X: -v.Y, Y: v.X} }

// Div returns v / s, or the zero vector when |s| is below Epsilon.
func (v Vec2) Div(s float64) Vec2 {
	if math.Abs(s) <= Epsilon {
		return Vec2{}
	}
	return Vec2{X: v.X / s, Y: v.Y / s}
}

// Normalized returns the unit vector in the direction of v, or the zero
// vector when v is (nearly) zero length.
func (v Vec2) Normalized() Vec2 {
	lenSq := v.LengthSquared()
	if lenSq <= Epsilon {
		return Vec2{}
	}
	inv := 1 / math.Sqrt(lenSq)
	return Vec2{X: v.X * inv, Y: v.Y * inv}
}

// XY projects a Vec3 onto the horizontal plane.
func (v Vec3) XY() Vec2 { return Vec2{X: v.X, Y: v.Y} }

// String formats v as "(x, y)".
func (v Vec2) String() string { return fmt.Sprintf("(%g, %g)", v.X, v.Y) }
