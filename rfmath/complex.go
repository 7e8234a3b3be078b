package rfmath

import (
	"math"
	"math/cmplx"
)

// Polar builds a complex value from magnitude and phase (radians).
func Polar(magnitude, phase float64) complex128 {
	return cmplx.Rect(magnitude, phase)
}

// MagnitudeSquared returns |z|² without the square root.
func MagnitudeSquared(z complex128) float64 {
	re, im := real(z), imag(z)
	return re*re + im*im
}

// Magnitude returns |z|.
func Magnitude(z complex128) float64 { return cmplx.Abs(z) }

// Phase returns arg(z) in (-π, π].
func Phase(z complex128) float64 { return cmplx.Phase(z) }

// NormalizeComplex returns z/|z|, or 0 when z is zero.
func NormalizeComplex(z complex128) complex128 {
	mag := cmplx.Abs(z)
	if mag == 0 || math.IsNaN(mag) {
		return 0
	}
	return complex(real(z)/mag, imag(z)/mag)
}

// DivComplex returns a/b, saturating to 0 when |b|² is at or below Epsilon.
func DivComplex(a, b complex128) complex128 {
	den := MagnitudeSquared(b)
	if den <= Epsilon {
		return 0
	}
	return complex(
		(real(a)*real(b)+imag(a)*imag(b))/den,
		(imag(a)*real(b)-real(a)*imag(b))/den,
	)
}
