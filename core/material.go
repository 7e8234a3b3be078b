package core

import (
	"math"
	"math/cmplx"

	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// nepersToDecibels converts an amplitude attenuation in nepers to dB.
const nepersToDecibels = 20 / math.Ln10

// minRefractionCosine bounds the slab path length at grazing incidence.
const minRefractionCosine = 0.05

// material is a wall slab evaluated at one carrier frequency.
type material struct {
	omega        float64    // angular frequency, rad/s
	permittivity complex128 // relative complex permittivity εr - jσ/(ωε0)
	index        complex128 // refractive index √ε, Re ≥ 1, Im ≤ 0
	thickness    float64
}

// newMaterial evaluates o at frequencyHz. A non-positive or non-finite
// frequency drops the conductivity term, leaving a lossless dielectric.
func newMaterial(o Obstacle, frequencyHz float64) material {
	m := material{thickness: o.Thickness}
	eps := complex(o.RelativePermittivity, 0)
	if frequencyHz > 0 && rfmath.IsFinite(frequencyHz) {
		m.omega = 2 * math.Pi * frequencyHz
		eps = complex(o.RelativePermittivity, -o.Conductivity/(m.omega*rfmath.VacuumPermittivity))
	}
	m.permittivity = eps
	m.index = cmplx.Sqrt(eps)
	return m
}

// normalReflection is Γ = (1 - n)/(1 + n) at a single air/slab interface.
func (m material) normalReflection() complex128 {
	return rfmath.DivComplex(1-m.index, 1+m.index)
}

// reflectionTE is the perpendicular-polarisation Fresnel coefficient for a
// wave arriving with the given |cos θ|.
func (m material) reflectionTE(cosIncidence float64) complex128 {
	c := complex(cosIncidence, 0)
	root := cmplx.Sqrt(m.permittivity - complex(1-cosIncidence*cosIncidence, 0))
	return rfmath.DivComplex(c-root, c+root)
}

// effectiveThickness is the geometric path length through the slab after
// refraction by Snell's law on the real part of the index.
func (m material) effectiveThickness(cosIncidence float64) float64 {
	if m.thickness <= 0 {
		return 0
	}
	cosI := math.Min(math.Max(cosIncidence, 0), 1)
	sinT := math.Sqrt(1-cosI*cosI) / math.Max(real(m.index), 1)
	cosT := math.Max(math.Sqrt(math.Max(1-sinT*sinT, 0)), minRefractionCosine)
	return m.thickness / cosT
}

// penaltyDb is the through-wall loss: absorption inside the slab plus
// transmission loss at both faces. Zero-thickness walls are transparent.
// The result is never negative.
func (m material) penaltyDb(cosIncidence float64) float64 {
	if m.thickness <= 0 {
		return 0
	}
	tEff := m.effectiveThickness(cosIncidence)
	absorption := nepersToDecibels * (m.omega / rfmath.SpeedOfLight) * math.Abs(imag(m.index)) * tEff

	transmitted := 1 - rfmath.MagnitudeSquared(m.normalReflection())
	interfaces := -2 * rfmath.PowerToDecibels(transmitted)

	if penalty := absorption + interfaces; penalty > 0 {
		return penalty
	}
	return 0
}

// extraDelay is the additional group delay over travelling the same path
// length in vacuum.
func (m material) extraDelay(cosIncidence float64) float64 {
	if m.thickness <= 0 {
		return 0
	}
	excess := real(m.index) - 1
	if !(excess > 0) {
		return 0
	}
	return m.effectiveThickness(cosIncidence) * excess / rfmath.SpeedOfLight
}
