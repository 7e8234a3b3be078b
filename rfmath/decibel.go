package rfmath

import "math"

const (
	// SpeedOfLight in vacuum, m/s.
	SpeedOfLight = 299_792_458.0
	// VacuumPermittivity ε0 in F/m.
	VacuumPermittivity = 8.8541878128e-12
)

// smallestNormal is the smallest positive normal float64.
const smallestNormal = 0x1p-1022

// clampToPositive keeps log10 away from zero and negative arguments.
func clampToPositive(v float64) float64 {
	return math.Max(math.Abs(v), smallestNormal)
}

// AmplitudeToDecibels returns 20·log10(|a|).
func AmplitudeToDecibels(a float64) float64 {
	return 20 * math.Log10(clampToPositive(a))
}

// DecibelsToAmplitude is the inverse of AmplitudeToDecibels for positive a.
func DecibelsToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// PowerToDecibels returns 10·log10(|p|).
func PowerToDecibels(p float64) float64 {
	return 10 * math.Log10(clampToPositive(p))
}

// DecibelsToPower is the inverse of PowerToDecibels for positive p.
func DecibelsToPower(db float64) float64 {
	return math.Pow(10, db/10)
}

// RatioToDecibels is an alias of PowerToDecibels for dimensionless ratios.
func RatioToDecibels(r float64) float64 { return PowerToDecibels(r) }

// DecibelsToRatio is an alias of DecibelsToPower.
func DecibelsToRatio(db float64) float64 { return DecibelsToPower(db) }

// DbmToWatts converts dBm to watts.
func DbmToWatts(dbm float64) float64 { return DecibelsToPower(dbm-30) }

// WattsToDbm converts watts to dBm.
func WattsToDbm(w float64) float64 { return PowerToDecibels(w) + 30 }

// Wavelength returns c/f in metres, or 0 for non-positive frequencies.
func Wavelength(frequencyHz float64) float64 {
	if frequencyHz <= 0 || !isFinite(frequencyHz) {
		return 0
	}
	return SpeedOfLight / frequencyHz
}
