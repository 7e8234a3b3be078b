package core

import (
	"fmt"
	"math"
	"strings"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// FadingMode selects how FadingPower is synthesised.
type FadingMode string

const (
	// FadingDeterministic sums the direct path and specular wall
	// reflections only. The result depends on geometry alone.
	FadingDeterministic FadingMode = "deterministic"
	// FadingSeeded adds a diffuse scatter term drawn from seeded,
	// spatially correlated noise. It is still a pure function of the
	// seed and positions, so repeated queries agree.
	FadingSeeded FadingMode = "seeded"
)

// FadingConfig tunes the fading model of a channel.
type FadingConfig struct {
	Mode FadingMode
	// Seed for the diffuse noise field (seeded mode only).
	Seed int64
	// KFactor is the linear ratio of specular to diffuse power.
	KFactor float64
	// CorrelationWavelengths is the distance, in carrier wavelengths, over
	// which the diffuse term decorrelates.
	CorrelationWavelengths float64
}

// DefaultFadingConfig returns deterministic fading with seeded-mode
// parameters typical for indoor links.
func DefaultFadingConfig() FadingConfig {
	return FadingConfig{
		Mode:                   FadingDeterministic,
		KFactor:                10,
		CorrelationWavelengths: 0.5,
	}
}

// ParseFadingMode accepts "deterministic" or "seeded", case-insensitively.
// An empty string selects deterministic.
func ParseFadingMode(s string) (FadingMode, error) {
	switch FadingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FadingDeterministic:
		return FadingDeterministic, nil
	case FadingSeeded:
		return FadingSeeded, nil
	default:
		return "", fmt.Errorf("%w: unknown fading mode %q", model.ErrConfiguration, s)
	}
}

// Validate checks the numeric parameters.
func (c FadingConfig) Validate() error {
	if _, err := ParseFadingMode(string(c.Mode)); err != nil {
		return err
	}
	if !(c.KFactor > 0) || math.IsInf(c.KFactor, 0) {
		return fmt.Errorf("%w: fading k_factor must be > 0", model.ErrConfiguration)
	}
	if !(c.CorrelationWavelengths > 0) || math.IsInf(c.CorrelationWavelengths, 0) {
		return fmt.Errorf("%w: fading correlation_wavelengths must be > 0", model.ErrConfiguration)
	}
	return nil
}

// diffuseField is the seeded scatter component. Noise evaluation only
// reads its permutation tables, so one field serves concurrent queries.
type diffuseField struct {
	magnitude opensimplex.Noise
	phase     opensimplex.Noise
	scale     float64 // 1/√K
	corr      float64 // correlation length in wavelengths
}

func newDiffuseField(cfg FadingConfig) *diffuseField {
	return &diffuseField{
		magnitude: opensimplex.New(cfg.Seed),
		phase:     opensimplex.New(cfg.Seed ^ 0x5bd1e995),
		scale:     1 / math.Sqrt(cfg.KFactor),
		corr:      cfg.CorrelationWavelengths,
	}
}

// sample returns the diffuse phasor relative to a unit coherent amplitude.
// Its magnitude lies in [0, 1/√K]. The field is indexed by the tx→rx
// offset measured in correlation lengths.
func (d *diffuseField) sample(tx, rx rfmath.Vec3, wavelength float64) complex128 {
	if d == nil || wavelength <= 0 {
		return 0
	}
	p := rx.Sub(tx).Scale(1 / (wavelength * d.corr))
	if !p.IsFinite() {
		return 0
	}
	mag := (d.magnitude.Eval3(p.X, p.Y, p.Z) + 1) / 2
	mag = math.Min(math.Max(mag, 0), 1)
	phi := math.Pi * d.phase.Eval3(p.X+31.7, p.Y-17.3, p.Z+5.9)
	return rfmath.Polar(mag*d.scale, phi)
}
