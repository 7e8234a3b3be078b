package model

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// motionSpec is the YAML shape of an object's motion block.
type motionSpec struct {
	Type     string      `yaml:"type"`
	Velocity *[3]float64 `yaml:"velocity,omitempty"`
	TLE1     string      `yaml:"tle1,omitempty"`
	TLE2     string      `yaml:"tle2,omitempty"`
	Epoch    string      `yaml:"epoch,omitempty"` // RFC 3339
}

// placementSpec is shared by transmitters and receivers.
type placementSpec struct {
	Position    [3]float64  `yaml:"position"`
	Orientation [3]float64  `yaml:"orientation"` // roll, pitch, yaw
	Motion      *motionSpec `yaml:"motion,omitempty"`
}

type transmitterSpec struct {
	placementSpec `yaml:",inline"`
	FrequencyHz   float64 `yaml:"frequency_hz"`
	PowerDbm      float64 `yaml:"power_dbm"`
}

type receiverSpec struct {
	placementSpec  `yaml:",inline"`
	SensitivityDbm *float64 `yaml:"sensitivity_dbm,omitempty"`
}

type wallSpec struct {
	Position             [3]float64 `yaml:"position"`
	Normal               [3]float64 `yaml:"normal"`
	Thickness            float64    `yaml:"thickness"`
	RelativePermittivity *float64   `yaml:"relative_permittivity,omitempty"`
	Conductivity         float64    `yaml:"conductivity"`
	Width                float64    `yaml:"width,omitempty"`
	Height               float64    `yaml:"height,omitempty"`
}

// DefaultSensitivityDbm applies when a receiver configuration omits it.
const DefaultSensitivityDbm = -90.0

// decodeStrict parses YAML (or JSON) into out, rejecting unknown fields.
// An empty payload decodes to the zero value.
func decodeStrict(kind, serialized string, out any) error {
	dec := yaml.NewDecoder(strings.NewReader(serialized))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode %s: %w", ErrConfiguration, kind, err)
	}
	return nil
}

func (p placementSpec) build() (placement, error) {
	pos := rfmath.Vec3FromArray(p.Position)
	if !pos.IsFinite() {
		return placement{}, fmt.Errorf("%w: position must be finite", ErrConfiguration)
	}
	o := Orientation{Roll: p.Orientation[0], Pitch: p.Orientation[1], Yaw: p.Orientation[2]}
	if !finite(o.Roll, o.Pitch, o.Yaw) {
		return placement{}, fmt.Errorf("%w: orientation must be finite", ErrConfiguration)
	}
	motion, err := p.Motion.build()
	if err != nil {
		return placement{}, err
	}
	return placement{position: pos, orientation: o, motion: motion}, nil
}

func (m *motionSpec) build() (MotionModel, error) {
	if m == nil {
		return StaticMotion{}, nil
	}
	switch strings.ToLower(m.Type) {
	case "", MotionStatic:
		return StaticMotion{}, nil
	case MotionLinear:
		if m.Velocity == nil {
			return nil, fmt.Errorf("%w: linear motion requires velocity", ErrConfiguration)
		}
		v := rfmath.Vec3FromArray(*m.Velocity)
		if !v.IsFinite() {
			return nil, fmt.Errorf("%w: velocity must be finite", ErrConfiguration)
		}
		return LinearMotion{Velocity: v}, nil
	case MotionOrbital:
		epoch := time.Unix(0, 0).UTC()
		if m.Epoch != "" {
			t, err := time.Parse(time.RFC3339, m.Epoch)
			if err != nil {
				return nil, fmt.Errorf("%w: orbital epoch: %w", ErrConfiguration, err)
			}
			epoch = t
		}
		return NewOrbitalMotion(m.TLE1, m.TLE2, epoch)
	default:
		return nil, fmt.Errorf("%w: unknown motion type %q", ErrConfiguration, m.Type)
	}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
