package model

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// Motion kinds accepted in object configuration.
const (
	MotionStatic  = "static"
	MotionLinear  = "linear"
	MotionOrbital = "orbital"
)

// MotionModel advances an object's position by one step.
type MotionModel interface {
	// Advance returns the position after a step of dt seconds, where elapsed
	// is the total simulated time including this step.
	Advance(current rfmath.Vec3, elapsed, dt float64) rfmath.Vec3
}

// StaticMotion leaves the position unchanged.
type StaticMotion struct{}

// Advance for static motion returns current.
func (StaticMotion) Advance(current rfmath.Vec3, _, _ float64) rfmath.Vec3 {
	return current
}

// LinearMotion moves at a constant velocity in m/s.
type LinearMotion struct {
	Velocity rfmath.Vec3
}

// Advance integrates the velocity over dt.
func (m LinearMotion) Advance(current rfmath.Vec3, _, dt float64) rfmath.Vec3 {
	return current.Add(m.Velocity.Scale(dt))
}

// OrbitalMotion propagates a TLE with SGP4 and reports ECEF positions in
// metres. The position is absolute: epoch + elapsed determines it, so
// manual SetPosition calls are overwritten on the next step.
type OrbitalMotion struct {
	sat   satellite.Satellite
	epoch time.Time
}

// NewOrbitalMotion constructs an orbital model from TLE lines. The lines are
// checked up front because the SGP4 parser aborts the process on malformed
// input.
func NewOrbitalMotion(line1, line2 string, epoch time.Time) (*OrbitalMotion, error) {
	if err := validateTLE(line1, line2); err != nil {
		return nil, err
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalMotion{sat: sat, epoch: epoch.UTC()}, nil
}

// Advance ignores current and propagates to epoch + elapsed.
// go-satellite works in kilometres; positions are stored in metres.
func (m *OrbitalMotion) Advance(_ rfmath.Vec3, elapsed, _ float64) rfmath.Vec3 {
	return m.PositionAt(m.epoch.Add(time.Duration(elapsed * float64(time.Second))))
}

// PositionAt returns the ECEF position in metres at t. The SGP4 propagator
// takes whole seconds, so sub-second times are interpolated linearly
// between the neighbouring seconds; for LEO that is within a few metres of
// the true track.
func (m *OrbitalMotion) PositionAt(t time.Time) rfmath.Vec3 {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	p0 := m.positionAtSecond(whole)
	frac := t.Sub(whole).Seconds()
	if frac <= 0 {
		return p0
	}
	return p0.Lerp(m.positionAtSecond(whole.Add(time.Second)), frac)
}

func (m *OrbitalMotion) positionAtSecond(t time.Time) rfmath.Vec3 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	return rfmath.V3(posECEF.X*kmToM, posECEF.Y*kmToM, posECEF.Z*kmToM)
}

func validateTLE(line1, line2 string) error {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if len(line1) != 69 || len(line2) != 69 {
		return fmt.Errorf("%w: TLE lines must be 69 characters", ErrConfiguration)
	}
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("%w: TLE lines must start with \"1 \" and \"2 \"", ErrConfiguration)
	}
	for i, line := range []string{line1, line2} {
		if !tleChecksumOK(line) {
			return fmt.Errorf("%w: TLE line %d checksum mismatch", ErrConfiguration, i+1)
		}
	}
	return nil
}

// tleChecksumOK applies the modulo-10 checksum: digits count their value,
// minus signs count one, everything else zero.
func tleChecksumOK(line string) bool {
	sum := 0
	for _, r := range line[:68] {
		switch {
		case r >= '0' && r <= '9':
			sum += int(r - '0')
		case r == '-':
			sum++
		}
	}
	last := line[68]
	if last < '0' || last > '9' {
		return false
	}
	return sum%10 == int(last-'0')
}
