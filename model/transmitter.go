package model

import "fmt"

// TransmitterEntity is the scene-owned implementation of Transmitter.
type TransmitterEntity struct {
	body

	frequencyHz float64
	powerDbm    float64

	baseFrequencyHz float64
	basePowerDbm    float64
}

var (
	_ Transmitter      = (*TransmitterEntity)(nil)
	_ SimulationObject = (*TransmitterEntity)(nil)
)

// NewTransmitter constructs an unconfigured transmitter. An empty id is
// replaced with a generated one.
func NewTransmitter(id string) *TransmitterEntity {
	return &TransmitterEntity{body: newBody(TypeTransmitter, id)}
}

func (t *TransmitterEntity) Type() string                   { return TypeTransmitter }
func (t *TransmitterEntity) CarrierFrequency() float64      { return t.frequencyHz }
func (t *TransmitterEntity) SetCarrierFrequency(hz float64) { t.frequencyHz = hz }
func (t *TransmitterEntity) Power() float64                 { return t.powerDbm }
func (t *TransmitterEntity) SetPower(dbm float64)           { t.powerDbm = dbm }

// ApplyConfiguration accepts a YAML or JSON document:
//
//	position: [x, y, z]
//	orientation: [roll, pitch, yaw]
//	frequency_hz: 2.4e9
//	power_dbm: 20
//	motion: {type: linear, velocity: [1, 0, 0]}
func (t *TransmitterEntity) ApplyConfiguration(serialized string) error {
	var spec transmitterSpec
	if err := decodeStrict(TypeTransmitter, serialized, &spec); err != nil {
		return fmt.Errorf("transmitter %q: %w", t.id, err)
	}
	p, err := spec.build()
	if err != nil {
		return fmt.Errorf("transmitter %q: %w", t.id, err)
	}
	if !(spec.FrequencyHz > 0) || !finite(spec.FrequencyHz) {
		return fmt.Errorf("transmitter %q: %w: frequency_hz must be > 0", t.id, ErrConfiguration)
	}
	if !finite(spec.PowerDbm) {
		return fmt.Errorf("transmitter %q: %w: power_dbm must be finite", t.id, ErrConfiguration)
	}

	t.baseFrequencyHz = spec.FrequencyHz
	t.basePowerDbm = spec.PowerDbm
	t.configure(p)
	t.Reset()
	return nil
}

// Step integrates the transmitter's motion.
func (t *TransmitterEntity) Step(dt float64) { t.step(dt) }

// Reset restores position, orientation, frequency and power to the
// configured baseline.
func (t *TransmitterEntity) Reset() {
	if t.state == Unconfigured {
		return
	}
	t.resetKinematics()
	t.frequencyHz = t.baseFrequencyHz
	t.powerDbm = t.basePowerDbm
}
