package model

import "fmt"

// ReceiverEntity is the scene-owned implementation of Receiver.
type ReceiverEntity struct {
	body

	sensitivityDbm     float64
	baseSensitivityDbm float64
}

var (
	_ Receiver         = (*ReceiverEntity)(nil)
	_ SimulationObject = (*ReceiverEntity)(nil)
)

// NewReceiver constructs an unconfigured receiver.
func NewReceiver(id string) *ReceiverEntity {
	return &ReceiverEntity{body: newBody(TypeReceiver, id), sensitivityDbm: DefaultSensitivityDbm}
}

func (r *ReceiverEntity) Type() string               { return TypeReceiver }
func (r *ReceiverEntity) Sensitivity() float64       { return r.sensitivityDbm }
func (r *ReceiverEntity) SetSensitivity(dbm float64) { r.sensitivityDbm = dbm }

// ApplyConfiguration accepts position, orientation, motion and
// sensitivity_dbm (default -90).
func (r *ReceiverEntity) ApplyConfiguration(serialized string) error {
	var spec receiverSpec
	if err := decodeStrict(TypeReceiver, serialized, &spec); err != nil {
		return fmt.Errorf("receiver %q: %w", r.id, err)
	}
	p, err := spec.build()
	if err != nil {
		return fmt.Errorf("receiver %q: %w", r.id, err)
	}
	sensitivity := DefaultSensitivityDbm
	if spec.SensitivityDbm != nil {
		sensitivity = *spec.SensitivityDbm
	}
	if !finite(sensitivity) {
		return fmt.Errorf("receiver %q: %w: sensitivity_dbm must be finite", r.id, ErrConfiguration)
	}

	r.baseSensitivityDbm = sensitivity
	r.configure(p)
	r.Reset()
	return nil
}

func (r *ReceiverEntity) Step(dt float64) { r.step(dt) }

// Reset restores position, orientation and sensitivity to the baseline.
func (r *ReceiverEntity) Reset() {
	if r.state == Unconfigured {
		return
	}
	r.resetKinematics()
	r.sensitivityDbm = r.baseSensitivityDbm
}
