// Package core implements the RF channel: free-space path loss, wall
// penetration, propagation delay and multipath fading between a
// transmitter and a receiver.
package core

import (
	"context"
	"math"
	"sync"

	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

// Channel computes propagation between a transmitter and a receiver given
// a set of registered wall obstacles. Queries are pure functions of their
// arguments and the obstruction set, and are safe to call concurrently.
// Mutations must not overlap with queries that need a consistent view of
// the obstruction set; implementations serialise them internally.
type Channel interface {
	ID() string
	AddObstacle(w model.Wall)
	ClearObstacles()
	// PathLoss in dB, always ≥ 0.
	PathLoss(tx model.Transmitter, rx model.Receiver) float64
	// PropagationDelay in seconds, always ≥ 0.
	PropagationDelay(tx model.Transmitter, rx model.Receiver) float64
	// FadingPower is |h|² of the normalised fading coefficient, in [0, 1].
	FadingPower(tx model.Transmitter, rx model.Receiver) float64
	// Evaluate computes every metric in one pass.
	Evaluate(tx model.Transmitter, rx model.Receiver) LinkResult
	// Obstacles lists the registered wall IDs in registration order.
	Obstacles() []string
}

// RFChannel is the default Channel implementation.
type RFChannel struct {
	id  string
	log logging.Logger

	fading  FadingConfig
	diffuse *diffuseField

	mu         sync.RWMutex
	obstacles  map[string]Obstacle
	order      []string
	generation uint64
}

// Option configures an RFChannel.
type Option func(*RFChannel)

// WithLogger injects a logger; nil keeps the noop logger.
func WithLogger(l logging.Logger) Option {
	return func(c *RFChannel) {
		if l != nil {
			c.log = logging.Subsystem(l, "propagation").With(logging.String("channel", c.id))
		}
	}
}

// WithFading selects the fading model. The config is validated by
// NewRFChannelWithConfig; options applied through NewRFChannel fall back to
// the default on invalid input.
func WithFading(cfg FadingConfig) Option {
	return func(c *RFChannel) {
		if cfg.Validate() != nil {
			return
		}
		cfg.Mode, _ = ParseFadingMode(string(cfg.Mode))
		c.fading = cfg
	}
}

// NewRFChannel constructs a channel with no obstacles and deterministic
// fading unless overridden. An empty id is replaced with a generated one.
func NewRFChannel(id string, opts ...Option) *RFChannel {
	if id == "" {
		id = model.NewObjectID("channel")
	}
	c := &RFChannel{
		id:        id,
		log:       logging.Noop(),
		fading:    DefaultFadingConfig(),
		obstacles: make(map[string]Obstacle),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fading.Mode == FadingSeeded {
		c.diffuse = newDiffuseField(c.fading)
	}
	return c
}

// NewRFChannelWithConfig is NewRFChannel with an explicitly validated
// fading configuration.
func NewRFChannelWithConfig(id string, fading FadingConfig, opts ...Option) (*RFChannel, error) {
	if err := fading.Validate(); err != nil {
		return nil, err
	}
	return NewRFChannel(id, append([]Option{WithFading(fading)}, opts...)...), nil
}

var _ Channel = (*RFChannel)(nil)

// ID returns the channel identity.
func (c *RFChannel) ID() string { return c.id }

// Fading returns the active fading configuration.
func (c *RFChannel) Fading() FadingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fading
}

// SetFading swaps the fading model. Queries in flight finish against the
// previous model. An invalid config leaves the channel unchanged.
func (c *RFChannel) SetFading(cfg FadingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Mode, _ = ParseFadingMode(string(cfg.Mode))
	var diffuse *diffuseField
	if cfg.Mode == FadingSeeded {
		diffuse = newDiffuseField(cfg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fading = cfg
	c.diffuse = diffuse
	c.log.Debug(context.Background(), "fading model changed",
		logging.String("mode", string(cfg.Mode)),
		logging.Int64("seed", cfg.Seed),
	)
	return nil
}

// AddObstacle registers a snapshot of w. Re-adding a wall ID replaces the
// previous snapshot in place. Nil walls are ignored.
func (c *RFChannel) AddObstacle(w model.Wall) {
	if w == nil {
		return
	}
	o := SnapshotWall(w)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(o)
	c.generation++
	c.log.Debug(context.Background(), "obstacle registered",
		logging.String("wall", o.ID),
		logging.Int("obstacles", len(c.order)),
	)
}

// RemoveObstacle drops one wall by ID and reports whether it was present.
func (c *RFChannel) RemoveObstacle(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.obstacles[id]; !ok {
		return false
	}
	delete(c.obstacles, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.generation++
	return true
}

// ClearObstacles empties the obstruction set.
func (c *RFChannel) ClearObstacles() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obstacles = make(map[string]Obstacle)
	c.order = nil
	c.generation++
	c.log.Debug(context.Background(), "obstacles cleared")
}

// ReplaceObstacles swaps the whole obstruction set in one critical
// section, so concurrent queries see either the old or the new set. It
// returns the resulting generation. Replacing a set with an identical one
// leaves the generation unchanged.
func (c *RFChannel) ReplaceObstacles(walls []model.Wall) uint64 {
	snaps := make([]Obstacle, 0, len(walls))
	for _, w := range walls {
		if w != nil {
			snaps = append(snaps, SnapshotWall(w))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sameObstaclesLocked(snaps) {
		return c.generation
	}
	c.generation++
	c.obstacles = make(map[string]Obstacle, len(snaps))
	c.order = c.order[:0]
	for _, o := range snaps {
		c.putLocked(o)
	}
	c.log.Debug(context.Background(), "obstacles replaced",
		logging.Int("obstacles", len(c.order)),
		logging.Uint64("generation", c.generation),
	)
	return c.generation
}

// Generation counts changes to the obstruction set. Systems sharing the
// channel compare it with the value they last wrote to detect that
// another system replaced their walls.
func (c *RFChannel) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *RFChannel) sameObstaclesLocked(snaps []Obstacle) bool {
	if len(snaps) != len(c.order) {
		return false
	}
	for i, o := range snaps {
		if c.order[i] != o.ID || c.obstacles[o.ID] != o {
			return false
		}
	}
	return true
}

func (c *RFChannel) putLocked(o Obstacle) {
	if _, exists := c.obstacles[o.ID]; !exists {
		c.order = append(c.order, o.ID)
	}
	c.obstacles[o.ID] = o
}

// Obstacles lists the registered wall IDs in registration order.
func (c *RFChannel) Obstacles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Obstacle returns the registered snapshot for a wall ID.
func (c *RFChannel) Obstacle(id string) (Obstacle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.obstacles[id]
	return o, ok
}

// PathLoss is free-space loss plus the penetration loss of every wall the
// direct path crosses.
func (c *RFChannel) PathLoss(tx model.Transmitter, rx model.Receiver) float64 {
	if tx == nil || rx == nil {
		return 0
	}
	return c.trace(tx.Position(), rx.Position(), tx.CarrierFrequency()).pathLoss()
}

// PropagationDelay is the free-space travel time plus the extra delay of
// every wall crossed. Coincident endpoints give 0 whether or not walls are
// registered: a zero-length path crosses no wall.
func (c *RFChannel) PropagationDelay(tx model.Transmitter, rx model.Receiver) float64 {
	if tx == nil || rx == nil {
		return 0
	}
	return c.trace(tx.Position(), rx.Position(), tx.CarrierFrequency()).delay()
}

// FadingPower returns |h|² for the direct path combined with specular wall
// reflections, normalised so that a lone direct path gives exactly 1.
func (c *RFChannel) FadingPower(tx model.Transmitter, rx model.Receiver) float64 {
	if tx == nil || rx == nil {
		return 1
	}
	return c.trace(tx.Position(), rx.Position(), tx.CarrierFrequency()).fadingPower()
}

// Evaluate computes every link metric from a single view of the
// obstruction set.
func (c *RFChannel) Evaluate(tx model.Transmitter, rx model.Receiver) LinkResult {
	if tx == nil || rx == nil {
		return LinkResult{Quality: LinkQualityDown}
	}
	p := c.trace(tx.Position(), rx.Position(), tx.CarrierFrequency())

	res := LinkResult{
		TransmitterID:  tx.ID(),
		ReceiverID:     rx.ID(),
		DistanceM:      p.distance,
		FrequencyHz:    p.frequency,
		PathLossDb:     p.pathLoss(),
		DelaySeconds:   p.delay(),
		FadingPower:    p.fadingPower(),
		SensitivityDbm: rx.Sensitivity(),
		Obstructions:   len(p.crossed),
	}
	res.FadingDb = rfmath.PowerToDecibels(res.FadingPower)
	res.ReceivedPowerDbm = tx.Power() - res.PathLossDb + res.FadingDb
	res.MarginDb = res.ReceivedPowerDbm - res.SensitivityDbm
	res.Viable = res.ReceivedPowerDbm >= res.SensitivityDbm
	res.Quality = classifyLinkByMargin(res.MarginDb)
	return res
}

// crossedWall is one wall on the direct path.
type crossedWall struct {
	id           string
	mat          material
	cosIncidence float64
	penaltyDb    float64
}

// reflectedPath is one specular bounce off a wall.
type reflectedPath struct {
	length      float64
	coefficient complex128 // Fresnel coefficient at the bounce
	throughLoss float64    // amplitude factor from other walls on either leg
}

// path is everything derived from one locked read of the obstruction set.
type path struct {
	tx, rx     rfmath.Vec3
	distance   float64
	frequency  float64
	wavelength float64
	crossed    []crossedWall
	reflected  []reflectedPath
	diffuse    complex128
	obstacles  int
}

func (c *RFChannel) trace(tx, rx rfmath.Vec3, frequency float64) path {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := path{
		tx:         tx,
		rx:         rx,
		distance:   tx.DistanceTo(rx),
		frequency:  frequency,
		wavelength: rfmath.Wavelength(frequency),
		obstacles:  len(c.order),
	}
	if !rfmath.IsFinite(p.distance) {
		p.distance = 0
	}
	if len(c.order) == 0 {
		return p
	}

	for _, id := range c.order {
		o := c.obstacles[id]
		cosI, ok := o.crossing(tx, rx)
		if !ok {
			continue
		}
		m := newMaterial(o, frequency)
		p.crossed = append(p.crossed, crossedWall{
			id:           id,
			mat:          m,
			cosIncidence: cosI,
			penaltyDb:    m.penaltyDb(cosI),
		})
	}

	for _, id := range c.order {
		o := c.obstacles[id]
		if o.Thickness <= 0 {
			continue
		}
		point, length, cosI, ok := o.reflection(tx, rx)
		if !ok {
			continue
		}
		m := newMaterial(o, frequency)
		p.reflected = append(p.reflected, reflectedPath{
			length:      length,
			coefficient: m.reflectionTE(cosI),
			throughLoss: c.legLossLocked(id, tx, point, frequency) * c.legLossLocked(id, point, rx, frequency),
		})
	}

	if c.diffuse != nil {
		p.diffuse = c.diffuse.sample(tx, rx, p.wavelength)
	}
	return p
}

// legLossLocked is the amplitude factor of every wall other than skip
// crossed by the segment a→b.
func (c *RFChannel) legLossLocked(skip string, a, b rfmath.Vec3, frequency float64) float64 {
	factor := 1.0
	for _, id := range c.order {
		if id == skip {
			continue
		}
		o := c.obstacles[id]
		cosI, ok := o.crossing(a, b)
		if !ok {
			continue
		}
		factor *= rfmath.DecibelsToAmplitude(-newMaterial(o, frequency).penaltyDb(cosI))
	}
	return factor
}

func (p path) penaltyDb() float64 {
	total := 0.0
	for _, w := range p.crossed {
		total += w.penaltyDb
	}
	return total
}

func (p path) freeSpaceLoss() float64 {
	if p.wavelength <= 0 || p.distance <= 0 {
		return 0
	}
	fspl := rfmath.AmplitudeToDecibels(4 * math.Pi * p.distance / p.wavelength)
	if !(fspl > 0) {
		return 0
	}
	return fspl
}

func (p path) pathLoss() float64 {
	return p.freeSpaceLoss() + p.penaltyDb()
}

func (p path) delay() float64 {
	d := p.distance / rfmath.SpeedOfLight
	for _, w := range p.crossed {
		d += w.mat.extraDelay(w.cosIncidence)
	}
	return d
}

// fadingPower normalises the coherent sum by the sum of magnitudes, which
// bounds |h| by 1 and makes a lone direct path exactly 1.
func (p path) fadingPower() float64 {
	if p.obstacles == 0 {
		return 1
	}
	direct := rfmath.DecibelsToAmplitude(-p.penaltyDb())
	sum := complex(direct, 0)
	norm := direct

	for _, r := range p.reflected {
		amp := rfmath.Magnitude(r.coefficient) * r.throughLoss
		if p.distance > 0 {
			amp *= p.distance / r.length
		} else {
			amp = 0
		}
		if amp <= 0 || !rfmath.IsFinite(amp) {
			continue
		}
		phase := rfmath.Phase(r.coefficient)
		if p.wavelength > 0 {
			phase -= 2 * math.Pi * (r.length - p.distance) / p.wavelength
		}
		sum += rfmath.Polar(amp, phase)
		norm += amp
	}

	if p.diffuse != 0 {
		diffuse := p.diffuse * complex(norm, 0)
		sum += diffuse
		norm += rfmath.Magnitude(diffuse)
	}

	h := rfmath.DivComplex(sum, complex(norm, 0))
	power := rfmath.MagnitudeSquared(h)
	switch {
	case !(power >= 0):
		return 0
	case power > 1:
		return 1
	}
	return power
}
