// Package systems holds the simulation systems that can be attached to a
// scene, and the registry that builds them from configuration.
package systems

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/signalsfoundry/rf-propagation-sim/core"
	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/scene"
)

// TypePropagation is the configuration tag of PropagationSystem.
const TypePropagation = "propagation"

// DefaultParallelThreshold is the pair count below which evaluation stays
// on the calling goroutine.
const DefaultParallelThreshold = 64

// LinkMetricsRecorder receives each tick's link results. Implementations
// must not retain the slice.
type LinkMetricsRecorder interface {
	ObserveLinks(scene string, results []core.LinkResult)
}

// PropagationSystem evaluates every transmitter/receiver pair in its scene
// through a Channel once per tick.
type PropagationSystem struct {
	name      string
	channel   core.Channel
	log       logging.Logger
	links     LinkMetricsRecorder
	workers   int
	threshold int

	sceneName   string
	initialized bool
	revision    uint64
	stale       bool
	walls       []model.Wall

	// written is true once walls has been pushed to the channel, and
	// generation is the channel generation that push produced.
	written    bool
	generation uint64

	pairs   []linkPair
	results []core.LinkResult
	summary Summary
	ticks   uint64
}

// linkPair is one pair captured before the compute phase.
type linkPair struct {
	tx model.Transmitter
	rx model.Receiver
}

// PropagationOption configures a PropagationSystem.
type PropagationOption func(*PropagationSystem)

// WithName overrides the system name (default "propagation").
func WithName(name string) PropagationOption {
	return func(p *PropagationSystem) {
		if name != "" {
			p.name = name
		}
	}
}

// WithWorkers bounds the evaluation goroutines. Zero or less means one per
// available CPU.
func WithWorkers(n int) PropagationOption {
	return func(p *PropagationSystem) { p.workers = n }
}

// WithParallelThreshold sets the pair count at which evaluation fans out.
func WithParallelThreshold(n int) PropagationOption {
	return func(p *PropagationSystem) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithLogger injects a logger; nil keeps the noop logger.
func WithLogger(l logging.Logger) PropagationOption {
	return func(p *PropagationSystem) {
		if l != nil {
			p.log = logging.Subsystem(l, "propagation")
		}
	}
}

// WithLinkRecorder reports each tick's results, e.g. to Prometheus.
func WithLinkRecorder(r LinkMetricsRecorder) PropagationOption {
	return func(p *PropagationSystem) { p.links = r }
}

// NewPropagationSystem drives ch, which may be shared with other systems.
// A nil channel gets a private RFChannel with default fading.
func NewPropagationSystem(ch core.Channel, opts ...PropagationOption) *PropagationSystem {
	p := &PropagationSystem{
		name:      TypePropagation,
		log:       logging.Noop(),
		threshold: DefaultParallelThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	if ch == nil {
		ch = core.NewRFChannel(p.name + "-channel")
	}
	p.channel = ch
	p.log = p.log.With(logging.String("system", p.name), logging.String("channel", ch.ID()))
	return p
}

var (
	_ scene.System   = (*PropagationSystem)(nil)
	_ scene.Resetter = (*PropagationSystem)(nil)
	_ scene.Detacher = (*PropagationSystem)(nil)
)

func (p *PropagationSystem) Name() string          { return p.name }
func (p *PropagationSystem) Channel() core.Channel { return p.channel }
func (p *PropagationSystem) Ticks() uint64         { return p.ticks }
func (p *PropagationSystem) Summary() Summary      { return p.summary }

// Results returns a copy of the last tick's link results, ordered by
// transmitter then receiver insertion order.
func (p *PropagationSystem) Results() []core.LinkResult {
	out := make([]core.LinkResult, len(p.results))
	copy(out, p.results)
	return out
}

// Initialize caches the scene's walls. The channel is left untouched until
// the first Step, so attaching to a scene that is later rolled back has no
// effect on a shared channel.
func (p *PropagationSystem) Initialize(s scene.Scene) error {
	if s == nil {
		return fmt.Errorf("%w: nil scene", model.ErrInvalidArgument)
	}
	if p.initialized {
		return fmt.Errorf("%w: system %q is already attached to scene %q", model.ErrInvalidArgument, p.name, p.sceneName)
	}
	p.initialized = true
	p.sceneName = s.Name()
	p.cacheWalls(s)
	return nil
}

// Detach undoes Initialize after a rolled-back attach.
func (p *PropagationSystem) Detach(scene.Scene) {
	p.initialized = false
	p.sceneName = ""
	p.walls = nil
	p.written = false
	p.stale = false
	p.revision = 0
}

// OnConfigurationReload forces an obstacle resync on the next step.
func (p *PropagationSystem) OnConfigurationReload(sourceID string) {
	p.stale = true
	p.log.Debug(context.Background(), "configuration reload signalled", logging.String("source", sourceID))
}

// Reset drops per-run results. The obstacle cache is kept since walls do
// not move on reset.
func (p *PropagationSystem) Reset() {
	p.results = nil
	p.summary = Summary{}
	p.ticks = 0
}

// Step evaluates all pairs. Obstacles are resynced first when the scene
// changed or another system rewrote the channel, so the channel is never
// mutated while pairs are in flight.
func (p *PropagationSystem) Step(s scene.Scene, dt float64) {
	if s == nil {
		return
	}
	if p.stale || s.Revision() != p.revision {
		p.cacheWalls(s)
	}
	if !p.channelCurrent() {
		p.writeObstacles()
	}

	p.pairs = p.pairs[:0]
	receivers := scene.Receivers(s)
	for _, tx := range scene.Transmitters(s) {
		for _, rx := range receivers {
			p.pairs = append(p.pairs, linkPair{tx: tx, rx: rx})
		}
	}
	n := len(p.pairs)
	if cap(p.results) < n {
		p.results = make([]core.LinkResult, n)
	}
	p.results = p.results[:n]

	if n < p.threshold || p.workerCount() < 2 {
		p.evaluateRange(0, n)
	} else {
		p.evaluateParallel(n)
	}

	p.ticks++
	p.summary = Summarize(p.results)
	if p.links != nil {
		p.links.ObserveLinks(p.sceneName, p.results)
	}
	p.log.Debug(context.Background(), "links evaluated",
		logging.Uint64("tick", p.ticks),
		logging.Float64("dt", dt),
		logging.Int("pairs", n),
		logging.Int("viable", p.summary.Viable),
	)
}

func (p *PropagationSystem) workerCount() int {
	if p.workers > 0 {
		return p.workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *PropagationSystem) evaluateRange(start, end int) {
	for i := start; i < end; i++ {
		pair := p.pairs[i]
		p.results[i] = p.channel.Evaluate(pair.tx, pair.rx)
	}
}

// evaluateParallel splits the pairs into contiguous chunks. Each result
// lands at its pair's index, so output order does not depend on
// scheduling.
func (p *PropagationSystem) evaluateParallel(n int) {
	workers := min(p.workerCount(), n)
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			p.evaluateRange(start, end)
		}(start, end)
	}
	wg.Wait()
}

type obstacleReplacer interface {
	ReplaceObstacles(walls []model.Wall) uint64
}

type generationReporter interface {
	Generation() uint64
}

func (p *PropagationSystem) cacheWalls(s scene.Scene) {
	p.walls = scene.Walls(s)
	p.revision = s.Revision()
	p.stale = false
	p.written = false
}

// channelCurrent reports whether the channel still holds exactly what this
// system last wrote. Channels that cannot report a generation are always
// rewritten.
func (p *PropagationSystem) channelCurrent() bool {
	if !p.written {
		return false
	}
	g, ok := p.channel.(generationReporter)
	return ok && g.Generation() == p.generation
}

func (p *PropagationSystem) writeObstacles() {
	if r, ok := p.channel.(obstacleReplacer); ok {
		p.generation = r.ReplaceObstacles(p.walls)
	} else {
		p.channel.ClearObstacles()
		for _, w := range p.walls {
			p.channel.AddObstacle(w)
		}
		if g, ok := p.channel.(generationReporter); ok {
			p.generation = g.Generation()
		}
	}
	p.written = true
	p.log.Debug(context.Background(), "obstacles synced",
		logging.Int("walls", len(p.walls)),
		logging.Uint64("revision", p.revision),
		logging.Uint64("generation", p.generation),
	)
}
