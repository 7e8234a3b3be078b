package main

import (
	"context"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/signalsfoundry/rf-propagation-sim/core"
	"github.com/signalsfoundry/rf-propagation-sim/engine"
	"github.com/signalsfoundry/rf-propagation-sim/systems"
)

// linkRow is one line of the link report: a link result stamped with the
// tick and the scene and system that produced it.
type linkRow struct {
	Tick   int     `csv:"tick"`
	TimeS  float64 `csv:"time_s"`
	Scene  string  `csv:"scene"`
	System string  `csv:"system"`
	core.LinkResult
}

// linkReport streams propagation results of the active scene as CSV.
type linkReport struct {
	engine        *engine.RFEngine
	out           io.Writer
	headerWritten bool
	rows          int
}

func newLinkReport(e *engine.RFEngine, out io.Writer) *linkReport {
	return &linkReport{engine: e, out: out}
}

// Hook adapts the report to an engine.TickHook.
func (r *linkReport) Hook() engine.TickHook {
	return func(_ context.Context, tick int, simulated float64) error {
		return r.write(tick, simulated)
	}
}

func (r *linkReport) write(tick int, simulated float64) error {
	active := r.engine.ActiveScene()
	if active == nil {
		return nil
	}
	var rows []linkRow
	for _, sys := range active.Systems() {
		p, ok := sys.(*systems.PropagationSystem)
		if !ok {
			continue
		}
		for _, res := range p.Results() {
			rows = append(rows, linkRow{
				Tick:       tick,
				TimeS:      simulated,
				Scene:      active.Name(),
				System:     p.Name(),
				LinkResult: res,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	if !r.headerWritten {
		if err := gocsv.Marshal(rows, r.out); err != nil {
			return fmt.Errorf("writing link report: %w", err)
		}
		r.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(rows, r.out); err != nil {
			return fmt.Errorf("writing link report: %w", err)
		}
	}
	r.rows += len(rows)
	return nil
}
