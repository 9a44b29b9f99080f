// Package stagemetrics implements the scheduling pipeline's
// per-stage CPU/wall-time accumulator (spec.md §4.H): one
// Measurement per named stage per scheduling tick, published onto the
// scheduler's event bus.
package stagemetrics

import (
	"time"

	"github.com/dcsim/simcore/eventbus"
	"github.com/dcsim/simcore/proc"
	"github.com/dcsim/simcore/vtime"
)

// Measurement is one stage's accumulated cost for one scheduling tick
// (spec.md §4.H, §6 stage_measurements columns, minus the experiment/
// trace/scheduler columns an external exporter attaches).
type Measurement struct {
	Stage      string
	Tick       vtime.Tick
	CPU        time.Duration
	Wall       time.Duration
	InputSize  int64
	Iterations int
}

// Accumulator measures wall and (where the host supports it) CPU time per
// stage across one invocation of the scheduling pipeline. The same stage
// id invoked multiple times within one tick (R4/R5 inside the per-task
// loop) accumulates: cpu, wall, and size sum, iterations increments
// (spec.md §4.H). Not safe for concurrent use — a single scheduler
// process body drives it from a single goroutine, matching spec.md §5.
type Accumulator struct {
	now  vtime.Tick
	rows map[string]*Measurement
	// order preserves first-seen stage order, so Measurements published
	// onto the bus at End() are deterministic across identical runs
	// (spec.md §8 determinism).
	order []string

	tickStart time.Time
	cpuStart  time.Duration
}

// NewAccumulator constructs an empty Accumulator for one tick.
func NewAccumulator() *Accumulator {
	return &Accumulator{rows: make(map[string]*Measurement)}
}

// Start brackets the beginning of one scheduling-pipeline invocation at
// virtual time now (spec.md §4.H "start()/end() bracket the whole tick").
func (a *Accumulator) Start(now vtime.Tick) {
	a.now = now
	a.rows = make(map[string]*Measurement)
	a.order = nil
	a.tickStart = time.Now()
	a.cpuStart = cpuNow()
}

// RunStage measures fn's wall and CPU cost and accumulates it under id.
// inputSize is added to the stage's running size total; one iteration is
// recorded per call.
func (a *Accumulator) RunStage(id string, inputSize int, fn func()) {
	wallStart := time.Now()
	cpuStart := cpuNow()

	fn()

	wallElapsed := time.Since(wallStart)
	cpuElapsed := cpuNow() - cpuStart
	if cpuElapsed < 0 {
		cpuElapsed = 0
	}

	row, ok := a.rows[id]
	if !ok {
		row = &Measurement{Stage: id, Tick: a.now}
		a.rows[id] = row
		a.order = append(a.order, id)
	}
	row.CPU += cpuElapsed
	row.Wall += wallElapsed
	row.InputSize += int64(inputSize)
	row.Iterations++
}

// End closes out the tick: any wall/CPU time not attributed to a named
// RunStage call is recorded under the "overhead" stage id (spec.md §4.H
// "the final stage record captures any unattributed overhead"), then
// every Measurement is published, in first-seen order, onto bus via ctx
// when ctx is non-nil, and returned (spec.md §4.H "On end() the accumulator publishes each
// StageMeasurement to the scheduler's event bus").
func (a *Accumulator) End(ctx *proc.Context, bus proc.ID) []Measurement {
	attributedWall := time.Duration(0)
	attributedCPU := time.Duration(0)
	for _, id := range a.order {
		attributedWall += a.rows[id].Wall
		attributedCPU += a.rows[id].CPU
	}

	totalWall := time.Since(a.tickStart)
	totalCPU := cpuNow() - a.cpuStart
	overheadWall := totalWall - attributedWall
	overheadCPU := totalCPU - attributedCPU
	if overheadWall > 0 {
		row := &Measurement{Stage: "overhead", Tick: a.now, Wall: overheadWall, Iterations: 1}
		if overheadCPU > 0 {
			row.CPU = overheadCPU
		}
		a.rows["overhead"] = row
		a.order = append(a.order, "overhead")
	}

	out := make([]Measurement, 0, len(a.order))
	for _, id := range a.order {
		m := *a.rows[id]
		out = append(out, m)
		if ctx != nil {
			_ = ctx.Send(bus, eventbus.Publish{Event: m}, 0)
		}
	}
	return out
}
